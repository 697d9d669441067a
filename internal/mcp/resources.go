package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/arena/internal/problem"
	"github.com/hurttlocker/arena/internal/session"
)

func registerProblemsResource(s *server.MCPServer, catalog *problem.Catalog) {
	resource := mcp.NewResource(
		"arena://problems",
		"Problem Catalog",
		mcp.WithResourceDescription("Every indexed problem with its judging metadata."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := catalog.ListIDs(ctx)
		if err != nil {
			return nil, err
		}
		type problemInfo struct {
			ProblemID    string  `json:"problem_id"`
			ProblemType  string  `json:"problem_type"`
			ScoreType    string  `json:"score_type"`
			TimeLimit    float64 `json:"time_limit_seconds"`
			ContestHours float64 `json:"contest_hours"`
		}
		problems := make([]problemInfo, 0, len(ids))
		for _, id := range ids {
			p, err := catalog.Get(ctx, id)
			if err != nil {
				continue
			}
			problems = append(problems, problemInfo{
				ProblemID:    p.ID,
				ProblemType:  string(p.Type),
				ScoreType:    string(p.ScoreType),
				TimeLimit:    p.TimeLimit,
				ContestHours: p.ContestLength.Hours(),
			})
		}
		payload := map[string]any{
			"problems": problems,
			"count":    len(problems),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerSessionsResource(s *server.MCPServer, reg *session.Registry) {
	resource := mcp.NewResource(
		"arena://sessions",
		"Live Sessions",
		mcp.WithResourceDescription("Live sessions with remaining time and resource usage."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type sessionInfo struct {
			SessionID        string                `json:"session_id"`
			ProblemID        string                `json:"problem_id"`
			RemainingSeconds float64               `json:"remaining_seconds"`
			Usage            session.ResourceUsage `json:"usage"`
		}
		sessions := []sessionInfo{}
		for _, id := range reg.IDs() {
			sess, err := reg.Get(id)
			if err != nil {
				continue
			}
			sessions = append(sessions, sessionInfo{
				SessionID:        sess.ID(),
				ProblemID:        sess.ProblemID(),
				RemainingSeconds: sess.RemainingTime().Seconds(),
				Usage:            sess.Usage(),
			})
		}
		payload := map[string]any{
			"sessions": sessions,
			"count":    len(sessions),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
