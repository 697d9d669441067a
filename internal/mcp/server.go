// Package mcp provides a Model Context Protocol server for Arena.
//
// It exposes the contest catalog (problems, seeds, tool sources) and the
// session lifecycle (start, code runs, case generation and evaluation,
// leaderboard and final submissions) as MCP tools, plus problem and
// session listings as MCP resources. The stdio transport serves local
// agent harnesses; HTTP+SSE is available for remote access.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/arena/internal/backend"
	"github.com/hurttlocker/arena/internal/problem"
	"github.com/hurttlocker/arena/internal/session"
)

// litePrivateCases caps the private case count in lite mode.
const litePrivateCases = 50

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Catalog  *problem.Catalog
	Registry *session.Registry
	Version  string

	NumWorkers int
	Lite       bool

	// NewBackend builds the execution backend for one session. Every
	// session owns its backend and closes it with the session.
	NewBackend func(ctx context.Context) (backend.Backend, error)
}

// NewServer creates a configured MCP server with all Arena tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Arena",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerCheckAppTool(s, cfg, ver)
	registerListProblemIDsTool(s, cfg.Catalog)
	registerGetProblemTool(s, cfg.Catalog)
	registerGetPublicSeedsTool(s, cfg.Catalog)
	registerGetRustToolSourceTool(s, cfg.Catalog)

	registerListCurrentSessionsTool(s, cfg.Registry)
	registerStartSessionTool(s, cfg)
	registerGetRemainingTimeTool(s, cfg.Registry)
	registerCloseSessionTool(s, cfg.Registry)

	registerCodeRunTool(s, cfg.Registry)
	registerCaseGenTool(s, cfg.Registry)
	registerCaseEvalTool(s, cfg.Registry)
	registerCaseGenEvalTool(s, cfg.Registry)
	registerCaseVisTool(s, cfg.Registry)
	registerCaseGenVisTool(s, cfg.Registry)
	registerPublicEvalTool(s, cfg.Registry)
	registerPrivateEvalTool(s, cfg.Registry)

	registerProblemsResource(s, cfg.Catalog)
	registerSessionsResource(s, cfg.Registry)

	return s
}

// --- Helpers ---

func jsonResult(v any) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}

func lookupSession(reg *session.Registry, req mcp.CallToolRequest) (*session.Session, *mcp.CallToolResult) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return nil, mcp.NewToolResultError("session_id is required")
	}
	s, err := reg.Get(id)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return s, nil
}

// parseSeeds accepts a comma- or whitespace-separated seed list.
func parseSeeds(raw string) ([]uint64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil, errors.New("seeds must contain at least one value")
	}
	seeds := make([]uint64, len(fields))
	for i, f := range fields {
		seed, err := session.ParseSeed(f)
		if err != nil {
			return nil, err
		}
		seeds[i] = seed
	}
	return seeds, nil
}

// parseStringArray decodes a JSON array of strings.
func parseStringArray(raw, name string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%s must be a JSON array of strings: %v", name, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s must contain at least one entry", name)
	}
	return out, nil
}

func parseGenOptions(req mcp.CallToolRequest) (map[string]string, error) {
	raw, err := req.RequireString("gen_options")
	if err != nil || raw == "" {
		return nil, nil
	}
	var kwargs map[string]string
	if err := json.Unmarshal([]byte(raw), &kwargs); err != nil {
		return nil, fmt.Errorf("gen_options must be a JSON object of string values: %v", err)
	}
	return kwargs, nil
}

func evalOptions(req mcp.CallToolRequest) session.EvalOptions {
	var opts session.EvalOptions
	if v, err := req.RequireString("language"); err == nil {
		opts.Language = v
	}
	if v, err := req.RequireString("version"); err == nil {
		opts.Version = v
	}
	if v, err := req.RequireFloat("time_limit"); err == nil {
		opts.TimeLimit = v
	}
	if v, err := req.RequireString("memory_limit"); err == nil {
		opts.MemoryLimit = v
	}
	if v, err := req.RequireBool("skip_visualization"); err == nil {
		opts.SkipVis = v
	}
	return opts
}

func withEvalArgs(extra ...mcp.ToolOption) []mcp.ToolOption {
	opts := []mcp.ToolOption{
		mcp.WithString("language",
			mcp.Description("Submission language: cpp17, cpp20, cpp23, python, or rust (default: cpp17)"),
			mcp.Enum("cpp17", "cpp20", "cpp23", "python", "rust"),
		),
		mcp.WithString("version",
			mcp.Description("Judge toolchain generation: 201907 or 202301 (default: 202301)"),
			mcp.Enum("201907", "202301"),
		),
	}
	return append(opts, extra...)
}

// --- Catalog tools ---

func registerCheckAppTool(s *server.MCPServer, cfg ServerConfig, ver string) {
	tool := mcp.NewTool("check_app",
		mcp.WithDescription("Report server health: version, indexed problem count, live session count and lite mode."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := cfg.Catalog.ListIDs(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("catalog error: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"status":        "ok",
			"version":       ver,
			"num_problems":  len(ids),
			"live_sessions": cfg.Registry.Len(),
			"lite":          cfg.Lite,
		}), nil
	})
}

func registerListProblemIDsTool(s *server.MCPServer, catalog *problem.Catalog) {
	tool := mcp.NewTool("list_problem_ids",
		mcp.WithDescription("List every indexed problem id in lexicographic order."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := catalog.ListIDs(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("catalog error: %v", err)), nil
		}
		return jsonResult(map[string]any{"problem_ids": ids}), nil
	})
}

func registerGetProblemTool(s *server.MCPServer, catalog *problem.Catalog) {
	tool := mcp.NewTool("get_problem",
		mcp.WithDescription("Get one problem's statement and judging metadata: type, score direction, time and memory limits, contest length and visualization kind."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("problem_id",
			mcp.Required(),
			mcp.Description("Problem id, e.g. 'ahc001'"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("problem_id")
		if err != nil {
			return mcp.NewToolResultError("problem_id is required"), nil
		}
		p, err := catalog.Get(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{
			"problem_id":         p.ID,
			"problem_type":       p.Type,
			"score_type":         p.ScoreType,
			"time_limit_seconds": p.TimeLimit,
			"memory_limit_bytes": p.MemoryLimit,
			"contest_hours":      p.ContestLength.Hours(),
			"lenient_scoring":    p.LenientScoring,
			"visualization":      p.VisKind,
			"relative_scoring":   p.IsRelative(),
			"statement":          p.Statement,
		}), nil
	})
}

func registerGetPublicSeedsTool(s *server.MCPServer, catalog *problem.Catalog) {
	tool := mcp.NewTool("get_public_seeds",
		mcp.WithDescription("Get the public seed list of a problem. Private seeds are never exposed."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("problem_id",
			mcp.Required(),
			mcp.Description("Problem id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("problem_id")
		if err != nil {
			return mcp.NewToolResultError("problem_id is required"), nil
		}
		p, err := catalog.Get(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"problem_id": p.ID, "public_seeds": p.PublicSeeds}), nil
	})
}

func registerGetRustToolSourceTool(s *server.MCPServer, catalog *problem.Catalog) {
	tool := mcp.NewTool("get_rust_tool_source",
		mcp.WithDescription("Read the Rust source of one contest tool (gen, tester or vis) so an agent can study the exact input distribution and scoring."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("problem_id",
			mcp.Required(),
			mcp.Description("Problem id"),
		),
		mcp.WithString("tool",
			mcp.Required(),
			mcp.Description("Tool name"),
			mcp.Enum("gen", "tester", "vis"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("problem_id")
		if err != nil {
			return mcp.NewToolResultError("problem_id is required"), nil
		}
		toolName, err := req.RequireString("tool")
		if err != nil {
			return mcp.NewToolResultError("tool is required"), nil
		}
		p, err := catalog.Get(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		src, err := p.RustToolSource(toolName)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(src), nil
	})
}

// --- Session lifecycle tools ---

func registerListCurrentSessionsTool(s *server.MCPServer, reg *session.Registry) {
	tool := mcp.NewTool("list_current_sessions",
		mcp.WithDescription("List live sessions with their problem, remaining time and resource usage."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		type sessionInfo struct {
			SessionID        string                `json:"session_id"`
			ProblemID        string                `json:"problem_id"`
			RemainingSeconds float64               `json:"remaining_seconds"`
			Usage            session.ResourceUsage `json:"usage"`
			Budget           session.ResourceUsage `json:"budget"`
		}
		infos := []sessionInfo{}
		for _, id := range reg.IDs() {
			sess, err := reg.Get(id)
			if err != nil {
				continue
			}
			infos = append(infos, sessionInfo{
				SessionID:        sess.ID(),
				ProblemID:        sess.ProblemID(),
				RemainingSeconds: sess.RemainingTime().Seconds(),
				Usage:            sess.Usage(),
				Budget:           sess.Budget(),
			})
		}
		return jsonResult(map[string]any{"sessions": infos}), nil
	})
}

func registerStartSessionTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("start_session",
		mcp.WithDescription("Start a contest session for one problem. Generates the public and private inputs up front and starts the session clock at the contest's own length."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("problem_id",
			mcp.Required(),
			mcp.Description("Problem id to compete on"),
		),
		mcp.WithNumber("duration_hours",
			mcp.Description("Session lifetime in hours (default: the contest's original length)"),
		),
		mcp.WithBoolean("use_same_time_scale",
			mcp.Description("Enforce the contest's resubmission cooldown between public evaluations (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("problem_id")
		if err != nil {
			return mcp.NewToolResultError("problem_id is required"), nil
		}
		p, err := cfg.Catalog.Get(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		duration := p.ContestLength
		if hours, err := req.RequireFloat("duration_hours"); err == nil && hours > 0 {
			duration = time.Duration(hours * float64(time.Hour))
		}
		sameScale := false
		if v, err := req.RequireBool("use_same_time_scale"); err == nil {
			sameScale = v
		}

		b, err := cfg.NewBackend(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("starting backend: %v", err)), nil
		}
		sessCfg := session.Config{
			Problem:          p,
			Backend:          b,
			Budget:           session.DefaultBudget(),
			Duration:         duration,
			UseSameTimeScale: sameScale,
			NumWorkers:       cfg.NumWorkers,
		}
		if cfg.Lite {
			sessCfg.LitePrivateCases = litePrivateCases
		}
		sess, err := session.New(ctx, sessCfg)
		if err != nil {
			b.Close()
			return mcp.NewToolResultError(fmt.Sprintf("starting session: %v", err)), nil
		}
		if err := cfg.Registry.Add(sess); err != nil {
			sess.Close()
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]any{
			"session_id":       sess.ID(),
			"problem_id":       p.ID,
			"duration_seconds": duration.Seconds(),
			"public_seeds":     p.PublicSeeds,
			"budget":           sess.Budget(),
		}), nil
	})
}

func registerGetRemainingTimeTool(s *server.MCPServer, reg *session.Registry) {
	tool := mcp.NewTool("get_remaining_time",
		mcp.WithDescription("Get a session's remaining lifetime and current resource usage."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, errRes := lookupSession(reg, req)
		if errRes != nil {
			return errRes, nil
		}
		return jsonResult(map[string]any{
			"session_id":        sess.ID(),
			"remaining_seconds": sess.RemainingTime().Seconds(),
			"usage":             sess.Usage(),
			"budget":            sess.Budget(),
		}), nil
	})
}

func registerCloseSessionTool(s *server.MCPServer, reg *session.Registry) {
	tool := mcp.NewTool("close_session",
		mcp.WithDescription("Close a session and release its execution backend. The session's results are not recoverable afterwards."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		if err := reg.Remove(id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("closing session: %v", err)), nil
		}
		return jsonResult(map[string]any{"session_id": id, "closed": true}), nil
	})
}

// --- Evaluation tools ---

func registerCodeRunTool(s *server.MCPServer, reg *session.Registry) {
	tool := mcp.NewTool("code_run",
		append([]mcp.ToolOption{
			mcp.WithDescription("Compile and run code against one stdin without judging. Returns stdout, stderr, the exit status and the measured time and memory."),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
		}, withEvalArgs(
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session id"),
			),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Full source of the submission"),
			),
			mcp.WithString("input",
				mcp.Required(),
				mcp.Description("Stdin for the run"),
			),
			mcp.WithNumber("time_limit",
				mcp.Description("Wall-clock limit in seconds (default: the problem's limit)"),
			),
			mcp.WithString("memory_limit",
				mcp.Description("Memory cap, e.g. '256m' or '1g' (default: the problem's limit)"),
			),
		)...)...,
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, errRes := lookupSession(reg, req)
		if errRes != nil {
			return errRes, nil
		}
		code, err := req.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("code is required"), nil
		}
		input, err := req.RequireString("input")
		if err != nil {
			return mcp.NewToolResultError("input is required"), nil
		}
		res, err := sess.CodeRun(ctx, input, code, evalOptions(req))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res), nil
	})
}

func registerCaseGenTool(s *server.MCPServer, reg *session.Registry) {
	tool := mcp.NewTool("case_gen",
		mcp.WithDescription("Generate inputs for the given seeds with the problem's own generator. Counts against the case generation budget."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id"),
		),
		mcp.WithString("seeds",
			mcp.Required(),
			mcp.Description("Comma-separated seed list, each in [0, 2^64)"),
		),
		mcp.WithString("gen_options",
			mcp.Description("JSON object of extra generator flags, e.g. {\"n\": \"30\"}"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, errRes := lookupSession(reg, req)
		if errRes != nil {
			return errRes, nil
		}
		rawSeeds, err := req.RequireString("seeds")
		if err != nil {
			return mcp.NewToolResultError("seeds is required"), nil
		}
		seeds, err := parseSeeds(rawSeeds)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		kwargs, err := parseGenOptions(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		inputs, err := sess.CaseGen(ctx, seeds, kwargs)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"seeds": seeds, "inputs": inputs}), nil
	})
}

func registerCaseEvalTool(s *server.MCPServer, reg *session.Registry) {
	tool := mcp.NewTool("case_eval",
		append([]mcp.ToolOption{
			mcp.WithDescription("Judge code on caller-provided inputs. Per-case scores are reported even for non-accepted cases. Counts against the case evaluation and execution time budgets."),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
		}, withEvalArgs(
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session id"),
			),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Full source of the submission"),
			),
			mcp.WithString("inputs",
				mcp.Required(),
				mcp.Description("JSON array of case inputs"),
			),
			mcp.WithNumber("time_limit",
				mcp.Description("Wall-clock limit in seconds (default: the problem's limit)"),
			),
			mcp.WithString("memory_limit",
				mcp.Description("Memory cap, e.g. '256m' (default: the problem's limit)"),
			),
			mcp.WithBoolean("skip_visualization",
				mcp.Description("Skip rendering per-case visualizations (default: false)"),
			),
		)...)...,
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, errRes := lookupSession(reg, req)
		if errRes != nil {
			return errRes, nil
		}
		code, err := req.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("code is required"), nil
		}
		rawInputs, err := req.RequireString("inputs")
		if err != nil {
			return mcp.NewToolResultError("inputs is required"), nil
		}
		inputs, err := parseStringArray(rawInputs, "inputs")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := sess.CaseEval(ctx, inputs, code, evalOptions(req))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res), nil
	})
}

func registerCaseGenEvalTool(s *server.MCPServer, reg *session.Registry) {
	tool := mcp.NewTool("case_gen_eval",
		append([]mcp.ToolOption{
			mcp.WithDescription("Generate inputs for the given seeds and judge code on them in one action. Rejected up front when either the generation or evaluation budget would overflow."),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
		}, withEvalArgs(
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session id"),
			),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Full source of the submission"),
			),
			mcp.WithString("seeds",
				mcp.Required(),
				mcp.Description("Comma-separated seed list, each in [0, 2^64)"),
			),
			mcp.WithString("gen_options",
				mcp.Description("JSON object of extra generator flags"),
			),
			mcp.WithNumber("time_limit",
				mcp.Description("Wall-clock limit in seconds (default: the problem's limit)"),
			),
			mcp.WithString("memory_limit",
				mcp.Description("Memory cap (default: the problem's limit)"),
			),
			mcp.WithBoolean("skip_visualization",
				mcp.Description("Skip rendering per-case visualizations (default: false)"),
			),
		)...)...,
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, errRes := lookupSession(reg, req)
		if errRes != nil {
			return errRes, nil
		}
		code, err := req.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("code is required"), nil
		}
		rawSeeds, err := req.RequireString("seeds")
		if err != nil {
			return mcp.NewToolResultError("seeds is required"), nil
		}
		seeds, err := parseSeeds(rawSeeds)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		kwargs, err := parseGenOptions(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := sess.CaseGenEval(ctx, seeds, kwargs, code, evalOptions(req))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res), nil
	})
}

func registerCaseVisTool(s *server.MCPServer, reg *session.Registry) {
	tool := mcp.NewTool("case_vis",
		mcp.WithDescription("Render visualizations for already-produced outputs without re-running the solution. Consumes no budget."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id"),
		),
		mcp.WithString("inputs",
			mcp.Required(),
			mcp.Description("JSON array of case inputs"),
		),
		mcp.WithString("outputs",
			mcp.Required(),
			mcp.Description("JSON array of solution outputs, one per input"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, errRes := lookupSession(reg, req)
		if errRes != nil {
			return errRes, nil
		}
		rawInputs, err := req.RequireString("inputs")
		if err != nil {
			return mcp.NewToolResultError("inputs is required"), nil
		}
		inputs, err := parseStringArray(rawInputs, "inputs")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rawOutputs, err := req.RequireString("outputs")
		if err != nil {
			return mcp.NewToolResultError("outputs is required"), nil
		}
		outputs, err := parseStringArray(rawOutputs, "outputs")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		images, err := sess.LocalVisualization(ctx, inputs, outputs)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"visualizations": images}), nil
	})
}

func registerCaseGenVisTool(s *server.MCPServer, reg *session.Registry) {
	tool := mcp.NewTool("case_gen_vis",
		append([]mcp.ToolOption{
			mcp.WithDescription("Generate one input, judge code on it and return the rendered visualization. Counts against the generation and evaluation budgets like case_gen_eval."),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
		}, withEvalArgs(
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session id"),
			),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Full source of the submission"),
			),
			mcp.WithString("seed",
				mcp.Description("Generator seed in [0, 2^64) (default: 0)"),
			),
			mcp.WithString("gen_options",
				mcp.Description("JSON object of extra generator flags"),
			),
			mcp.WithNumber("time_limit",
				mcp.Description("Wall-clock limit in seconds (default: the problem's limit)"),
			),
			mcp.WithString("memory_limit",
				mcp.Description("Memory cap (default: the problem's limit)"),
			),
		)...)...,
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, errRes := lookupSession(reg, req)
		if errRes != nil {
			return errRes, nil
		}
		code, err := req.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("code is required"), nil
		}
		var seed uint64
		if raw, err := req.RequireString("seed"); err == nil && raw != "" {
			seed, err = session.ParseSeed(raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		kwargs, err := parseGenOptions(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts := evalOptions(req)
		opts.SkipVis = false
		res, err := sess.CaseGenEval(ctx, []uint64{seed}, kwargs, code, opts)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		c := res.Cases[0]
		if c.Visualization == "" {
			return mcp.NewToolResultError(fmt.Sprintf("no visualization produced (verdict %s)", c.Verdict)), nil
		}
		return jsonResult(map[string]any{
			"seed":           seed,
			"judge_result":   c.Verdict,
			"absolute_score": c.AbsoluteScore,
			"visualization":  c.Visualization,
		}), nil
	})
}

func registerPublicEvalTool(s *server.MCPServer, reg *session.Registry) {
	tool := mcp.NewTool("public_eval",
		append([]mcp.ToolOption{
			mcp.WithDescription("Judge code on the pre-generated public inputs with the problem's own limits, like a leaderboard submission. Counts against the public evaluation budget and, on the contest time scale, the resubmission cooldown."),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
		}, withEvalArgs(
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session id"),
			),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Full source of the submission"),
			),
			mcp.WithBoolean("skip_visualization",
				mcp.Description("Skip rendering per-case visualizations (default: true)"),
			),
		)...)...,
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, errRes := lookupSession(reg, req)
		if errRes != nil {
			return errRes, nil
		}
		code, err := req.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("code is required"), nil
		}
		opts := evalOptions(req)
		if _, err := req.RequireBool("skip_visualization"); err != nil {
			opts.SkipVis = true
		}
		res, err := sess.PublicEval(ctx, code, opts)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res), nil
	})
}

func registerPrivateEvalTool(s *server.MCPServer, reg *session.Registry) {
	tool := mcp.NewTool("private_eval",
		append([]mcp.ToolOption{
			mcp.WithDescription("Judge code on the private inputs and convert the score into a contest rank and performance. Callable once per session; the session is finished afterwards. Per-case inputs and outputs are withheld."),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(true),
		}, withEvalArgs(
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session id"),
			),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Full source of the final submission"),
			),
		)...)...,
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, errRes := lookupSession(reg, req)
		if errRes != nil {
			return errRes, nil
		}
		code, err := req.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("code is required"), nil
		}
		res, rank, err := sess.PrivateEval(ctx, code, evalOptions(req))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{
			"result":          res,
			"rank":            rank.Rank,
			"rank_fractional": rank.RankFrac,
			"performance":     rank.Performance,
		}), nil
	})
}
