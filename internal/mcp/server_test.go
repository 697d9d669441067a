package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/arena/internal/backend"
	"github.com/hurttlocker/arena/internal/problem"
	"github.com/hurttlocker/arena/internal/session"
)

// fakeBackend scripts a deterministic contest environment for tool
// tests: the generator derives cases from seeds, the compiler always
// succeeds, the tester awards 100 points.
type fakeBackend struct {
	mu    sync.Mutex
	files map[string]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{files: make(map[string]string)}
}

func (f *fakeBackend) put(filePath, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[filePath] = content
}

func (f *fakeBackend) WriteFile(ctx context.Context, filePath, content string) error {
	f.put(filePath, content)
	return nil
}

func (f *fakeBackend) ReadFile(ctx context.Context, filePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[filePath]
	if !ok {
		return "", fmt.Errorf("no such file: %s", filePath)
	}
	return content, nil
}

func (f *fakeBackend) WriteFiles(ctx context.Context, files map[string]string) error {
	for filePath, content := range files {
		f.put(filePath, content)
	}
	return nil
}

func (f *fakeBackend) ReadFiles(ctx context.Context, paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, filePath := range paths {
		content, err := f.ReadFile(ctx, filePath)
		if err != nil {
			return nil, err
		}
		out[i] = content
	}
	return out, nil
}

func (f *fakeBackend) ListFiles(ctx context.Context, dir, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for filePath := range f.files {
		if path.Dir(filePath) != dir {
			continue
		}
		if ok, _ := path.Match(pattern, path.Base(filePath)); ok {
			out = append(out, filePath)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeBackend) FileSize(ctx context.Context, filePath string) (int64, error) {
	content, err := f.ReadFile(ctx, filePath)
	if err != nil {
		return 0, err
	}
	return int64(len(content)), nil
}

func (f *fakeBackend) Mkdir(ctx context.Context, dir string) error { return nil }

const fakeProfiles = `{"exit_status": "0", "elapsed_time_seconds": "0.42", ` +
	`"user_cpu_seconds": "0.40", "system_cpu_seconds": "0.01", ` +
	`"max_resident_set_size_kbytes": "10240"}`

func (f *fakeBackend) Exec(ctx context.Context, cmd, workdir string, timeout time.Duration) (backend.ExecResult, error) {
	switch {
	case strings.HasPrefix(cmd, "rm -rf in && mkdir in"):
		f.mu.Lock()
		for filePath := range f.files {
			if strings.HasPrefix(filePath, "/tmp/gen/in/") {
				delete(f.files, filePath)
			}
		}
		f.mu.Unlock()
		return backend.ExecResult{}, nil
	case strings.HasPrefix(cmd, backend.GenBin):
		f.mu.Lock()
		seeds := strings.Fields(f.files["/tmp/gen/seeds.txt"])
		f.mu.Unlock()
		for i, seed := range seeds {
			f.put(fmt.Sprintf("/tmp/gen/in/%04d.txt", i), "case "+seed+"\n")
		}
		return backend.ExecResult{}, nil
	case strings.Contains(cmd, "g++"):
		f.put("/tmp/a.out", "binary")
		return backend.ExecResult{}, nil
	case strings.Contains(cmd, "/usr/bin/time"):
		_, after, _ := strings.Cut(cmd, "-o ")
		profilesPath := after[:strings.IndexByte(after, ' ')]
		f.put(profilesPath, fakeProfiles)
		f.put(path.Dir(profilesPath)+"/output.txt", "42\n")
		return backend.ExecResult{}, nil
	case strings.HasPrefix(cmd, backend.TesterBin):
		return backend.ExecResult{Stderr: "Score = 100\n"}, nil
	case strings.HasPrefix(cmd, backend.VisBin):
		f.put(workdir+"/out.svg", "<svg>ok</svg>")
		return backend.ExecResult{}, nil
	case strings.HasPrefix(cmd, "rm -rf /tmp/cases"):
		return backend.ExecResult{}, nil
	}
	return backend.ExecResult{ExitCode: 127, Stderr: "unexpected command: " + cmd}, nil
}

func (f *fakeBackend) SetupToolLinks(ctx context.Context, toolDir string) error { return nil }

func (f *fakeBackend) Close() error { return nil }

var _ backend.Backend = (*fakeBackend)(nil)

func writeBundle(t *testing.T, root, id string) {
	t.Helper()
	files := map[string]string{
		"problem.yaml": `id: ` + id + `
problem_type: BATCH
score_type: MAXIMIZE
time_limit_seconds: 2.0
memory_limit_bytes: 1073741824
contest_hours: 4
visualization: NONE
`,
		"statement.md":         "# " + id + "\n\nPack the squares.\n",
		"public_seeds.txt":     "0\n1\n",
		"private_seeds.txt":    "100\n101\n102\n",
		"standings.yaml":       "- rank: 1\n  score: 500\n- rank: 2\n  score: 300\n- rank: 3\n  score: 0\n",
		"performances.yaml":    "- rank: 1\n  performance: 3000\n- rank: 2\n  performance: 2000\n- rank: 3\n  performance: 0\n",
		"tools/src/bin/gen.rs": "fn main() { /* input generator */ }\n",
	}
	for name, content := range files {
		p := filepath.Join(root, id, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func setupServer(t *testing.T) *server.MCPServer {
	t.Helper()
	root := t.TempDir()
	writeBundle(t, root, "ahc001")

	catalog, err := problem.NewCatalog(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { catalog.Close() })
	if err := catalog.Sync(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	registry := session.NewRegistry(4)
	t.Cleanup(func() { registry.CloseAll() })

	return NewServer(ServerConfig{
		Catalog:    catalog,
		Registry:   registry,
		Version:    "test",
		NumWorkers: 1,
		NewBackend: func(ctx context.Context) (backend.Backend, error) {
			return newFakeBackend(), nil
		},
	})
}

// callTool invokes an MCP tool through the JSON-RPC surface.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	result := srv.HandleMessage(context.Background(), raw)
	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return callResult
}

func textContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

func decodeJSON(t *testing.T, raw string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		t.Fatalf("decoding %q: %v", raw, err)
	}
}

func TestCheckAppTool(t *testing.T) {
	srv := setupServer(t)
	res := callTool(t, srv, "check_app", nil)
	if res.IsError {
		t.Fatalf("check_app failed: %s", textContent(t, res))
	}
	var out struct {
		Status      string `json:"status"`
		NumProblems int    `json:"num_problems"`
	}
	decodeJSON(t, textContent(t, res), &out)
	if out.Status != "ok" || out.NumProblems != 1 {
		t.Errorf("check_app = %+v", out)
	}
}

func TestCatalogTools(t *testing.T) {
	srv := setupServer(t)

	res := callTool(t, srv, "list_problem_ids", nil)
	var ids struct {
		ProblemIDs []string `json:"problem_ids"`
	}
	decodeJSON(t, textContent(t, res), &ids)
	if len(ids.ProblemIDs) != 1 || ids.ProblemIDs[0] != "ahc001" {
		t.Errorf("problem ids = %v", ids.ProblemIDs)
	}

	res = callTool(t, srv, "get_problem", map[string]any{"problem_id": "ahc001"})
	var prob struct {
		ProblemType string `json:"problem_type"`
		Statement   string `json:"statement"`
	}
	decodeJSON(t, textContent(t, res), &prob)
	if prob.ProblemType != "BATCH" || !strings.Contains(prob.Statement, "squares") {
		t.Errorf("get_problem = %+v", prob)
	}

	res = callTool(t, srv, "get_public_seeds", map[string]any{"problem_id": "ahc001"})
	var seeds struct {
		PublicSeeds []uint64 `json:"public_seeds"`
	}
	decodeJSON(t, textContent(t, res), &seeds)
	if len(seeds.PublicSeeds) != 2 {
		t.Errorf("public seeds = %v", seeds.PublicSeeds)
	}

	res = callTool(t, srv, "get_rust_tool_source", map[string]any{"problem_id": "ahc001", "tool": "gen"})
	if !strings.Contains(textContent(t, res), "input generator") {
		t.Errorf("tool source = %q", textContent(t, res))
	}

	res = callTool(t, srv, "get_problem", map[string]any{"problem_id": "nope"})
	if !res.IsError {
		t.Error("unknown problem id should fail")
	}
}

func TestSessionLifecycleTools(t *testing.T) {
	srv := setupServer(t)

	res := callTool(t, srv, "start_session", map[string]any{"problem_id": "ahc001"})
	if res.IsError {
		t.Fatalf("start_session failed: %s", textContent(t, res))
	}
	var started struct {
		SessionID       string  `json:"session_id"`
		DurationSeconds float64 `json:"duration_seconds"`
	}
	decodeJSON(t, textContent(t, res), &started)
	if started.SessionID == "" {
		t.Fatal("no session id returned")
	}
	if started.DurationSeconds != 4*3600 {
		t.Errorf("duration = %v", started.DurationSeconds)
	}

	res = callTool(t, srv, "get_remaining_time", map[string]any{"session_id": started.SessionID})
	var remaining struct {
		RemainingSeconds float64 `json:"remaining_seconds"`
	}
	decodeJSON(t, textContent(t, res), &remaining)
	if remaining.RemainingSeconds <= 0 {
		t.Errorf("remaining = %v", remaining.RemainingSeconds)
	}

	res = callTool(t, srv, "case_gen", map[string]any{"session_id": started.SessionID, "seeds": "7, 42"})
	if res.IsError {
		t.Fatalf("case_gen failed: %s", textContent(t, res))
	}
	var gen struct {
		Inputs []string `json:"inputs"`
	}
	decodeJSON(t, textContent(t, res), &gen)
	if len(gen.Inputs) != 2 || gen.Inputs[0] != "case 7\n" {
		t.Errorf("inputs = %q", gen.Inputs)
	}

	res = callTool(t, srv, "case_eval", map[string]any{
		"session_id": started.SessionID,
		"code":       "int main() {}",
		"inputs":     `["case 7\n"]`,
	})
	if res.IsError {
		t.Fatalf("case_eval failed: %s", textContent(t, res))
	}
	var eval struct {
		OverallVerdict string `json:"overall_judge_result"`
		OverallScore   int64  `json:"overall_absolute_score"`
	}
	decodeJSON(t, textContent(t, res), &eval)
	if eval.OverallVerdict != "ACCEPTED" || eval.OverallScore != 100 {
		t.Errorf("case_eval = %+v", eval)
	}

	res = callTool(t, srv, "public_eval", map[string]any{
		"session_id": started.SessionID,
		"code":       "int main() {}",
	})
	if res.IsError {
		t.Fatalf("public_eval failed: %s", textContent(t, res))
	}
	decodeJSON(t, textContent(t, res), &eval)
	if eval.OverallScore != 200 {
		t.Errorf("public_eval score = %d", eval.OverallScore)
	}

	res = callTool(t, srv, "private_eval", map[string]any{
		"session_id": started.SessionID,
		"code":       "int main() {}",
	})
	if res.IsError {
		t.Fatalf("private_eval failed: %s", textContent(t, res))
	}
	var private struct {
		Rank        int `json:"rank"`
		Performance int `json:"performance"`
		Result      struct {
			OverallScore int64 `json:"overall_absolute_score"`
		} `json:"result"`
	}
	decodeJSON(t, textContent(t, res), &private)
	// 3 private cases at 100 each land exactly on the rank-2 score.
	if private.Result.OverallScore != 300 || private.Rank != 2 || private.Performance != 2000 {
		t.Errorf("private_eval = %+v", private)
	}

	res = callTool(t, srv, "case_gen", map[string]any{"session_id": started.SessionID, "seeds": "1"})
	if !res.IsError {
		t.Error("actions after private_eval should fail")
	}

	res = callTool(t, srv, "close_session", map[string]any{"session_id": started.SessionID})
	if res.IsError {
		t.Fatalf("close_session failed: %s", textContent(t, res))
	}
	res = callTool(t, srv, "get_remaining_time", map[string]any{"session_id": started.SessionID})
	if !res.IsError {
		t.Error("closed session still resolvable")
	}
}

func TestCodeRunTool(t *testing.T) {
	srv := setupServer(t)
	res := callTool(t, srv, "start_session", map[string]any{"problem_id": "ahc001"})
	var started struct {
		SessionID string `json:"session_id"`
	}
	decodeJSON(t, textContent(t, res), &started)

	res = callTool(t, srv, "code_run", map[string]any{
		"session_id": started.SessionID,
		"code":       "int main() {}",
		"input":      "3\n1 2 3\n",
	})
	if res.IsError {
		t.Fatalf("code_run failed: %s", textContent(t, res))
	}
	var out struct {
		Stdout     string  `json:"stdout"`
		ExitStatus int     `json:"exit_status"`
		Time       float64 `json:"execution_time"`
	}
	decodeJSON(t, textContent(t, res), &out)
	if out.ExitStatus != 0 || out.Stdout != "42\n" {
		t.Errorf("code_run = %+v", out)
	}
}

func TestToolValidationErrors(t *testing.T) {
	srv := setupServer(t)

	res := callTool(t, srv, "start_session", map[string]any{"problem_id": "missing"})
	if !res.IsError {
		t.Error("start_session accepted an unknown problem")
	}

	res = callTool(t, srv, "case_gen", map[string]any{"session_id": "nope", "seeds": "1"})
	if !res.IsError {
		t.Error("case_gen accepted an unknown session")
	}

	started := callTool(t, srv, "start_session", map[string]any{"problem_id": "ahc001"})
	var s struct {
		SessionID string `json:"session_id"`
	}
	decodeJSON(t, textContent(t, started), &s)

	res = callTool(t, srv, "case_gen", map[string]any{"session_id": s.SessionID, "seeds": "-1"})
	if !res.IsError {
		t.Error("negative seed accepted")
	}
	res = callTool(t, srv, "case_eval", map[string]any{"session_id": s.SessionID, "code": "int main() {}", "inputs": "not json"})
	if !res.IsError {
		t.Error("malformed inputs accepted")
	}

	// The fixture problem has no visualizer, so case_gen_vis reports
	// a clean error after judging rather than an empty image.
	res = callTool(t, srv, "case_gen_vis", map[string]any{"session_id": s.SessionID, "code": "int main() {}", "seed": "7"})
	if !res.IsError {
		t.Error("case_gen_vis produced an image without a visualizer")
	}
	if got := textContent(t, res); !strings.Contains(got, "no visualization") {
		t.Errorf("case_gen_vis error = %q", got)
	}
}

func TestPublicEvalVisualizationOffByDefault(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "ahc004")
	metaPath := filepath.Join(root, "ahc004", "problem.yaml")
	meta, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatal(err)
	}
	svgMeta := strings.Replace(string(meta), "visualization: NONE", "visualization: SVG", 1)
	if err := os.WriteFile(metaPath, []byte(svgMeta), 0o644); err != nil {
		t.Fatal(err)
	}

	catalog, err := problem.NewCatalog(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { catalog.Close() })
	if err := catalog.Sync(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	registry := session.NewRegistry(4)
	t.Cleanup(func() { registry.CloseAll() })
	srv := NewServer(ServerConfig{
		Catalog:    catalog,
		Registry:   registry,
		NumWorkers: 1,
		NewBackend: func(ctx context.Context) (backend.Backend, error) {
			return newFakeBackend(), nil
		},
	})

	started := callTool(t, srv, "start_session", map[string]any{"problem_id": "ahc004"})
	var s struct {
		SessionID string `json:"session_id"`
	}
	decodeJSON(t, textContent(t, started), &s)

	type evalResult struct {
		Cases []struct {
			Visualization string `json:"local_visualization"`
		} `json:"case_results"`
	}

	res := callTool(t, srv, "public_eval", map[string]any{
		"session_id": s.SessionID,
		"code":       "int main() {}",
	})
	if res.IsError {
		t.Fatalf("public_eval failed: %s", textContent(t, res))
	}
	var bare evalResult
	decodeJSON(t, textContent(t, res), &bare)
	for i, c := range bare.Cases {
		if c.Visualization != "" {
			t.Errorf("case %d: visualization rendered without being requested", i)
		}
	}

	res = callTool(t, srv, "public_eval", map[string]any{
		"session_id":         s.SessionID,
		"code":               "int main() {}",
		"skip_visualization": false,
	})
	if res.IsError {
		t.Fatalf("public_eval with visualization failed: %s", textContent(t, res))
	}
	var withVis evalResult
	decodeJSON(t, textContent(t, res), &withVis)
	if len(withVis.Cases) == 0 || withVis.Cases[0].Visualization != "<svg>ok</svg>" {
		t.Errorf("cases = %+v, want rendered svg", withVis.Cases)
	}
}

func TestSessionCapOverMCP(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "ahc001")
	catalog, err := problem.NewCatalog(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { catalog.Close() })
	if err := catalog.Sync(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	registry := session.NewRegistry(1)
	t.Cleanup(func() { registry.CloseAll() })
	srv := NewServer(ServerConfig{
		Catalog:    catalog,
		Registry:   registry,
		NumWorkers: 1,
		NewBackend: func(ctx context.Context) (backend.Backend, error) {
			return newFakeBackend(), nil
		},
	})

	if res := callTool(t, srv, "start_session", map[string]any{"problem_id": "ahc001"}); res.IsError {
		t.Fatalf("first session failed: %s", textContent(t, res))
	}
	if res := callTool(t, srv, "start_session", map[string]any{"problem_id": "ahc001"}); !res.IsError {
		t.Error("second session accepted over the cap")
	}
}
