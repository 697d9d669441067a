package session

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hurttlocker/arena/internal/backend"
	"github.com/hurttlocker/arena/internal/judge"
	"github.com/hurttlocker/arena/internal/problem"
	"github.com/hurttlocker/arena/internal/scoring"
)

// fakeBackend keeps files in memory and scripts a deterministic
// contest environment: a generator that derives each case from its
// seed, a compiler that always succeeds and a tester that awards a
// fixed score.
type fakeBackend struct {
	mu       sync.Mutex
	files    map[string]string
	genCalls int
	score    int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{files: make(map[string]string), score: 100}
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

const caseProfiles = `{"exit_status": "0", "elapsed_time_seconds": "1.23", ` +
	`"user_cpu_seconds": "1.10", "system_cpu_seconds": "0.05", ` +
	`"max_resident_set_size_kbytes": "20480"}`

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
		f.genCalls++
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
		f.put(profilesPath, caseProfiles)
		f.put(path.Dir(profilesPath)+"/output.txt", "42\n")
		return backend.ExecResult{}, nil
	case strings.HasPrefix(cmd, backend.TesterBin):
		f.mu.Lock()
		score := f.score
		f.mu.Unlock()
		return backend.ExecResult{Stderr: fmt.Sprintf("Score = %d\n", score)}, nil
	case strings.HasPrefix(cmd, "rm -rf /tmp/cases"):
		return backend.ExecResult{}, nil
	}
	return backend.ExecResult{ExitCode: 127, Stderr: "unexpected command: " + cmd}, nil
}

func (f *fakeBackend) SetupToolLinks(ctx context.Context, toolDir string) error { return nil }

func (f *fakeBackend) Close() error { return nil }

var _ backend.Backend = (*fakeBackend)(nil)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testProblem(t *testing.T) *problem.Problem {
	t.Helper()
	standings, err := scoring.NewStandings([]scoring.StandingEntry{
		{Rank: 1, Score: 500},
		{Rank: 2, Score: 300},
		{Rank: 3, Score: 100},
		{Rank: 4, Score: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	perfs, err := scoring.NewRankPerformanceMap([]scoring.PerformanceAnchor{
		{Rank: 1, Performance: 3000},
		{Rank: 2, Performance: 2000},
		{Rank: 3, Performance: 1000},
		{Rank: 4, Performance: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &problem.Problem{
		ID:            "ahc900",
		Type:          judge.Batch,
		ScoreType:     problem.Maximize,
		TimeLimit:     2.0,
		MemoryLimit:   1 << 30,
		ContestLength: 4 * time.Hour,
		VisKind:       judge.VisNone,
		PublicSeeds:   []uint64{0, 1},
		PrivateSeeds:  []uint64{100, 101, 102},
		Standings:     standings,
		Performances:  perfs,
		Dir:           "/problems/ahc900",
		ToolDir:       "/problems/ahc900/tools",
	}
}

func testBudget() ResourceUsage {
	return ResourceUsage{
		NumCaseGen:            1000,
		NumCaseEval:           1000,
		ExecutionTimeCaseEval: 3600,
		NumCallPublicEval:     5,
		NumCallPrivateEval:    1,
	}
}

func newTestSession(t *testing.T, fb *fakeBackend, p *problem.Problem, budget ResourceUsage, sameScale bool) (*Session, *fakeClock) {
	t.Helper()
	s, err := New(context.Background(), Config{
		Problem:          p,
		Backend:          fb,
		Budget:           budget,
		Duration:         4 * time.Hour,
		UseSameTimeScale: sameScale,
		NumWorkers:       1,
	})
	if err != nil {
		t.Fatal(err)
	}
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	s.now = clock.now
	s.startedAt = clock.t
	return s, clock
}

func TestNewSessionGeneratesInputs(t *testing.T) {
	fb := newFakeBackend()
	s, _ := newTestSession(t, fb, testProblem(t), testBudget(), false)
	if fb.genCalls != 2 {
		t.Errorf("generator ran %d times, want 2 (public + private)", fb.genCalls)
	}
	if len(s.publicInputs) != 2 || s.publicInputs[1] != "case 1\n" {
		t.Errorf("public inputs = %q", s.publicInputs)
	}
	if len(s.privateInputs) != 3 || s.privateInputs[0] != "case 100\n" {
		t.Errorf("private inputs = %q", s.privateInputs)
	}
	if got := s.RemainingTime(); got != 4*time.Hour {
		t.Errorf("remaining time = %v", got)
	}
}

func TestLitePrivateCases(t *testing.T) {
	fb := newFakeBackend()
	s, err := New(context.Background(), Config{
		Problem:          testProblem(t),
		Backend:          fb,
		Budget:           testBudget(),
		Duration:         time.Hour,
		NumWorkers:       1,
		LitePrivateCases: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.privateInputs) != 2 {
		t.Errorf("private inputs = %d, want 2", len(s.privateInputs))
	}
}

func TestParseSeedBoundaries(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"0", 0, true},
		{"18446744073709551615", 1<<64 - 1, true},
		{"-1", 0, false},
		{"18446744073709551616", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseSeed(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseSeed(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("ParseSeed(%q) = %d", tt.in, got)
		}
	}
}

func TestParseMemoryLimitBoundaries(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"6291456b", 6291456, true},
		{"6291455b", 0, false},
		{"6m", 6 << 20, true},
		{"256m", 256 << 20, true},
		{"1g", 1 << 30, true},
		{"3g", 2 << 30, true}, // clamped to the global cap
		{"1073741824", 1 << 30, true},
		{"", 0, false},
		{"lots", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseMemoryLimit(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseMemoryLimit(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("ParseMemoryLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestValidateCodeBoundaries(t *testing.T) {
	if err := ValidateCode(strings.Repeat("x", MaxCodeBytes)); err != nil {
		t.Errorf("code at the size limit rejected: %v", err)
	}
	if err := ValidateCode(strings.Repeat("x", MaxCodeBytes+1)); err == nil {
		t.Error("oversize code accepted")
	}
	if err := ValidateCode(""); err == nil {
		t.Error("empty code accepted")
	}
}

func TestCaseGenEvalBudgetPrecheck(t *testing.T) {
	fb := newFakeBackend()
	budget := testBudget()
	budget.NumCaseGen = 2
	s, _ := newTestSession(t, fb, testProblem(t), budget, false)
	genCallsAfterSetup := fb.genCalls

	_, err := s.CaseGenEval(context.Background(), []uint64{0, 1, 2}, nil, "int main() {}", EvalOptions{})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err = %v, want budget exceeded", err)
	}
	if fb.genCalls != genCallsAfterSetup {
		t.Error("generator ran for a rejected action")
	}
	if got := s.Usage(); got != (ResourceUsage{}) {
		t.Errorf("usage changed on a rejected action: %+v", got)
	}
}

func TestCaseGenConsumesBudget(t *testing.T) {
	fb := newFakeBackend()
	s, _ := newTestSession(t, fb, testProblem(t), testBudget(), false)
	inputs, err := s.CaseGen(context.Background(), []uint64{7, 42}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 2 || inputs[0] != "case 7\n" || inputs[1] != "case 42\n" {
		t.Errorf("inputs = %q", inputs)
	}
	if got := s.Usage().NumCaseGen; got != 2 {
		t.Errorf("NumCaseGen = %d", got)
	}
	actions := s.Actions()
	if len(actions) != 1 || actions[0].Name != "case_gen" {
		t.Errorf("actions = %+v", actions)
	}
}

func TestCaseEvalScoresNonAccepted(t *testing.T) {
	fb := newFakeBackend()
	s, _ := newTestSession(t, fb, testProblem(t), testBudget(), false)
	res, err := s.CaseEval(context.Background(), []string{"in0", "in1"}, "int main() {}", EvalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.OverallVerdict != judge.Accepted {
		t.Errorf("verdict = %s", res.OverallVerdict)
	}
	if res.OverallAbsoluteScore != 200 {
		t.Errorf("score = %d", res.OverallAbsoluteScore)
	}
	usage := s.Usage()
	if usage.NumCaseEval != 2 {
		t.Errorf("NumCaseEval = %d", usage.NumCaseEval)
	}
	if usage.ExecutionTimeCaseEval != 2.46 {
		t.Errorf("ExecutionTimeCaseEval = %v", usage.ExecutionTimeCaseEval)
	}
}

func TestExecutionTimeBudgetClampsAndBlocks(t *testing.T) {
	fb := newFakeBackend()
	budget := testBudget()
	budget.ExecutionTimeCaseEval = 2.0
	s, _ := newTestSession(t, fb, testProblem(t), budget, false)

	// 2 cases at 1.23s each overshoot the 2s budget: the result is
	// still returned, usage is clamped to the budget.
	res, err := s.CaseEval(context.Background(), []string{"in0", "in1"}, "int main() {}", EvalOptions{})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err = %v, want budget exceeded", err)
	}
	if len(res.Cases) != 2 {
		t.Errorf("overshooting eval lost its result: %+v", res)
	}
	if got := s.Usage().ExecutionTimeCaseEval; got != 2.0 {
		t.Errorf("usage not clamped: %v", got)
	}

	// The budget is used up: no further evaluation starts.
	if _, err := s.CaseEval(context.Background(), []string{"in0"}, "int main() {}", EvalOptions{}); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("err = %v, want budget exceeded", err)
	}
	if _, err := s.CodeRun(context.Background(), "1\n", "int main() {}", EvalOptions{}); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("code_run err = %v, want budget exceeded", err)
	}
}

func TestPublicEvalIntervalAndBudget(t *testing.T) {
	fb := newFakeBackend()
	budget := testBudget()
	budget.NumCallPublicEval = 2
	s, clock := newTestSession(t, fb, testProblem(t), budget, true)

	res, err := s.PublicEval(context.Background(), "int main() {}", EvalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.OverallAbsoluteScore != 200 {
		t.Errorf("score = %d", res.OverallAbsoluteScore)
	}

	// 4h contest: resubmission cooldown is 5 minutes.
	clock.advance(time.Minute)
	if _, err := s.PublicEval(context.Background(), "int main() {}", EvalOptions{}); !errors.Is(err, ErrSubmissionInterval) {
		t.Fatalf("err = %v, want submission interval", err)
	}
	clock.advance(4 * time.Minute)
	if _, err := s.PublicEval(context.Background(), "int main() {}", EvalOptions{}); err != nil {
		t.Fatal(err)
	}

	clock.advance(5 * time.Minute)
	if _, err := s.PublicEval(context.Background(), "int main() {}", EvalOptions{}); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("err = %v, want budget exceeded", err)
	}
}

func TestPublicEvalIgnoresLimitOverrides(t *testing.T) {
	fb := newFakeBackend()
	s, _ := newTestSession(t, fb, testProblem(t), testBudget(), false)
	// Leaderboard runs always use the problem's own limits.
	if _, err := s.PublicEval(context.Background(), "int main() {}", EvalOptions{TimeLimit: -5, MemoryLimit: "bogus"}); err != nil {
		t.Fatal(err)
	}
}

func TestPrivateEvalFinishesSession(t *testing.T) {
	fb := newFakeBackend()
	s, _ := newTestSession(t, fb, testProblem(t), testBudget(), false)

	res, rank, err := s.PrivateEval(context.Background(), "int main() {}", EvalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	// 3 private cases at 100 each = 300, an exact standings match.
	if res.OverallAbsoluteScore != 300 {
		t.Errorf("score = %d", res.OverallAbsoluteScore)
	}
	if rank.Rank != 2 || rank.RankFrac != 2.0 {
		t.Errorf("rank = %+v", rank)
	}
	if rank.Performance != 2000 {
		t.Errorf("performance = %d", rank.Performance)
	}
	for i, c := range res.Cases {
		if c.Input != "" || c.Output != "" || c.Error != "" || c.Message != "" || c.Visualization != "" {
			t.Errorf("case %d leaks details: %+v", i, c)
		}
	}

	if _, _, err := s.PrivateEval(context.Background(), "int main() {}", EvalOptions{}); !errors.Is(err, ErrSessionFinished) {
		t.Errorf("second private eval err = %v", err)
	}
	if _, err := s.CaseGen(context.Background(), []uint64{1}, nil); !errors.Is(err, ErrSessionFinished) {
		t.Errorf("post-finish case_gen err = %v", err)
	}
}

func TestPublicEvalRelativeScores(t *testing.T) {
	p := testProblem(t)
	rel, err := scoring.NewRelativeResults([][]int64{
		{100, 200},
		{300, 150},
	}, scoring.RelativeMax, 1000)
	if err != nil {
		t.Fatal(err)
	}
	p.Relative = rel

	fb := newFakeBackend()
	s, _ := newTestSession(t, fb, p, testBudget(), false)
	res, err := s.PublicEval(context.Background(), "int main() {}", EvalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	// Candidate scores 100 on both cases: 1000*100/200 and 1000*100/300.
	if res.Cases[0].RelativeScore != 500 || res.Cases[1].RelativeScore != 333 {
		t.Errorf("relative scores = %d, %d", res.Cases[0].RelativeScore, res.Cases[1].RelativeScore)
	}
	if res.OverallRelativeScore != 833 {
		t.Errorf("overall relative = %d", res.OverallRelativeScore)
	}
}

func TestSessionLifetimeExpires(t *testing.T) {
	fb := newFakeBackend()
	s, clock := newTestSession(t, fb, testProblem(t), testBudget(), false)
	clock.advance(4 * time.Hour)
	if got := s.RemainingTime(); got != 0 {
		t.Errorf("remaining time = %v", got)
	}
	if _, err := s.CaseGen(context.Background(), []uint64{1}, nil); !errors.Is(err, ErrSessionFinished) {
		t.Errorf("err = %v, want session finished", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	fb := newFakeBackend()
	p := testProblem(t)
	s, _ := newTestSession(t, fb, p, testBudget(), true)
	if _, err := s.CaseGen(context.Background(), []uint64{7}, nil); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	path := t.TempDir() + "/session.yaml"
	if err := snap.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.SessionID != s.ID() || loaded.ProblemID != "ahc900" {
		t.Errorf("snapshot ids = %q / %q", loaded.SessionID, loaded.ProblemID)
	}
	if loaded.Usage.NumCaseGen != 1 {
		t.Errorf("snapshot usage = %+v", loaded.Usage)
	}
	if loaded.Duration != 4*time.Hour {
		t.Errorf("snapshot duration = %v", loaded.Duration)
	}

	genCallsBefore := fb.genCalls
	resumed, err := Resume(context.Background(), loaded, p, fb)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.ID() != s.ID() {
		t.Errorf("resumed id = %q", resumed.ID())
	}
	if got := resumed.Usage(); got.NumCaseGen != 1 {
		t.Errorf("resumed usage = %+v", got)
	}
	if len(resumed.Actions()) != 1 {
		t.Errorf("resumed actions = %+v", resumed.Actions())
	}
	if fb.genCalls != genCallsBefore+2 {
		t.Errorf("resume regenerated %d input sets, want 2", fb.genCalls-genCallsBefore)
	}
	if resumed.RemainingTime() <= 0 {
		t.Error("resumed session already expired")
	}
}

func TestResumeRejectsFinishedSnapshot(t *testing.T) {
	snap := Snapshot{ProblemID: "ahc900", PrivateEvalDone: true}
	if _, err := Resume(context.Background(), snap, testProblem(t), newFakeBackend()); !errors.Is(err, ErrSessionFinished) {
		t.Errorf("err = %v, want session finished", err)
	}
}

func TestRegistryCapAndLookup(t *testing.T) {
	fb := newFakeBackend()
	p := testProblem(t)
	r := NewRegistry(2)

	s1, _ := newTestSession(t, fb, p, testBudget(), false)
	s2, _ := newTestSession(t, fb, p, testBudget(), false)
	if err := r.Add(s1); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(s2); err != nil {
		t.Fatal(err)
	}
	s3, _ := newTestSession(t, fb, p, testBudget(), false)
	if err := r.Add(s3); err == nil {
		t.Error("third session accepted over the cap")
	}

	got, err := r.Get(s1.ID())
	if err != nil || got != s1 {
		t.Errorf("Get = %v, %v", got, err)
	}
	if _, err := r.Get("nope"); err == nil {
		t.Error("unknown id accepted")
	}

	if err := r.Remove(s1.ID()); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove(s1.ID()); err != nil {
		t.Errorf("repeated remove = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("len = %d", r.Len())
	}
	if ids := r.IDs(); len(ids) != 1 || ids[0] != s2.ID() {
		t.Errorf("ids = %v", ids)
	}
}
