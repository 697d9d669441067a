package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hurttlocker/arena/internal/backend"
	"github.com/hurttlocker/arena/internal/judge"
	"github.com/hurttlocker/arena/internal/logging"
	"github.com/hurttlocker/arena/internal/problem"
)

// Config fixes a session at construction time.
type Config struct {
	Problem          *problem.Problem
	Backend          backend.Backend
	Budget           ResourceUsage
	Duration         time.Duration
	UseSameTimeScale bool
	NumWorkers       int

	// LitePrivateCases truncates the private seed list when positive.
	LitePrivateCases int
}

// ActionRecord is one entry of the session's append-only action log.
type ActionRecord struct {
	Name    string            `yaml:"name"`
	Args    map[string]string `yaml:"args,omitempty"`
	Elapsed float64           `yaml:"elapsed_seconds"`
}

// EvalOptions carries the per-call overrides of an evaluation action.
// Zero values select the problem defaults.
type EvalOptions struct {
	Language    string
	Version     string
	TimeLimit   float64
	MemoryLimit string
	SkipVis     bool
}

// Session is the live contest context. All mutating actions are
// serialised; at most one is in flight at a time.
type Session struct {
	mu sync.Mutex

	id           string
	problem      *problem.Problem
	backend      backend.Backend
	privateSeeds []uint64

	budget ResourceUsage
	usage  ResourceUsage

	startedAt        time.Time
	duration         time.Duration
	useSameTimeScale bool
	numWorkers       int

	lastPublicEval  time.Time
	privateEvalDone bool

	publicInputs  []string
	privateInputs []string

	actions []ActionRecord
	log     *zap.Logger
	now     func() time.Time
}

// New builds a session and pre-generates the public and private
// inputs. A generator failure here is fatal: the session is not
// created.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Problem == nil {
		return nil, fmt.Errorf("%w: session needs a problem", ErrInvalidArgument)
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("%w: session needs a backend", ErrInvalidArgument)
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("%w: session duration must be positive", ErrInvalidArgument)
	}
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}

	privateSeeds := cfg.Problem.PrivateSeeds
	if cfg.LitePrivateCases > 0 && len(privateSeeds) > cfg.LitePrivateCases {
		privateSeeds = privateSeeds[:cfg.LitePrivateCases]
	}

	s := &Session{
		id:               uuid.NewString(),
		problem:          cfg.Problem,
		backend:          cfg.Backend,
		privateSeeds:     privateSeeds,
		budget:           cfg.Budget,
		duration:         cfg.Duration,
		useSameTimeScale: cfg.UseSameTimeScale,
		numWorkers:       cfg.NumWorkers,
		log:              logging.Logger().Named("session"),
		now:              time.Now,
	}

	publicInputs, err := judge.GenerateInputs(ctx, s.backend, cfg.Problem.ToolDir, cfg.Problem.PublicSeeds, nil)
	if err != nil {
		return nil, fmt.Errorf("generating public inputs: %w", err)
	}
	privateInputs, err := judge.GenerateInputs(ctx, s.backend, cfg.Problem.ToolDir, privateSeeds, nil)
	if err != nil {
		return nil, fmt.Errorf("generating private inputs: %w", err)
	}
	s.publicInputs = publicInputs
	s.privateInputs = privateInputs
	s.startedAt = s.now()

	s.log.Info("session started",
		zap.String("session_id", s.id),
		zap.String("problem_id", cfg.Problem.ID),
		zap.Int("public_cases", len(publicInputs)),
		zap.Int("private_cases", len(privateInputs)),
		zap.Duration("duration", cfg.Duration))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ProblemID returns the owned problem's id.
func (s *Session) ProblemID() string { return s.problem.ID }

// Problem returns the owned problem bundle.
func (s *Session) Problem() *problem.Problem { return s.problem }

// Usage returns a copy of the current resource usage.
func (s *Session) Usage() ResourceUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Budget returns the maximum resource usage.
func (s *Session) Budget() ResourceUsage { return s.budget }

// RemainingTime reports how much session lifetime is left.
func (s *Session) RemainingTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := s.startedAt.Add(s.duration).Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PublicSeeds returns the seeds behind the pre-generated public
// inputs. Private seeds have no accessor.
func (s *Session) PublicSeeds() []uint64 { return s.problem.PublicSeeds }

// Actions returns a copy of the action log.
func (s *Session) Actions() []ActionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActionRecord, len(s.actions))
	copy(out, s.actions)
	return out
}

// checkAlive enforces the session lifetime. Callers hold the mutex.
func (s *Session) checkAlive() error {
	if s.privateEvalDone {
		return ErrSessionFinished
	}
	if !s.now().Before(s.startedAt.Add(s.duration)) {
		return ErrSessionFinished
	}
	return nil
}

func (s *Session) record(name string, args map[string]string) {
	s.actions = append(s.actions, ActionRecord{
		Name:    name,
		Args:    args,
		Elapsed: s.now().Sub(s.startedAt).Seconds(),
	})
}

// precheckCounts rejects an action whose known case count would push a
// counter past its budget, before any work happens.
func (s *Session) precheckCounts(delta ResourceUsage) error {
	if !s.usage.Add(delta).LEQ(s.budget) {
		return fmt.Errorf("%w: would need %s beyond budget %s", ErrBudgetExceeded, delta.String(), s.budget.String())
	}
	return nil
}

// precheckTime enforces the strict-< guard on the evaluation time
// budget: once the counter has reached its maximum no further
// evaluation starts, even though the final increment was allowed to
// land exactly on the limit.
func (s *Session) precheckTime() error {
	if s.usage.ExecutionTimeCaseEval >= s.budget.ExecutionTimeCaseEval {
		return fmt.Errorf("%w: execution time budget %.1fs is used up", ErrBudgetExceeded, s.budget.ExecutionTimeCaseEval)
	}
	return nil
}

// settleTime adds spent execution time and reports whether the budget
// was overshot. Usage is clamped so the component-wise invariant
// holds even on the overshooting action.
func (s *Session) settleTime(spent float64) error {
	s.usage.ExecutionTimeCaseEval += spent
	if s.usage.ExecutionTimeCaseEval > s.budget.ExecutionTimeCaseEval {
		s.usage = s.usage.clamp(s.budget)
		return fmt.Errorf("%w: execution time budget %.1fs exhausted", ErrBudgetExceeded, s.budget.ExecutionTimeCaseEval)
	}
	return nil
}

// resolveEval turns per-call overrides into a concrete judge spec.
func (s *Session) resolveEval(opts EvalOptions) (judge.Spec, error) {
	spec := judge.Spec{
		ProblemID:         s.problem.ID,
		ProblemType:       s.problem.Type,
		TimeLimit:         s.problem.TimeLimit,
		MemoryLimit:       s.problem.MemoryLimit,
		ToolDir:           s.problem.ToolDir,
		VisKind:           s.problem.VisKind,
		SkipVisualization: opts.SkipVis,
		ReturnDetails:     true,
		NumWorkers:        s.numWorkers,
	}
	if opts.Language == "" {
		opts.Language = string(judge.CPP17)
	}
	lang, err := judge.ParseLanguage(opts.Language)
	if err != nil {
		return judge.Spec{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	ver, err := judge.ParseVersion(opts.Version)
	if err != nil {
		return judge.Spec{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := judge.ValidatePair(lang, ver); err != nil {
		return judge.Spec{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	spec.Language = lang
	spec.Version = ver
	if opts.TimeLimit != 0 {
		if err := ValidateTimeLimit(opts.TimeLimit); err != nil {
			return judge.Spec{}, err
		}
		spec.TimeLimit = opts.TimeLimit
	}
	if opts.MemoryLimit != "" {
		limit, err := ParseMemoryLimit(opts.MemoryLimit)
		if err != nil {
			return judge.Spec{}, err
		}
		spec.MemoryLimit = limit
	}
	return spec, nil
}

// CodeRun compiles and runs the code against one stdin without
// judging. The observed execution time counts against the evaluation
// time budget.
func (s *Session) CodeRun(ctx context.Context, input, code string, opts EvalOptions) (judge.CodeRunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return judge.CodeRunResult{}, err
	}
	if err := s.precheckTime(); err != nil {
		return judge.CodeRunResult{}, err
	}
	if err := ValidateCode(code); err != nil {
		return judge.CodeRunResult{}, err
	}
	spec, err := s.resolveEval(opts)
	if err != nil {
		return judge.CodeRunResult{}, err
	}

	res, err := judge.CodeRun(ctx, s.backend, spec.Language, spec.Version, spec.TimeLimit, spec.MemoryLimit, code, input)
	if err != nil {
		return judge.CodeRunResult{}, err
	}
	s.record("code_run", map[string]string{
		"language":   string(spec.Language),
		"version":    string(spec.Version),
		"code_bytes": strconv.Itoa(len(code)),
	})
	return res, s.settleTime(res.ExecutionTime)
}

// CaseGen generates inputs for the given seeds.
func (s *Session) CaseGen(ctx context.Context, seeds []uint64, genKwargs map[string]string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	if err := s.precheckCounts(ResourceUsage{NumCaseGen: len(seeds)}); err != nil {
		return nil, err
	}
	inputs, err := s.caseGenLocked(ctx, seeds, genKwargs)
	if err != nil {
		return nil, err
	}
	s.record("case_gen", map[string]string{"num_seeds": strconv.Itoa(len(seeds))})
	return inputs, nil
}

func (s *Session) caseGenLocked(ctx context.Context, seeds []uint64, genKwargs map[string]string) ([]string, error) {
	inputs, err := judge.GenerateInputs(ctx, s.backend, s.problem.ToolDir, seeds, FilterGenKwargs(genKwargs))
	if err != nil {
		return nil, err
	}
	s.usage.NumCaseGen += len(seeds)
	return inputs, nil
}

// CaseEval judges the code on caller-provided inputs. Scores always
// sum, accepted or not.
func (s *Session) CaseEval(ctx context.Context, inputs []string, code string, opts EvalOptions) (judge.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return judge.Result{}, err
	}
	if err := s.precheckCounts(ResourceUsage{NumCaseEval: len(inputs)}); err != nil {
		return judge.Result{}, err
	}
	if err := s.precheckTime(); err != nil {
		return judge.Result{}, err
	}
	res, err := s.caseEvalLocked(ctx, inputs, code, opts)
	if err != nil {
		return judge.Result{}, err
	}
	s.record("case_eval", map[string]string{
		"num_cases":  strconv.Itoa(len(inputs)),
		"code_bytes": strconv.Itoa(len(code)),
	})
	return res, s.settleTime(totalTime(res.Cases))
}

func (s *Session) caseEvalLocked(ctx context.Context, inputs []string, code string, opts EvalOptions) (judge.Result, error) {
	if err := ValidateCode(code); err != nil {
		return judge.Result{}, err
	}
	spec, err := s.resolveEval(opts)
	if err != nil {
		return judge.Result{}, err
	}
	cases, err := judge.RunCases(ctx, s.backend, spec, code, inputs)
	if err != nil {
		return judge.Result{}, err
	}
	s.usage.NumCaseEval += len(inputs)
	return judge.Aggregate(cases, true), nil
}

// CaseGenEval generates inputs and judges them in one action under a
// combined pre-guard, so neither side runs when either budget would
// overflow.
func (s *Session) CaseGenEval(ctx context.Context, seeds []uint64, genKwargs map[string]string, code string, opts EvalOptions) (judge.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return judge.Result{}, err
	}
	if err := s.precheckCounts(ResourceUsage{NumCaseGen: len(seeds), NumCaseEval: len(seeds)}); err != nil {
		return judge.Result{}, err
	}
	if err := s.precheckTime(); err != nil {
		return judge.Result{}, err
	}
	if err := ValidateCode(code); err != nil {
		return judge.Result{}, err
	}
	inputs, err := s.caseGenLocked(ctx, seeds, genKwargs)
	if err != nil {
		return judge.Result{}, err
	}
	res, err := s.caseEvalLocked(ctx, inputs, code, opts)
	if err != nil {
		return judge.Result{}, err
	}
	s.record("case_gen_eval", map[string]string{
		"num_seeds":  strconv.Itoa(len(seeds)),
		"code_bytes": strconv.Itoa(len(code)),
	})
	return res, s.settleTime(totalTime(res.Cases))
}

// LocalVisualization renders already-produced outputs without
// re-running the solution. Consumes no budget.
func (s *Session) LocalVisualization(ctx context.Context, inputs, outputs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	if len(inputs) != len(outputs) {
		return nil, fmt.Errorf("%w: got %d inputs and %d outputs", ErrInvalidArgument, len(inputs), len(outputs))
	}
	images := make([]string, len(inputs))
	for i := range inputs {
		image, err := judge.Visualize(ctx, s.backend, s.problem.ToolDir, s.problem.VisKind, inputs[i], outputs[i])
		if err != nil {
			return nil, err
		}
		images[i] = image
	}
	s.record("local_visualization", map[string]string{"num_cases": strconv.Itoa(len(inputs))})
	return images, nil
}

// PublicEval judges the code on the pre-generated public inputs with
// the problem's own limits.
func (s *Session) PublicEval(ctx context.Context, code string, opts EvalOptions) (judge.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return judge.Result{}, err
	}
	if s.usage.NumCallPublicEval >= s.budget.NumCallPublicEval {
		return judge.Result{}, fmt.Errorf("%w: public evaluation budget %d is used up", ErrBudgetExceeded, s.budget.NumCallPublicEval)
	}
	if s.useSameTimeScale && !s.lastPublicEval.IsZero() {
		next := s.lastPublicEval.Add(s.problem.SubmissionInterval())
		if s.now().Before(next) {
			return judge.Result{}, fmt.Errorf("%w: next submission allowed in %s", ErrSubmissionInterval, next.Sub(s.now()).Round(time.Second))
		}
	}
	if err := ValidateCode(code); err != nil {
		return judge.Result{}, err
	}
	opts.TimeLimit = 0
	opts.MemoryLimit = ""
	spec, err := s.resolveEval(opts)
	if err != nil {
		return judge.Result{}, err
	}

	cases, err := judge.RunCases(ctx, s.backend, spec, code, s.publicInputs)
	if err != nil {
		return judge.Result{}, err
	}
	s.attachRelativeScores(cases)
	s.usage.NumCallPublicEval++
	s.lastPublicEval = s.now()
	s.record("public_eval", map[string]string{
		"language":   string(spec.Language),
		"code_bytes": strconv.Itoa(len(code)),
	})
	return judge.Aggregate(cases, s.problem.LenientScoring), nil
}

// PrivateRank is the outcome of the one-shot private evaluation.
type PrivateRank struct {
	Rank        int     `yaml:"rank" json:"rank"`
	RankFrac    float64 `yaml:"rank_fractional" json:"rank_fractional"`
	Performance int     `yaml:"performance" json:"performance"`
}

// PrivateEval judges the code on the private inputs and converts the
// overall score into a contest rank and performance. It may run once;
// afterwards the session is finished. Per-case details are stripped
// from the returned result.
func (s *Session) PrivateEval(ctx context.Context, code string, opts EvalOptions) (judge.Result, PrivateRank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.privateEvalDone {
		return judge.Result{}, PrivateRank{}, ErrSessionFinished
	}
	if s.usage.NumCallPrivateEval >= s.budget.NumCallPrivateEval {
		return judge.Result{}, PrivateRank{}, fmt.Errorf("%w: private evaluation budget %d is used up", ErrBudgetExceeded, s.budget.NumCallPrivateEval)
	}
	if err := ValidateCode(code); err != nil {
		return judge.Result{}, PrivateRank{}, err
	}
	opts.TimeLimit = 0
	opts.MemoryLimit = ""
	opts.SkipVis = true
	spec, err := s.resolveEval(opts)
	if err != nil {
		return judge.Result{}, PrivateRank{}, err
	}
	spec.ReturnDetails = false

	cases, err := judge.RunCases(ctx, s.backend, spec, code, s.privateInputs)
	if err != nil {
		return judge.Result{}, PrivateRank{}, err
	}

	var rank PrivateRank
	if s.problem.IsRelative() && s.problem.Relative.NumCases() == len(cases) {
		caseScores := absoluteScores(cases)
		r, frac, relScores, err := s.problem.Standings.RankRelative(s.problem.Relative, caseScores)
		if err != nil {
			return judge.Result{}, PrivateRank{}, fmt.Errorf("computing relative rank: %w", err)
		}
		for i := range cases {
			cases[i].RelativeScore = relScores[i]
		}
		rank.Rank, rank.RankFrac = r, frac
	} else {
		res := judge.Aggregate(cases, s.problem.LenientScoring)
		rank.Rank, rank.RankFrac = s.problem.Standings.Rank(res.OverallAbsoluteScore)
	}
	performance, err := s.problem.Performances.Performance(rank.RankFrac)
	if err != nil {
		return judge.Result{}, PrivateRank{}, fmt.Errorf("computing performance: %w", err)
	}
	rank.Performance = performance

	for i := range cases {
		cases[i].Input = ""
		cases[i].Output = ""
		cases[i].Error = ""
		cases[i].Message = ""
		cases[i].Visualization = ""
	}

	s.usage.NumCallPrivateEval++
	s.privateEvalDone = true
	s.record("private_eval", map[string]string{
		"language":   string(spec.Language),
		"code_bytes": strconv.Itoa(len(code)),
	})
	s.log.Info("private evaluation complete",
		zap.String("session_id", s.id),
		zap.Int("rank", rank.Rank),
		zap.Int("performance", rank.Performance))
	return judge.Aggregate(cases, s.problem.LenientScoring), rank, nil
}

// attachRelativeScores fills per-case relative scores when the
// problem's historical matrix matches the evaluated case count.
func (s *Session) attachRelativeScores(cases []judge.CaseResult) {
	if !s.problem.IsRelative() || s.problem.Relative.NumCases() != len(cases) {
		return
	}
	_, relScores, _, err := s.problem.Relative.Recalculate(absoluteScores(cases))
	if err != nil {
		return
	}
	for i := range cases {
		cases[i].RelativeScore = relScores[i]
	}
}

// Close releases per-session scratch storage and the backend.
// Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.backend.Exec(ctx, "rm -rf /tmp/cases /tmp/gen /tmp/coderun /tmp/vis", "", 0); err != nil {
		s.log.Warn("scratch cleanup failed", zap.String("session_id", s.id), zap.Error(err))
	}
	return s.backend.Close()
}

func totalTime(cases []judge.CaseResult) float64 {
	var total float64
	for _, c := range cases {
		total += c.ExecutionTime
	}
	return total
}

func absoluteScores(cases []judge.CaseResult) []int64 {
	scores := make([]int64, len(cases))
	for i, c := range cases {
		scores[i] = c.AbsoluteScore
	}
	return scores
}
