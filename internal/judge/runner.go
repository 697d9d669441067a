package judge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/arena/internal/backend"
	"github.com/hurttlocker/arena/internal/logging"
	"github.com/hurttlocker/arena/internal/profile"
)

// ProblemType distinguishes output-file problems from interactive
// ones.
type ProblemType string

const (
	Batch    ProblemType = "BATCH"
	Reactive ProblemType = "REACTIVE"
)

// VisKind names the artefact the problem's visualiser renders.
type VisKind string

const (
	VisNone VisKind = "NONE"
	VisHTML VisKind = "HTML"
	VisSVG  VisKind = "SVG"
)

// Spec fixes everything about one evaluation except the code and the
// inputs.
type Spec struct {
	ProblemID         string
	ProblemType       ProblemType
	Language          Language
	Version           Version
	TimeLimit         float64
	MemoryLimit       int64
	ToolDir           string
	ReturnDetails     bool
	SkipVisualization bool
	VisKind           VisKind
	NumWorkers        int
}

var scoreLine = regexp.MustCompile(`^Score = (\d+)`)

// RunCases compiles the code once and judges every input. The result
// slice always has the same length and order as inputs; a failure in
// one case never affects another.
func RunCases(ctx context.Context, b backend.Backend, spec Spec, code string, inputs []string) ([]CaseResult, error) {
	if err := b.SetupToolLinks(ctx, spec.ToolDir); err != nil {
		return nil, fmt.Errorf("linking judge tools: %w", err)
	}
	if compileRes := compile(ctx, b, spec.Language, spec.Version, code); compileRes != nil {
		results := make([]CaseResult, len(inputs))
		for i := range results {
			results[i] = *compileRes
			if spec.ReturnDetails {
				results[i].Input = inputs[i]
			}
		}
		return results, nil
	}

	results := make([]CaseResult, len(inputs))
	workers := spec.NumWorkers
	if workers < 1 {
		workers = 1
	}
	if workers == 1 || len(inputs) == 1 {
		for idx, input := range inputs {
			results[idx] = runCase(ctx, b, spec, idx, input)
		}
		return results, nil
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for idx, input := range inputs {
		wg.Add(1)
		go func(idx int, input string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = runCase(ctx, b, spec, idx, input)
		}(idx, input)
	}
	wg.Wait()
	return results, nil
}

// compile writes the source, runs the compiler and validates the
// artefact. Returns nil on success, or the COMPILATION_ERROR result to
// replicate across all cases.
func compile(ctx context.Context, b backend.Backend, lang Language, ver Version, code string) *CaseResult {
	objRel := ObjectFile(lang)
	if err := b.WriteFile(ctx, WorkDir+"/"+SubmissionFile(lang), code); err != nil {
		return compileFailure("Failed to compile the code due to an unexpected error.")
	}
	if err := b.WriteFile(ctx, "/tmp/"+objRel, ""); err != nil {
		return compileFailure("Failed to compile the code due to an unexpected error.")
	}

	res, err := b.Exec(ctx, buildCompileCommand(lang, ver), WorkDir, CompileTimeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// The interpreter has nothing to compile; a stuck
			// byte-compile step is not a submission defect.
			if lang == Python {
				res = backend.ExecResult{}
			} else {
				return compileFailure(fmt.Sprintf("Compilation timed out (%ds).", int(CompileTimeout.Seconds())))
			}
		} else {
			return compileFailure("Failed to compile the code due to an unexpected error.")
		}
	}

	objectSize, sizeErr := b.FileSize(ctx, "/tmp/"+objRel)
	if sizeErr != nil {
		return compileFailure("Failed to compile the code due to an unexpected error.")
	}
	if res.ExitCode != 0 ||
		(lang != Python && objectSize == 0) ||
		(lang == Python && strings.Contains(res.Stderr, "SyntaxError")) {
		return compileFailure("Failed to compile the code.\nStandard error:\n" + strings.TrimSpace(res.Stderr))
	}
	return nil
}

func compileFailure(message string) *CaseResult {
	return &CaseResult{
		Verdict:       CompilationError,
		Message:       message,
		AbsoluteScore: RejectedScore,
	}
}

// runCase executes the whole per-case pipeline. It never shares
// mutable paths with any other case: all staging files live under a
// directory derived from the case index.
func runCase(ctx context.Context, b backend.Backend, spec Spec, caseIdx int, input string) CaseResult {
	caseDir := fmt.Sprintf("/tmp/cases/%s_%06d", spec.ProblemID, caseIdx)
	paths := casePaths{
		Input:    caseDir + "/input.txt",
		Output:   caseDir + "/output.txt",
		Profiles: caseDir + "/profiles.json",
	}
	var res CaseResult
	switch spec.ProblemType {
	case Batch:
		res = runBatchCase(ctx, b, spec, paths, input)
	case Reactive:
		res = runReactiveCase(ctx, b, spec, paths, input)
	default:
		return internalCase(spec, input, fmt.Sprintf("Internal Error: Invalid problem type: %s", spec.ProblemType))
	}
	if res.Verdict == Accepted && !spec.SkipVisualization && spec.VisKind != VisNone {
		vis, err := visualize(ctx, b, spec.VisKind, caseDir, paths)
		if err != nil {
			logging.Logger().Error("visualization failed",
				zap.String("problem_id", spec.ProblemID),
				zap.Int("case_idx", caseIdx),
				zap.Error(err))
			return internalCase(spec, input, "Internal Error: "+err.Error())
		}
		res.Visualization = vis
	}
	return res
}

func runBatchCase(ctx context.Context, b backend.Backend, spec Spec, paths casePaths, input string) CaseResult {
	if err := b.WriteFiles(ctx, map[string]string{
		paths.Input:    input,
		paths.Output:   "",
		paths.Profiles: "",
	}); err != nil {
		return internalCase(spec, input, "Internal Error: "+err.Error())
	}

	runCmd := buildBatchRunCommand(spec.Language, spec.Version, spec.TimeLimit, paths)
	start := time.Now()
	run, err := b.Exec(ctx, runCmd, WorkDir, execDeadline(spec.TimeLimit))
	hostWall := time.Since(start).Seconds()
	if err != nil {
		return internalCase(spec, input, "Internal Error: "+err.Error())
	}

	base := CaseResult{AbsoluteScore: RejectedScore, MemoryUsage: 0}
	if spec.ReturnDetails {
		base.Input = input
		base.Error = strings.TrimSpace(run.Stderr)
	}
	if run.ExitCode != 0 {
		if hostWall > spec.TimeLimit {
			base.Verdict = TimeLimitExceeded
			base.Message = "Time limit exceeded."
			base.ExecutionTime = min(hostWall, spec.TimeLimit+0.1)
		} else {
			base.Verdict = RuntimeError
			base.Message = "Runtime error."
			base.ExecutionTime = hostWall
		}
		return base
	}

	var output, profilesContent string
	if spec.ReturnDetails {
		contents, err := b.ReadFiles(ctx, []string{paths.Output, paths.Profiles})
		if err != nil {
			return internalCase(spec, input, "Internal Error: "+err.Error())
		}
		output, profilesContent = contents[0], contents[1]
		base.Output = output
	} else {
		profilesContent, err = b.ReadFile(ctx, paths.Profiles)
		if err != nil {
			return internalCase(spec, input, "Internal Error: "+err.Error())
		}
	}

	rep := profile.Parse(profilesContent, spec.TimeLimit, spec.MemoryLimit, hostWall)
	if rep.Fault != profile.FaultNone {
		base.Verdict = faultVerdict(rep.Fault)
		base.Message = rep.Message
		base.ExecutionTime = rep.ExecutionTime
		base.MemoryUsage = rep.MemoryUsage
		return base
	}

	judgeRun, err := b.Exec(ctx, buildBatchJudgeCommand(paths), WorkDir, 0)
	if err != nil {
		return internalCase(spec, input, "Internal Error: "+err.Error())
	}
	judgeStderr := strings.TrimSpace(judgeRun.Stderr)
	if judgeRun.ExitCode != 0 {
		base.Verdict = WrongAnswer
		base.Message = "Wrong answer.\nStandard error:\n" + judgeStderr
		base.ExecutionTime = hostWall
		return base
	}
	score, verdict, message := parseJudgeStderr(judgeStderr)
	if verdict != Accepted {
		base.Verdict = verdict
		base.Message = message
		base.ExecutionTime = hostWall
		return base
	}

	base.Verdict = Accepted
	base.AbsoluteScore = score
	base.ExecutionTime = rep.ExecutionTime
	base.MemoryUsage = rep.MemoryUsage
	return base
}

func runReactiveCase(ctx context.Context, b backend.Backend, spec Spec, paths casePaths, input string) CaseResult {
	if err := b.WriteFiles(ctx, map[string]string{
		paths.Input:    input,
		paths.Output:   "",
		paths.Profiles: "",
	}); err != nil {
		return internalCase(spec, input, "Internal Error: "+err.Error())
	}

	cmd := buildReactiveJudgeCommand(spec.Language, spec.Version, spec.TimeLimit, paths)
	start := time.Now()
	run, err := b.Exec(ctx, cmd, WorkDir, execDeadline(spec.TimeLimit))
	hostWall := time.Since(start).Seconds()
	if err != nil {
		return internalCase(spec, input, "Internal Error: "+err.Error())
	}
	judgeStderr := strings.TrimSpace(run.Stderr)

	base := CaseResult{AbsoluteScore: RejectedScore}
	if spec.ReturnDetails {
		base.Input = input
		base.Error = judgeStderr
	}

	// The tester decides the verdict in one pass; the timing wrapper
	// still profiles the solution process, so the profile is parsed
	// even for a failed interaction to recover time and memory.
	var interactionFault *CaseResult
	var score int64
	if run.ExitCode != 0 || judgeStderr == "" {
		fault := base
		if hostWall > spec.TimeLimit {
			fault.Verdict = TimeLimitExceeded
			fault.Message = "Time limit exceeded."
			fault.ExecutionTime = min(hostWall, spec.TimeLimit+0.1)
		} else {
			fault.Verdict = RuntimeError
			fault.Message = "Runtime error."
			fault.ExecutionTime = hostWall
		}
		interactionFault = &fault
	} else {
		var verdict Verdict
		var message string
		score, verdict, message = parseJudgeStderr(judgeStderr)
		if verdict != Accepted {
			base.Verdict = verdict
			base.Message = message
			base.ExecutionTime = hostWall
			if spec.ReturnDetails {
				if output, err := b.ReadFile(ctx, paths.Output); err == nil {
					base.Output = output
				}
			}
			return base
		}
		if spec.ReturnDetails {
			output, err := b.ReadFile(ctx, paths.Output)
			if err != nil {
				return internalCase(spec, input, "Internal Error: "+err.Error())
			}
			base.Output = output
		}
	}

	profilesContent, err := b.ReadFile(ctx, paths.Profiles)
	if err != nil {
		return internalCase(spec, input, "Internal Error: "+err.Error())
	}
	rep := profile.Parse(profilesContent, spec.TimeLimit, spec.MemoryLimit, hostWall)
	if rep.Fault != profile.FaultNone {
		base.Verdict = faultVerdict(rep.Fault)
		base.Message = rep.Message
		base.ExecutionTime = rep.ExecutionTime
		base.MemoryUsage = rep.MemoryUsage
		return base
	}
	if interactionFault != nil {
		interactionFault.ExecutionTime = rep.ExecutionTime
		interactionFault.MemoryUsage = rep.MemoryUsage
		return *interactionFault
	}

	base.Verdict = Accepted
	base.AbsoluteScore = score
	base.ExecutionTime = rep.ExecutionTime
	base.MemoryUsage = rep.MemoryUsage
	return base
}

// parseJudgeStderr extracts the score from the tester's stderr.
func parseJudgeStderr(stderr string) (int64, Verdict, string) {
	if strings.TrimSpace(stderr) == "" {
		return 0, WrongAnswer, "Wrong answer.\nStandard error is empty (no score found)"
	}
	if _, detail, found := strings.Cut(stderr, "wrong answer: "); found {
		return 0, WrongAnswer, "Wrong answer.\n" + detail
	}
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	m := scoreLine.FindStringSubmatch(lines[len(lines)-1])
	if m == nil {
		return 0, WrongAnswer, "Wrong answer.\nStandard error:\n" + stderr
	}
	score, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, WrongAnswer, "Wrong answer.\nStandard error:\n" + stderr
	}
	return score, Accepted, ""
}

// visualize renders one judged case and returns the artefact with the
// optional HTML wrapper stripped.
func visualize(ctx context.Context, b backend.Backend, kind VisKind, caseDir string, paths casePaths) (string, error) {
	run, err := b.Exec(ctx, buildVisCommand(paths), caseDir, VisualizeTimeout)
	if err != nil {
		return "", fmt.Errorf("running the visualization command: %w", err)
	}
	if run.ExitCode != 0 {
		return "", fmt.Errorf("the visualization command failed: %s", strings.TrimSpace(run.Stderr))
	}
	artefact := caseDir + "/vis.html"
	if kind == VisSVG {
		artefact = caseDir + "/out.svg"
	}
	content, err := b.ReadFile(ctx, artefact)
	if err != nil {
		return "", fmt.Errorf("reading the visualization artefact: %w", err)
	}
	svg := strings.ReplaceAll(content, "\n", "")
	svg = strings.TrimPrefix(svg, "<html><body>")
	svg = strings.TrimSuffix(svg, "</body></html>")
	if svg == "" {
		return "", errors.New("the local visualization file is empty")
	}
	return svg, nil
}

func internalCase(spec Spec, input, message string) CaseResult {
	res := CaseResult{
		Verdict:       InternalError,
		Message:       message,
		AbsoluteScore: RejectedScore,
	}
	if spec.ReturnDetails {
		res.Input = input
	}
	return res
}

// execDeadline gives the backend a generous wall-clock bound beyond
// the in-command timeout wrapper, as a hang guard.
func execDeadline(timeLimit float64) time.Duration {
	return time.Duration(math.Ceil(timeLimit+0.1)+30) * time.Second
}
