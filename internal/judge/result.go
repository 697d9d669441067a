package judge

import "github.com/hurttlocker/arena/internal/profile"

// Verdict is the judge outcome for one case.
type Verdict string

const (
	Accepted            Verdict = "ACCEPTED"
	WrongAnswer         Verdict = "WRONG_ANSWER"
	RuntimeError        Verdict = "RUNTIME_ERROR"
	TimeLimitExceeded   Verdict = "TIME_LIMIT_EXCEEDED"
	MemoryLimitExceeded Verdict = "MEMORY_LIMIT_EXCEEDED"
	CompilationError    Verdict = "COMPILATION_ERROR"
	InternalError       Verdict = "INTERNAL_ERROR"
)

// faultVerdict maps a profile-parser fault to its verdict.
func faultVerdict(f profile.Fault) Verdict {
	switch f {
	case profile.FaultRuntimeError:
		return RuntimeError
	case profile.FaultTimeLimit:
		return TimeLimitExceeded
	case profile.FaultMemoryLimit:
		return MemoryLimitExceeded
	case profile.FaultWrongAnswer:
		return WrongAnswer
	default:
		return InternalError
	}
}

// CaseResult is the judged outcome of a single case. Input, Output and
// Error are empty unless details were requested.
type CaseResult struct {
	Input         string  `yaml:"input,omitempty" json:"input,omitempty"`
	Output        string  `yaml:"output,omitempty" json:"output,omitempty"`
	Error         string  `yaml:"error,omitempty" json:"error,omitempty"`
	Verdict       Verdict `yaml:"judge_result" json:"judge_result"`
	Message       string  `yaml:"message,omitempty" json:"message,omitempty"`
	AbsoluteScore int64   `yaml:"absolute_score" json:"absolute_score"`
	RelativeScore int64   `yaml:"relative_score,omitempty" json:"relative_score,omitempty"`
	Visualization string  `yaml:"local_visualization,omitempty" json:"local_visualization,omitempty"`
	ExecutionTime float64 `yaml:"execution_time" json:"execution_time"`
	MemoryUsage   int64   `yaml:"memory_usage" json:"memory_usage"`
}

// Result is the aggregate over all cases of one evaluation.
type Result struct {
	Cases                []CaseResult `yaml:"case_results" json:"case_results"`
	OverallVerdict       Verdict      `yaml:"overall_judge_result" json:"overall_judge_result"`
	OverallAbsoluteScore int64        `yaml:"overall_absolute_score" json:"overall_absolute_score"`
	OverallRelativeScore int64        `yaml:"overall_relative_score" json:"overall_relative_score"`
}

// Aggregate folds per-case results into an overall verdict and score.
// The overall verdict is the first non-accepted verdict in input
// order. Scores sum only when every case is accepted, unless
// allowScoreNonAC keeps partial credit; otherwise the rejected
// sentinel is reported.
func Aggregate(cases []CaseResult, allowScoreNonAC bool) Result {
	res := Result{Cases: cases, OverallVerdict: Accepted}
	allAccepted := true
	for _, c := range cases {
		if c.Verdict != Accepted {
			allAccepted = false
			res.OverallVerdict = c.Verdict
			break
		}
	}
	if allAccepted || allowScoreNonAC {
		for _, c := range cases {
			if c.AbsoluteScore > 0 {
				res.OverallAbsoluteScore += c.AbsoluteScore
			}
			if c.RelativeScore > 0 {
				res.OverallRelativeScore += c.RelativeScore
			}
		}
	} else {
		res.OverallAbsoluteScore = RejectedScore
		res.OverallRelativeScore = RejectedScore
	}
	return res
}
