// Package session implements the contest session state machine: a
// finite budget of generation and evaluation actions, a wall-clock
// lifetime, and the one-shot private evaluation that turns scores into
// a rank and a performance value.
package session

import "fmt"

// ResourceUsage counts what a session has consumed. The same type
// expresses the budget.
type ResourceUsage struct {
	NumCaseGen            int     `yaml:"num_case_gen" json:"num_case_gen"`
	NumCaseEval           int     `yaml:"num_case_eval" json:"num_case_eval"`
	ExecutionTimeCaseEval float64 `yaml:"execution_time_case_eval" json:"execution_time_case_eval"`
	NumCallPublicEval     int     `yaml:"num_call_public_eval" json:"num_call_public_eval"`
	NumCallPrivateEval    int     `yaml:"num_call_private_eval" json:"num_call_private_eval"`
}

// DefaultBudget is the standard per-session allowance.
func DefaultBudget() ResourceUsage {
	return ResourceUsage{
		NumCaseGen:            1000,
		NumCaseEval:           1000,
		ExecutionTimeCaseEval: 3600,
		NumCallPublicEval:     5,
		NumCallPrivateEval:    1,
	}
}

// Add returns u + v component-wise.
func (u ResourceUsage) Add(v ResourceUsage) ResourceUsage {
	return ResourceUsage{
		NumCaseGen:            u.NumCaseGen + v.NumCaseGen,
		NumCaseEval:           u.NumCaseEval + v.NumCaseEval,
		ExecutionTimeCaseEval: u.ExecutionTimeCaseEval + v.ExecutionTimeCaseEval,
		NumCallPublicEval:     u.NumCallPublicEval + v.NumCallPublicEval,
		NumCallPrivateEval:    u.NumCallPrivateEval + v.NumCallPrivateEval,
	}
}

// Sub returns u - v component-wise.
func (u ResourceUsage) Sub(v ResourceUsage) ResourceUsage {
	return ResourceUsage{
		NumCaseGen:            u.NumCaseGen - v.NumCaseGen,
		NumCaseEval:           u.NumCaseEval - v.NumCaseEval,
		ExecutionTimeCaseEval: u.ExecutionTimeCaseEval - v.ExecutionTimeCaseEval,
		NumCallPublicEval:     u.NumCallPublicEval - v.NumCallPublicEval,
		NumCallPrivateEval:    u.NumCallPrivateEval - v.NumCallPrivateEval,
	}
}

// LEQ reports whether u ≤ v component-wise.
func (u ResourceUsage) LEQ(v ResourceUsage) bool {
	return u.NumCaseGen <= v.NumCaseGen &&
		u.NumCaseEval <= v.NumCaseEval &&
		u.ExecutionTimeCaseEval <= v.ExecutionTimeCaseEval &&
		u.NumCallPublicEval <= v.NumCallPublicEval &&
		u.NumCallPrivateEval <= v.NumCallPrivateEval
}

// clamp returns u with every component capped at the matching
// component of max.
func (u ResourceUsage) clamp(max ResourceUsage) ResourceUsage {
	return ResourceUsage{
		NumCaseGen:            min(u.NumCaseGen, max.NumCaseGen),
		NumCaseEval:           min(u.NumCaseEval, max.NumCaseEval),
		ExecutionTimeCaseEval: min(u.ExecutionTimeCaseEval, max.ExecutionTimeCaseEval),
		NumCallPublicEval:     min(u.NumCallPublicEval, max.NumCallPublicEval),
		NumCallPrivateEval:    min(u.NumCallPrivateEval, max.NumCallPrivateEval),
	}
}

func (u ResourceUsage) String() string {
	return fmt.Sprintf(
		"case_gen=%d case_eval=%d exec_time=%.1fs public_eval=%d private_eval=%d",
		u.NumCaseGen, u.NumCaseEval, u.ExecutionTimeCaseEval,
		u.NumCallPublicEval, u.NumCallPrivateEval)
}
