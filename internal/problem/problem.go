// Package problem loads contest problem bundles: metadata, statement,
// seed lists, historical standings and the Rust tool sources the judge
// runs.
//
// A bundle is one directory:
//
//	<dir>/problem.yaml        metadata
//	<dir>/statement.md        problem statement
//	<dir>/public_seeds.txt    one seed per line
//	<dir>/private_seeds.txt   one seed per line
//	<dir>/standings.yaml      final standings (rank, score)
//	<dir>/performances.yaml   (rank, performance) anchors
//	<dir>/relative.yaml       per-case score matrix, relative problems only
//	<dir>/tools/              generator/tester/visualiser sources and binaries
package problem

import (
	"fmt"
	"time"

	"github.com/hurttlocker/arena/internal/judge"
	"github.com/hurttlocker/arena/internal/scoring"
)

// ScoreType says which direction the absolute score improves.
type ScoreType string

const (
	Maximize ScoreType = "MAXIMIZE"
	Minimize ScoreType = "MINIMIZE"
)

// ParseScoreType converts a string to a ScoreType.
func ParseScoreType(s string) (ScoreType, error) {
	switch ScoreType(s) {
	case Maximize, Minimize:
		return ScoreType(s), nil
	}
	return "", fmt.Errorf("unknown score type %q", s)
}

// Contest-length thresholds for the resubmission cooldown.
const (
	shortContestInterval = 5 * time.Minute
	longContestInterval  = 30 * time.Minute
	shortContestMax      = 24 * time.Hour
)

// Meta is the problem.yaml payload.
type Meta struct {
	ID                string  `yaml:"id"`
	ProblemType       string  `yaml:"problem_type"`
	ScoreType         string  `yaml:"score_type"`
	RelativeScoreType string  `yaml:"relative_score_type,omitempty"`
	MaxRelativeScore  int64   `yaml:"max_relative_score,omitempty"`
	TimeLimitSeconds  float64 `yaml:"time_limit_seconds"`
	MemoryLimitBytes  int64   `yaml:"memory_limit_bytes"`
	ContestHours      float64 `yaml:"contest_hours"`
	LenientScoring    bool    `yaml:"lenient_scoring"`
	Visualization     string  `yaml:"visualization"`
}

// Problem is a fully loaded bundle.
type Problem struct {
	ID             string
	Type           judge.ProblemType
	ScoreType      ScoreType
	TimeLimit      float64
	MemoryLimit    int64
	ContestLength  time.Duration
	LenientScoring bool
	VisKind        judge.VisKind

	Statement    string
	PublicSeeds  []uint64
	PrivateSeeds []uint64
	Standings    *scoring.Standings
	Performances *scoring.RankPerformanceMap

	// Relative is nil for absolutely scored problems.
	Relative *scoring.RelativeResults

	// Dir is the bundle root; ToolDir the judge tool tree under it.
	Dir     string
	ToolDir string
}

// SubmissionInterval is the cooldown between leaderboard submissions
// when the session runs on the contest's own time scale.
func (p *Problem) SubmissionInterval() time.Duration {
	if p.ContestLength < shortContestMax {
		return shortContestInterval
	}
	return longContestInterval
}

// IsRelative reports whether the problem is scored against the field.
func (p *Problem) IsRelative() bool {
	return p.Relative != nil
}
