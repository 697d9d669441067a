package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// RelativeScoreType selects how a raw case score is normalised against
// the field of participants.
type RelativeScoreType string

const (
	RelativeMax     RelativeScoreType = "MAX"
	RelativeMin     RelativeScoreType = "MIN"
	RelativeRankMax RelativeScoreType = "RANK_MAX"
	RelativeRankMin RelativeScoreType = "RANK_MIN"
)

// ParseRelativeScoreType converts a string to a RelativeScoreType.
func ParseRelativeScoreType(s string) (RelativeScoreType, error) {
	switch RelativeScoreType(s) {
	case RelativeMax, RelativeMin, RelativeRankMax, RelativeRankMin:
		return RelativeScoreType(s), nil
	}
	return "", fmt.Errorf("unknown relative score type %q", s)
}

// RelativeResults holds every historical submission's per-case absolute
// scores for one contest: scores[case][participant]. Negative entries
// mark non-participating (rejected) submissions.
type RelativeResults struct {
	scores    [][]int64
	scoreType RelativeScoreType
	maxScore  int64
}

// NewRelativeResults validates the score matrix.
func NewRelativeResults(scores [][]int64, scoreType RelativeScoreType, maxScore int64) (*RelativeResults, error) {
	if len(scores) == 0 {
		return nil, errors.New("relative results absolute scores cannot be empty")
	}
	if len(scores[0]) == 0 {
		return nil, errors.New("number of participants must be greater than 0")
	}
	for _, caseScores := range scores[1:] {
		if len(caseScores) != len(scores[0]) {
			return nil, errors.New("number of participants must be the same for all cases")
		}
	}
	return &RelativeResults{scores: scores, scoreType: scoreType, maxScore: maxScore}, nil
}

// NumCases returns the number of cases in the matrix.
func (r *RelativeResults) NumCases() int {
	return len(r.scores)
}

// ScoreType returns the normalisation rule.
func (r *RelativeResults) ScoreType() RelativeScoreType {
	return r.scoreType
}

// MaxScore returns the per-case relative score cap.
func (r *RelativeResults) MaxScore() int64 {
	return r.maxScore
}

// Recalculate appends the candidate's per-case scores to the field and
// recomputes every relative score. Returns the candidate's total, the
// candidate's per-case relative scores, and all participants' totals
// (candidate included) sorted in descending order.
func (r *RelativeResults) Recalculate(newScores []int64) (int64, []int64, []int64, error) {
	caseScores, totals, err := r.participantTotals(newScores)
	if err != nil {
		return 0, nil, nil, err
	}
	var candidate int64
	for _, cs := range caseScores {
		candidate += cs
	}
	all := append(append([]int64{}, totals...), candidate)
	sort.Slice(all, func(i, j int) bool { return all[i] > all[j] })
	return candidate, caseScores, all, nil
}

// participantTotals computes per-case relative scores for the candidate
// and total relative scores for every recorded participant, with the
// candidate included in each case's normalisation base.
func (r *RelativeResults) participantTotals(newScores []int64) ([]int64, []int64, error) {
	if len(newScores) != len(r.scores) {
		return nil, nil, fmt.Errorf("the number of new scores (%d) must be the same as the number of cases (%d)",
			len(newScores), len(r.scores))
	}
	numParticipants := len(r.scores[0])
	caseScores := make([]int64, len(newScores))
	totals := make([]int64, numParticipants)
	for caseIdx, fieldScores := range r.scores {
		column := append(append([]int64{}, fieldScores...), newScores[caseIdx])
		rel := r.relativeColumn(column)
		for p := 0; p < numParticipants; p++ {
			totals[p] += rel[p]
		}
		caseScores[caseIdx] = rel[numParticipants]
	}
	return caseScores, totals, nil
}

// relativeColumn normalises one case's scores (candidate last).
func (r *RelativeResults) relativeColumn(column []int64) []int64 {
	rel := make([]int64, len(column))
	switch r.scoreType {
	case RelativeMax:
		var best int64
		for _, s := range column {
			if s >= 0 && s > best {
				best = s
			}
		}
		for i, s := range column {
			if s < 0 || best == 0 {
				continue
			}
			rel[i] = roundScore(float64(r.maxScore) * float64(s) / float64(best))
		}
	case RelativeMin:
		var best int64
		for _, s := range column {
			if s > 0 && (best == 0 || s < best) {
				best = s
			}
		}
		for i, s := range column {
			if s <= 0 || best == 0 {
				continue
			}
			v := roundScore(float64(r.maxScore) * float64(best) / float64(s))
			if v > r.maxScore {
				v = r.maxScore
			}
			rel[i] = v
		}
	case RelativeRankMax, RelativeRankMin:
		n := len(column)
		for i, s := range column {
			if invalidForRank(r.scoreType, s) {
				continue
			}
			better, ties := 0, 0
			for _, o := range column {
				if invalidForRank(r.scoreType, o) {
					continue
				}
				if ranksAhead(r.scoreType, o, s) {
					better++
				}
				if o == s {
					ties++
				}
			}
			frac := float64(better) + float64(ties+1)/2
			rel[i] = roundScore(float64(r.maxScore) * (float64(n) + 1 - frac) / float64(n))
		}
	}
	return rel
}

func invalidForRank(t RelativeScoreType, s int64) bool {
	if t == RelativeRankMin {
		return s <= 0
	}
	return s < 0
}

func ranksAhead(t RelativeScoreType, a, b int64) bool {
	if t == RelativeRankMin {
		return a < b
	}
	return a > b
}

func roundScore(v float64) int64 {
	return int64(math.Round(v))
}
