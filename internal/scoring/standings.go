// Package scoring converts raw absolute scores into contest placement:
// standings-table rank lookup, relative-score recomputation against the
// recorded field of participants, and rank-to-performance interpolation.
package scoring

import (
	"errors"
	"fmt"
)

// StandingEntry is one row of the recorded standings table.
type StandingEntry struct {
	Rank  int   `yaml:"rank"`
	Score int64 `yaml:"score"`
}

// scoreBlock is a table row with its tie range expanded: every rank in
// [Lo, Hi] holds Score.
type scoreBlock struct {
	Score int64
	Lo    int
	Hi    int
}

// Standings is the contest's final table, sorted by rank. The last
// entry always has score 0 and its rank is the participant count.
type Standings struct {
	entries []StandingEntry
	blocks  []scoreBlock
}

// NewStandings validates the table and expands tie blocks.
func NewStandings(entries []StandingEntry) (*Standings, error) {
	if len(entries) == 0 {
		return nil, errors.New("standings scores cannot be empty")
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Rank < entries[i-1].Rank {
			return nil, errors.New("standings ranks must be sorted in ascending order")
		}
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Score > entries[i-1].Score {
			return nil, errors.New("standings scores must be sorted in descending order")
		}
	}
	for _, e := range entries[:len(entries)-1] {
		if e.Score <= 0 {
			return nil, errors.New("standings scores must be greater than 0 except for the last entry")
		}
	}
	if entries[len(entries)-1].Score != 0 {
		return nil, errors.New("the last standings entry must have score 0")
	}

	blocks := make([]scoreBlock, len(entries))
	for i, e := range entries {
		hi := e.Rank
		if i < len(entries)-1 {
			hi = entries[i+1].Rank - 1
		}
		blocks[i] = scoreBlock{Score: e.Score, Lo: e.Rank, Hi: hi}
	}
	return &Standings{entries: entries, blocks: blocks}, nil
}

// Entries returns the raw table rows.
func (s *Standings) Entries() []StandingEntry {
	return s.entries
}

// NumParticipants is the rank of the trailing score-0 entry.
func (s *Standings) NumParticipants() int {
	return s.entries[len(s.entries)-1].Rank
}

// Rank places an overall absolute score in the table. The integer rank
// is the lowest rank whose score is <= the given score; the fractional
// rank is the tie-block midpoint on an exact score match and the
// integer rank otherwise. A score above every entry places first.
func (s *Standings) Rank(score int64) (int, float64) {
	for _, b := range s.blocks {
		if b.Score > score {
			continue
		}
		if b.Score == score {
			return b.Lo, float64(b.Lo+b.Hi) / 2
		}
		return b.Lo, float64(b.Lo)
	}
	// Score below the trailing 0 entry (rejected sentinel); place last.
	last := s.blocks[len(s.blocks)-1]
	return last.Lo, float64(last.Lo)
}

// RankRelative recomputes the whole field's relative totals with the
// candidate's per-case scores appended and places the candidate among
// the recorded participants. Returns the rank, the fractional rank,
// and the candidate's per-case relative scores.
func (s *Standings) RankRelative(rel *RelativeResults, newScores []int64) (int, float64, []int64, error) {
	if rel == nil {
		return 0, 0, nil, errors.New("relative results are not available for this contest")
	}
	caseScores, totals, err := rel.participantTotals(newScores)
	if err != nil {
		return 0, 0, nil, err
	}
	var candidate int64
	for _, cs := range caseScores {
		candidate += cs
	}
	lo, hi := 1, 0
	for _, t := range totals {
		if t > candidate {
			lo++
		}
		if t >= candidate {
			hi++
		}
	}
	frac := float64(lo)
	if hi >= lo {
		frac = float64(lo+hi) / 2
	}
	return lo, frac, caseScores, nil
}

func (s *Standings) String() string {
	return fmt.Sprintf("Standings(%d entries, %d participants)", len(s.entries), s.NumParticipants())
}
