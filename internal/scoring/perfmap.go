package scoring

import (
	"errors"
	"fmt"
	"math"
)

// PerformanceAnchor is one recorded (rank, performance) pair.
type PerformanceAnchor struct {
	Rank        int `yaml:"rank"`
	Performance int `yaml:"performance"`
}

// RankPerformanceMap maps a fractional contest rank to a rating-like
// performance value by piecewise-linear interpolation. Tied rank
// blocks collapse to their midpoint before interpolation; the last
// anchor's rank is the participant count.
type RankPerformanceMap struct {
	anchors []PerformanceAnchor
	keys    []float64
	perfs   []int
}

// NewRankPerformanceMap validates the anchors and precomputes the
// tie-midpoint keys.
func NewRankPerformanceMap(anchors []PerformanceAnchor) (*RankPerformanceMap, error) {
	if len(anchors) < 2 {
		return nil, errors.New("rank performance map must contain at least 2 entries")
	}
	for i := 1; i < len(anchors); i++ {
		if anchors[i].Rank < anchors[i-1].Rank {
			return nil, errors.New("rank performance ranks must be sorted in ascending order")
		}
	}
	for i := 1; i < len(anchors); i++ {
		if anchors[i].Performance > anchors[i-1].Performance {
			return nil, errors.New("rank performance values must be sorted in descending order")
		}
	}
	keys := make([]float64, len(anchors))
	perfs := make([]int, len(anchors))
	for i, a := range anchors {
		if i < len(anchors)-1 {
			keys[i] = (float64(a.Rank) + float64(anchors[i+1].Rank-1)) / 2
		} else {
			keys[i] = float64(a.Rank)
		}
		perfs[i] = a.Performance
	}
	return &RankPerformanceMap{anchors: anchors, keys: keys, perfs: perfs}, nil
}

// Anchors returns the raw (rank, performance) pairs.
func (m *RankPerformanceMap) Anchors() []PerformanceAnchor {
	return m.anchors
}

// Performance interpolates the performance for a fractional rank.
// Rank 1 extrapolates above the first midpoint key; anything below 1
// or above the last anchor is out of range.
func (m *RankPerformanceMap) Performance(rank float64) (int, error) {
	if rank < 1 {
		return 0, fmt.Errorf("rank %v is out of range", rank)
	}
	for i, k := range m.keys {
		if rank == k {
			return m.perfs[i], nil
		}
	}
	if rank < m.keys[0] {
		// Only exact rank 1 sits above the first midpoint key; its
		// performance extends the first segment's slope upward.
		if rank != 1 {
			return 0, fmt.Errorf("rank %v is out of range", rank)
		}
		k1, k2 := m.keys[0], m.keys[1]
		p1, p2 := float64(m.perfs[0]), float64(m.perfs[1])
		frac := (k1 - rank) / (k2 - k1)
		return int(math.Round(p1 + (p1-p2)*frac)), nil
	}
	win := -1
	for i, k := range m.keys {
		if k < rank {
			win = i
		}
	}
	if win >= len(m.keys)-1 {
		return 0, fmt.Errorf("rank %v is beyond the last anchor", rank)
	}
	kLo, kHi := m.keys[win], m.keys[win+1]
	pLo, pHi := float64(m.perfs[win]), float64(m.perfs[win+1])
	return int(math.Round(pLo + (pHi-pLo)*(rank-kLo)/(kHi-kLo))), nil
}
