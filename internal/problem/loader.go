package problem

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/arena/internal/judge"
	"github.com/hurttlocker/arena/internal/scoring"
)

type relativeFile struct {
	ScoreType string    `yaml:"score_type"`
	MaxScore  int64     `yaml:"max_score"`
	Scores    [][]int64 `yaml:"scores"`
}

// Load reads one problem bundle from dir.
func Load(dir string) (*Problem, error) {
	metaRaw, err := os.ReadFile(filepath.Join(dir, "problem.yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading problem metadata: %w", err)
	}
	var meta Meta
	if err := yaml.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("parsing problem metadata: %w", err)
	}
	if meta.ID == "" {
		return nil, fmt.Errorf("problem metadata in %s has no id", dir)
	}

	p := &Problem{
		ID:             meta.ID,
		TimeLimit:      meta.TimeLimitSeconds,
		MemoryLimit:    meta.MemoryLimitBytes,
		ContestLength:  time.Duration(meta.ContestHours * float64(time.Hour)),
		LenientScoring: meta.LenientScoring,
		Dir:            dir,
		ToolDir:        filepath.Join(dir, "tools"),
	}
	switch judge.ProblemType(meta.ProblemType) {
	case judge.Batch, judge.Reactive:
		p.Type = judge.ProblemType(meta.ProblemType)
	default:
		return nil, fmt.Errorf("problem %s: unknown problem type %q", meta.ID, meta.ProblemType)
	}
	if p.ScoreType, err = ParseScoreType(meta.ScoreType); err != nil {
		return nil, fmt.Errorf("problem %s: %w", meta.ID, err)
	}
	switch strings.ToUpper(meta.Visualization) {
	case "", "NONE":
		p.VisKind = judge.VisNone
	case "HTML":
		p.VisKind = judge.VisHTML
	case "SVG":
		p.VisKind = judge.VisSVG
	default:
		return nil, fmt.Errorf("problem %s: unknown visualization kind %q", meta.ID, meta.Visualization)
	}
	if p.TimeLimit <= 0 {
		return nil, fmt.Errorf("problem %s: time limit must be positive", meta.ID)
	}
	if p.MemoryLimit <= 0 {
		return nil, fmt.Errorf("problem %s: memory limit must be positive", meta.ID)
	}

	statement, err := os.ReadFile(filepath.Join(dir, "statement.md"))
	if err != nil {
		return nil, fmt.Errorf("problem %s: reading statement: %w", meta.ID, err)
	}
	p.Statement = string(statement)

	if p.PublicSeeds, err = readSeeds(filepath.Join(dir, "public_seeds.txt")); err != nil {
		return nil, fmt.Errorf("problem %s: %w", meta.ID, err)
	}
	if p.PrivateSeeds, err = readSeeds(filepath.Join(dir, "private_seeds.txt")); err != nil {
		return nil, fmt.Errorf("problem %s: %w", meta.ID, err)
	}

	var standings []scoring.StandingEntry
	if err := readYAML(filepath.Join(dir, "standings.yaml"), &standings); err != nil {
		return nil, fmt.Errorf("problem %s: %w", meta.ID, err)
	}
	if p.Standings, err = scoring.NewStandings(standings); err != nil {
		return nil, fmt.Errorf("problem %s: standings: %w", meta.ID, err)
	}

	var anchors []scoring.PerformanceAnchor
	if err := readYAML(filepath.Join(dir, "performances.yaml"), &anchors); err != nil {
		return nil, fmt.Errorf("problem %s: %w", meta.ID, err)
	}
	if p.Performances, err = scoring.NewRankPerformanceMap(anchors); err != nil {
		return nil, fmt.Errorf("problem %s: performances: %w", meta.ID, err)
	}

	relativePath := filepath.Join(dir, "relative.yaml")
	if _, err := os.Stat(relativePath); err == nil {
		var rel relativeFile
		if err := readYAML(relativePath, &rel); err != nil {
			return nil, fmt.Errorf("problem %s: %w", meta.ID, err)
		}
		scoreType, err := scoring.ParseRelativeScoreType(rel.ScoreType)
		if err != nil {
			return nil, fmt.Errorf("problem %s: relative results: %w", meta.ID, err)
		}
		if p.Relative, err = scoring.NewRelativeResults(rel.Scores, scoreType, rel.MaxScore); err != nil {
			return nil, fmt.Errorf("problem %s: relative results: %w", meta.ID, err)
		}
	}
	return p, nil
}

// RustToolSource returns the source of one judge tool (gen, tester or
// vis) from the bundle's tool tree.
func (p *Problem) RustToolSource(tool string) (string, error) {
	switch tool {
	case "gen", "tester", "vis":
	default:
		return "", fmt.Errorf("unknown tool %q", tool)
	}
	candidates := []string{
		filepath.Join(p.ToolDir, "src", "bin", tool+".rs"),
		filepath.Join(p.ToolDir, "tools", "src", "bin", tool+".rs"),
	}
	for _, candidate := range candidates {
		if content, err := os.ReadFile(candidate); err == nil {
			return string(content), nil
		}
	}
	return "", fmt.Errorf("tool source for %q not found under %s", tool, p.ToolDir)
}

func readSeeds(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading seeds: %w", err)
	}
	defer f.Close()
	var seeds []uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		seed, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing seed %q in %s: %w", line, path, err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, scanner.Err()
}

func readYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}
