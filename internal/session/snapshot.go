package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/arena/internal/backend"
	"github.com/hurttlocker/arena/internal/judge"
	"github.com/hurttlocker/arena/internal/logging"
	"github.com/hurttlocker/arena/internal/problem"
)

// Snapshot is the serialisable state of a paused session. Generated
// inputs are not stored; resuming regenerates them from the recorded
// seeds, which is deterministic for a given tool build.
type Snapshot struct {
	SessionID        string         `yaml:"session_id"`
	ProblemID        string         `yaml:"problem_id"`
	ProblemDir       string         `yaml:"problem_dir"`
	PrivateSeeds     []uint64       `yaml:"private_seeds"`
	Budget           ResourceUsage  `yaml:"budget"`
	Usage            ResourceUsage  `yaml:"usage"`
	StartedAt        time.Time      `yaml:"started_at"`
	PausedAt         time.Time      `yaml:"paused_at"`
	Duration         time.Duration  `yaml:"duration"`
	UseSameTimeScale bool           `yaml:"use_same_time_scale"`
	NumWorkers       int            `yaml:"num_workers"`
	LastPublicEval   time.Time      `yaml:"last_public_eval,omitempty"`
	PrivateEvalDone  bool           `yaml:"private_eval_done"`
	Actions          []ActionRecord `yaml:"actions,omitempty"`
}

// Snapshot captures the session's current state for a later Resume.
// The session keeps running; callers normally Close it afterwards.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]ActionRecord, len(s.actions))
	copy(actions, s.actions)
	return Snapshot{
		SessionID:        s.id,
		ProblemID:        s.problem.ID,
		ProblemDir:       s.problem.Dir,
		PrivateSeeds:     s.privateSeeds,
		Budget:           s.budget,
		Usage:            s.usage,
		StartedAt:        s.startedAt,
		PausedAt:         s.now(),
		Duration:         s.duration,
		UseSameTimeScale: s.useSameTimeScale,
		NumWorkers:       s.numWorkers,
		LastPublicEval:   s.lastPublicEval,
		PrivateEvalDone:  s.privateEvalDone,
		Actions:          actions,
	}
}

// Save writes the snapshot as YAML.
func (snap Snapshot) Save(path string) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by Save.
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}

// Resume rebuilds a live session from a snapshot. The pause downtime
// does not count against the session lifetime: the start time and the
// last submission time are shifted forward by the time spent paused.
func Resume(ctx context.Context, snap Snapshot, p *problem.Problem, b backend.Backend) (*Session, error) {
	if snap.PrivateEvalDone {
		return nil, ErrSessionFinished
	}
	if p == nil || p.ID != snap.ProblemID {
		return nil, fmt.Errorf("%w: snapshot is for problem %q", ErrInvalidArgument, snap.ProblemID)
	}

	s := &Session{
		id:               snap.SessionID,
		problem:          p,
		backend:          b,
		privateSeeds:     snap.PrivateSeeds,
		budget:           snap.Budget,
		usage:            snap.Usage,
		duration:         snap.Duration,
		useSameTimeScale: snap.UseSameTimeScale,
		numWorkers:       snap.NumWorkers,
		actions:          snap.Actions,
		log:              logging.Logger().Named("session"),
		now:              time.Now,
	}

	publicInputs, err := judge.GenerateInputs(ctx, b, p.ToolDir, p.PublicSeeds, nil)
	if err != nil {
		return nil, fmt.Errorf("regenerating public inputs: %w", err)
	}
	privateInputs, err := judge.GenerateInputs(ctx, b, p.ToolDir, snap.PrivateSeeds, nil)
	if err != nil {
		return nil, fmt.Errorf("regenerating private inputs: %w", err)
	}
	s.publicInputs = publicInputs
	s.privateInputs = privateInputs

	downtime := s.now().Sub(snap.PausedAt)
	if downtime < 0 {
		downtime = 0
	}
	s.startedAt = snap.StartedAt.Add(downtime)
	if !snap.LastPublicEval.IsZero() {
		s.lastPublicEval = snap.LastPublicEval.Add(downtime)
	}

	s.log.Info("session resumed",
		zap.String("session_id", s.id),
		zap.String("problem_id", p.ID),
		zap.Duration("downtime", downtime))
	return s, nil
}
