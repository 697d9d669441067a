// Package config resolves the server configuration from three layers:
// the config file, ARENA_* environment variables and CLI flags, in
// ascending precedence. Every resolved value remembers where it came
// from so `arena config` can show the provenance.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value" yaml:"value"`
	Source ValueSource `json:"source" yaml:"source"`
	From   string      `json:"from,omitempty" yaml:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath     string
	CLIProblemsDir string
	CLIDBPath      string
	CLIBackend     string
	CLIImage       string
}

// Defaults for values no layer sets.
const (
	DefaultMaxSessions = 4
	DefaultNumWorkers  = 13
	DefaultBackend     = "docker"
	DefaultImage       = "arena-judge:latest"
)

type ResolvedConfig struct {
	ConfigPath string `json:"config_path" yaml:"config_path"`

	ProblemsDir ResolvedValue `json:"problems_dir" yaml:"problems_dir"`
	DBPath      ResolvedValue `json:"db_path" yaml:"db_path"`
	SnapshotDir ResolvedValue `json:"snapshot_dir" yaml:"snapshot_dir"`

	MaxSessions ResolvedValue `json:"max_sessions" yaml:"max_sessions"`
	NumWorkers  ResolvedValue `json:"num_workers" yaml:"num_workers"`
	Lite        ResolvedValue `json:"lite" yaml:"lite"`

	Backend    ResolvedValue `json:"backend" yaml:"backend"`
	Image      ResolvedValue `json:"image" yaml:"image"`
	DockerHost ResolvedValue `json:"docker_host,omitempty" yaml:"docker_host,omitempty"`
}

type fileConfig struct {
	ProblemsDir string `yaml:"problems_dir"`
	DBPath      string `yaml:"db_path"`
	SnapshotDir string `yaml:"snapshot_dir"`
	MaxSessions string `yaml:"max_sessions"`
	NumWorkers  string `yaml:"num_workers"`
	Lite        string `yaml:"lite"`
	Sandbox     struct {
		Backend    string `yaml:"backend"`
		Image      string `yaml:"image"`
		DockerHost string `yaml:"docker_host"`
	} `yaml:"sandbox"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".arena", "config.yaml")
}

func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".arena", "catalog.db")
}

func DefaultSnapshotDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".arena", "snapshots")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath:  path,
		DBPath:      ResolvedValue{Value: DefaultDBPath(), Source: SourceDefault, From: "built-in default"},
		SnapshotDir: ResolvedValue{Value: DefaultSnapshotDir(), Source: SourceDefault, From: "built-in default"},
		MaxSessions: ResolvedValue{Value: strconv.Itoa(DefaultMaxSessions), Source: SourceDefault, From: "built-in default"},
		NumWorkers:  ResolvedValue{Value: strconv.Itoa(DefaultNumWorkers), Source: SourceDefault, From: "built-in default"},
		Lite:        ResolvedValue{Value: "0", Source: SourceDefault, From: "built-in default"},
		Backend:     ResolvedValue{Value: DefaultBackend, Source: SourceDefault, From: "built-in default"},
		Image:       ResolvedValue{Value: DefaultImage, Source: SourceDefault, From: "built-in default"},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}
	if cfg != nil {
		apply(&out.ProblemsDir, cfg.ProblemsDir, SourceConfig, path)
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.SnapshotDir, cfg.SnapshotDir, SourceConfig, path)
		apply(&out.MaxSessions, cfg.MaxSessions, SourceConfig, path)
		apply(&out.NumWorkers, cfg.NumWorkers, SourceConfig, path)
		apply(&out.Lite, cfg.Lite, SourceConfig, path)
		apply(&out.Backend, cfg.Sandbox.Backend, SourceConfig, path)
		apply(&out.Image, cfg.Sandbox.Image, SourceConfig, path)
		apply(&out.DockerHost, cfg.Sandbox.DockerHost, SourceConfig, path)
	}

	applyEnv(&out.ProblemsDir, "ARENA_PROBLEMS")
	applyEnv(&out.DBPath, "ARENA_DB")
	applyEnv(&out.SnapshotDir, "ARENA_SNAPSHOTS")
	applyEnv(&out.MaxSessions, "ARENA_MAX_SESSIONS")
	applyEnv(&out.NumWorkers, "ARENA_NUM_WORKERS")
	applyEnv(&out.Lite, "ARENA_LITE")
	applyEnv(&out.Backend, "ARENA_BACKEND")
	applyEnv(&out.Image, "ARENA_IMAGE")
	applyEnv(&out.DockerHost, "ARENA_DOCKER_HOST")

	apply(&out.ProblemsDir, opts.CLIProblemsDir, SourceCLI, "--problems")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.Backend, opts.CLIBackend, SourceCLI, "--backend")
	apply(&out.Image, opts.CLIImage, SourceCLI, "--image")

	for _, v := range []*ResolvedValue{&out.ProblemsDir, &out.DBPath, &out.SnapshotDir} {
		if v.Value != "" {
			v.Value = expandUserPath(v.Value)
		}
	}

	if err := out.validate(); err != nil {
		return out, err
	}
	return out, nil
}

func (r ResolvedConfig) validate() error {
	if _, err := r.MaxSessionsInt(); err != nil {
		return err
	}
	if _, err := r.NumWorkersInt(); err != nil {
		return err
	}
	if _, err := r.LiteBool(); err != nil {
		return err
	}
	switch r.Backend.Value {
	case "docker", "local":
	default:
		return fmt.Errorf("invalid backend %q from %s (want docker or local)", r.Backend.Value, r.Backend.From)
	}
	return nil
}

// MaxSessionsInt parses the session cap. Malformed values are hard
// errors, never silent defaults.
func (r ResolvedConfig) MaxSessionsInt() (int, error) {
	return parsePositive(r.MaxSessions, "max_sessions")
}

func (r ResolvedConfig) NumWorkersInt() (int, error) {
	return parsePositive(r.NumWorkers, "num_workers")
}

func (r ResolvedConfig) LiteBool() (bool, error) {
	switch r.Lite.Value {
	case "0", "false", "":
		return false, nil
	case "1", "true":
		return true, nil
	}
	return false, fmt.Errorf("invalid lite value %q from %s (want 0 or 1)", r.Lite.Value, r.Lite.From)
}

func parsePositive(v ResolvedValue, name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.Value))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q from %s (want a positive integer)", name, v.Value, v.From)
	}
	return n, nil
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
