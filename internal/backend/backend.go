// Package backend abstracts where judge commands run and where judge
// files live. The local backend works directly on the host filesystem;
// the sandbox backend forwards every operation into a Docker container.
// Both expose identical semantics to the case runner.
package backend

import (
	"context"
	"time"
)

const (
	// JudgeReleaseDir is where setup_tool_links places the contest
	// tool binaries inside the execution root.
	JudgeReleaseDir = "/judge/target/release"

	// GenBin, TesterBin and VisBin are the canonical tool paths the
	// run commands reference.
	GenBin    = JudgeReleaseDir + "/gen"
	TesterBin = JudgeReleaseDir + "/tester"
	VisBin    = JudgeReleaseDir + "/vis"
)

// ExecResult carries the outcome of one shell command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Backend is the minimal file and exec surface the case runner needs.
// Every operation may fail with a transport error; callers treat any
// failure other than a clean non-zero exit as an internal error.
type Backend interface {
	// WriteFile writes content to path, creating parent directories.
	WriteFile(ctx context.Context, path, content string) error

	// ReadFile returns the full content of path.
	ReadFile(ctx context.Context, path string) (string, error)

	// WriteFiles writes several files; no atomicity across entries.
	WriteFiles(ctx context.Context, files map[string]string) error

	// ReadFiles reads several files, returned in argument order.
	ReadFiles(ctx context.Context, paths []string) ([]string, error)

	// ListFiles returns the paths under dir matching the glob
	// pattern, sorted lexicographically.
	ListFiles(ctx context.Context, dir, pattern string) ([]string, error)

	// FileSize returns the size of path in bytes.
	FileSize(ctx context.Context, path string) (int64, error)

	// Mkdir creates dir and any missing parents.
	Mkdir(ctx context.Context, dir string) error

	// Exec runs cmd through /bin/sh -c in workdir. A zero timeout
	// means no limit beyond the context. A non-zero exit is not an
	// error; the exit code is reported in the result.
	Exec(ctx context.Context, cmd, workdir string, timeout time.Duration) (ExecResult, error)

	// SetupToolLinks makes the gen/tester/vis binaries under toolDir
	// reachable at the canonical JudgeReleaseDir paths.
	SetupToolLinks(ctx context.Context, toolDir string) error

	// Close releases backend resources. Safe to call more than once.
	Close() error
}
