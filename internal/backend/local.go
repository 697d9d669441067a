package backend

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/arena/internal/logging"
)

// Local runs everything through the host filesystem and subprocesses.
// It is the fastest strategy when the host already carries the
// required toolchains.
type Local struct {
	// judgeDir overrides the canonical tool link root, for tests.
	judgeDir string
	log      *zap.Logger
}

var _ Backend = (*Local)(nil)

// NewLocal returns a host-filesystem backend.
func NewLocal() *Local {
	return &Local{judgeDir: JudgeReleaseDir, log: logging.Logger().Named("backend.local")}
}

func (l *Local) WriteFile(ctx context.Context, path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func (l *Local) ReadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *Local) WriteFiles(ctx context.Context, files map[string]string) error {
	for path, content := range files {
		if err := l.WriteFile(ctx, path, content); err != nil {
			return err
		}
	}
	return nil
}

func (l *Local) ReadFiles(ctx context.Context, paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, path := range paths {
		content, err := l.ReadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		out[i] = content
	}
	return out, nil
}

func (l *Local) ListFiles(ctx context.Context, dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (l *Local) FileSize(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (l *Local) Mkdir(ctx context.Context, dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func (l *Local) Exec(ctx context.Context, cmd, workdir string, timeout time.Duration) (ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	c := exec.CommandContext(ctx, "/bin/sh", "-c", cmd)
	c.Dir = workdir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	err := c.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		// A killed deadline also surfaces as an ExitError, so the
		// context must be consulted first.
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	res.ExitCode = 0
	return res, nil
}

func (l *Local) SetupToolLinks(ctx context.Context, toolDir string) error {
	if err := os.MkdirAll(l.judgeDir, 0o755); err != nil {
		return err
	}
	releaseDir := filepath.Join(toolDir, "tools", "target", "release")
	if _, err := os.Stat(releaseDir); err != nil {
		releaseDir = filepath.Join(toolDir, "target", "release")
	}
	for _, tool := range []string{"gen", "tester", "vis"} {
		src := filepath.Join(releaseDir, tool)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(l.judgeDir, tool)
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Symlink(src, dst); err != nil {
			return err
		}
		l.log.Debug("linked judge tool", zap.String("src", src), zap.String("dst", dst))
	}
	return nil
}

func (l *Local) Close() error {
	return nil
}
