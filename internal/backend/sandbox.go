package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hurttlocker/arena/internal/logging"
)

// writeChunkSize bounds one base64 block streamed per exec round-trip.
const writeChunkSize = 50000

// SandboxConfig describes the container the sandbox backend drives.
type SandboxConfig struct {
	Image       string
	WorkDir     string
	MemoryLimit int64
	Host        string
}

// Sandbox forwards every backend operation into a long-lived Docker
// container. Files are streamed as base64 blocks and reassembled with
// a decode pipeline, so the host never shares a filesystem with the
// judge.
type Sandbox struct {
	cli         *client.Client
	containerID string
	log         *zap.Logger

	mu     sync.Mutex
	closed bool
}

var _ Backend = (*Sandbox)(nil)

// NewSandbox creates and starts the judge container. The container
// runs detached with networking disabled and a single CPU.
func NewSandbox(ctx context.Context, cfg SandboxConfig) (*Sandbox, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	created, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image:      cfg.Image,
			Cmd:        []string{"sleep", "infinity"},
			WorkingDir: cfg.WorkDir,
		},
		&container.HostConfig{
			NetworkMode: "none",
			Resources: container.Resources{
				CPUPeriod: 100000,
				CPUQuota:  100000,
				Memory:    cfg.MemoryLimit,
			},
		},
		nil, nil, "arena-judge-"+uuid.NewString()[:8])
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating judge container: %w", err)
	}
	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
		cli.Close()
		return nil, fmt.Errorf("starting judge container: %w", err)
	}
	log := logging.Logger().Named("backend.sandbox")
	log.Info("judge container started",
		zap.String("image", cfg.Image),
		zap.String("container_id", created.ID[:12]))
	return &Sandbox{cli: cli, containerID: created.ID, log: log}, nil
}

func (s *Sandbox) WriteFile(ctx context.Context, filePath, content string) error {
	dir := path.Dir(filePath)
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	cmd := fmt.Sprintf("mkdir -p %s && : > %s", shellQuote(dir), shellQuote(filePath))
	if _, err := s.run(ctx, cmd, "", 0); err != nil {
		return err
	}
	for off := 0; off < len(encoded); off += writeChunkSize {
		end := min(off+writeChunkSize, len(encoded))
		cmd := fmt.Sprintf("printf %%s %s | base64 -d >> %s", shellQuote(encoded[off:end]), shellQuote(filePath))
		if _, err := s.run(ctx, cmd, "", 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sandbox) ReadFile(ctx context.Context, filePath string) (string, error) {
	res, err := s.run(ctx, "base64 "+shellQuote(filePath), "", 0)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("reading %s: %s", filePath, strings.TrimSpace(res.Stderr))
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(res.Stdout, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", filePath, err)
	}
	return string(decoded), nil
}

func (s *Sandbox) WriteFiles(ctx context.Context, files map[string]string) error {
	for filePath, content := range files {
		if err := s.WriteFile(ctx, filePath, content); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sandbox) ReadFiles(ctx context.Context, paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, filePath := range paths {
		content, err := s.ReadFile(ctx, filePath)
		if err != nil {
			return nil, err
		}
		out[i] = content
	}
	return out, nil
}

func (s *Sandbox) ListFiles(ctx context.Context, dir, pattern string) ([]string, error) {
	cmd := fmt.Sprintf("cd %s && ls -1d %s 2>/dev/null", shellQuote(dir), pattern)
	res, err := s.run(ctx, cmd, "", 0)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, path.Join(dir, line))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Sandbox) FileSize(ctx context.Context, filePath string) (int64, error) {
	res, err := s.run(ctx, "wc -c < "+shellQuote(filePath), "", 0)
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		return 0, fmt.Errorf("sizing %s: %s", filePath, strings.TrimSpace(res.Stderr))
	}
	size, err := strconv.ParseInt(strings.TrimSpace(res.Stdout), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sizing %s: %w", filePath, err)
	}
	return size, nil
}

func (s *Sandbox) Mkdir(ctx context.Context, dir string) error {
	res, err := s.run(ctx, "mkdir -p "+shellQuote(dir), "", 0)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("mkdir %s: %s", dir, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (s *Sandbox) Exec(ctx context.Context, cmd, workdir string, timeout time.Duration) (ExecResult, error) {
	return s.run(ctx, cmd, workdir, timeout)
}

func (s *Sandbox) SetupToolLinks(ctx context.Context, toolDir string) error {
	cmd := fmt.Sprintf(
		"mkdir -p %[1]s && "+
			"R=%[2]s/tools/target/release; [ -d \"$R\" ] || R=%[2]s/target/release; "+
			"ln -sf \"$R\"/gen %[1]s/gen && "+
			"ln -sf \"$R\"/tester %[1]s/tester && "+
			"ln -sf \"$R\"/vis %[1]s/vis",
		JudgeReleaseDir, shellQuote(toolDir))
	res, err := s.run(ctx, cmd, "", 0)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("linking judge tools: %s", strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Close removes the judge container. Safe to call more than once.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := s.cli.ContainerRemove(ctx, s.containerID, container.RemoveOptions{Force: true})
	s.cli.Close()
	if err != nil {
		return fmt.Errorf("removing judge container: %w", err)
	}
	s.log.Info("judge container removed", zap.String("container_id", s.containerID[:12]))
	return nil
}

// run executes one shell command inside the container.
func (s *Sandbox) run(ctx context.Context, cmd, workdir string, timeout time.Duration) (ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	execCreate, err := s.cli.ContainerExecCreate(ctx, s.containerID, container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", cmd},
		WorkingDir:   workdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("creating exec: %w", err)
	}
	attachResp, err := s.cli.ContainerExecAttach(ctx, execCreate.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("attaching to exec: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		done <- copyErr
	}()
	select {
	case err := <-done:
		if err != nil {
			return ExecResult{}, fmt.Errorf("streaming exec output: %w", err)
		}
	case <-ctx.Done():
		return ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()
	}

	inspect, err := s.cli.ContainerExecInspect(ctx, execCreate.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("inspecting exec: %w", err)
	}
	return ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// shellQuote single-quotes s for /bin/sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
