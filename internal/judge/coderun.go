package judge

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hurttlocker/arena/internal/backend"
	"github.com/hurttlocker/arena/internal/profile"
)

// Exit statuses reported by CodeRun.
const (
	ExitSuccess           = 0
	ExitCompileError      = -1
	ExitRuntimeError      = 1
	ExitTimeLimitExceeded = 9
	ExitMemoryLimit       = 9
)

// CodeRunResult is the raw outcome of a compile-and-run without
// judging.
type CodeRunResult struct {
	Stdin         string  `yaml:"stdin" json:"stdin"`
	Stdout        string  `yaml:"stdout" json:"stdout"`
	Stderr        string  `yaml:"stderr" json:"stderr"`
	ExitStatus    int     `yaml:"exit_status" json:"exit_status"`
	ExecutionTime float64 `yaml:"execution_time" json:"execution_time"`
	MemoryUsage   int64   `yaml:"memory_usage" json:"memory_usage"`
}

// CodeRun compiles the code and feeds it one stdin, with no tester
// involved. Used for quick experiments inside a session; execution
// time still counts against the session budget.
func CodeRun(ctx context.Context, b backend.Backend, lang Language, ver Version, timeLimit float64, memoryLimit int64, code, stdin string) (CodeRunResult, error) {
	if compileRes := compile(ctx, b, lang, ver, code); compileRes != nil {
		return CodeRunResult{
			Stderr:     strings.TrimPrefix(compileRes.Message, "Failed to compile the code.\nStandard error:\n"),
			ExitStatus: ExitCompileError,
		}, nil
	}

	runDir := "/tmp/coderun/" + uuid.NewString()
	paths := casePaths{
		Input:    runDir + "/input.txt",
		Output:   runDir + "/output.txt",
		Profiles: runDir + "/profiles.json",
	}
	if err := b.WriteFiles(ctx, map[string]string{
		paths.Input:    stdin,
		paths.Output:   "",
		paths.Profiles: "",
	}); err != nil {
		return CodeRunResult{}, err
	}

	cmd := buildBatchRunCommand(lang, ver, timeLimit, paths)
	start := time.Now()
	run, err := b.Exec(ctx, cmd, WorkDir, execDeadline(timeLimit))
	hostWall := time.Since(start).Seconds()
	if err != nil {
		return CodeRunResult{}, err
	}
	stderr := strings.TrimSpace(run.Stderr)

	if run.ExitCode != 0 {
		if hostWall > timeLimit {
			return CodeRunResult{
				Stdin:         stdin,
				Stderr:        stderr,
				ExitStatus:    ExitTimeLimitExceeded,
				ExecutionTime: min(hostWall, timeLimit+0.1),
			}, nil
		}
		return CodeRunResult{
			Stdin:         stdin,
			Stderr:        stderr,
			ExitStatus:    run.ExitCode,
			ExecutionTime: hostWall,
		}, nil
	}

	contents, err := b.ReadFiles(ctx, []string{paths.Output, paths.Profiles})
	if err != nil {
		return CodeRunResult{}, err
	}
	stdout, profilesContent := contents[0], contents[1]

	rep := profile.Parse(profilesContent, timeLimit, memoryLimit, hostWall)
	if rep.Fault != profile.FaultNone {
		return CodeRunResult{
			Stdin:         stdin,
			Stdout:        stdout,
			Stderr:        stderr,
			ExitStatus:    exitStatusForFault(rep.Fault),
			ExecutionTime: rep.ExecutionTime,
			MemoryUsage:   rep.MemoryUsage,
		}, nil
	}
	return CodeRunResult{
		Stdin:         stdin,
		Stdout:        stdout,
		Stderr:        stderr,
		ExitStatus:    ExitSuccess,
		ExecutionTime: rep.ExecutionTime,
		MemoryUsage:   rep.MemoryUsage,
	}, nil
}

func exitStatusForFault(f profile.Fault) int {
	switch f {
	case profile.FaultTimeLimit, profile.FaultMemoryLimit:
		return ExitTimeLimitExceeded
	default:
		return ExitRuntimeError
	}
}
