package judge

import (
	"fmt"
	"math"
	"time"

	"github.com/hurttlocker/arena/internal/backend"
)

const (
	// WorkDir is where submissions are compiled and run.
	WorkDir = "/work"

	// CompileTimeout bounds the compile phase wall clock.
	CompileTimeout = 60 * time.Second

	// GenerationTimeout bounds one generator invocation.
	GenerationTimeout = 300 * time.Second

	// VisualizeTimeout bounds one visualiser invocation.
	VisualizeTimeout = 60 * time.Second

	// RejectedScore is the absolute score reported for any verdict
	// other than ACCEPTED.
	RejectedScore int64 = -1
)

// timeOutputFormat is the /usr/bin/time -f template; every field is
// emitted as a JSON string and re-parsed on the way back.
const timeOutputFormat = `{\"exit_status\": \"%x\", \"elapsed_time_seconds\": \"%e\", ` +
	`\"user_cpu_seconds\": \"%U\", \"system_cpu_seconds\": \"%S\", ` +
	`\"max_resident_set_size_kbytes\": \"%M\"}`

// casePaths carries the staging file locations for one case.
type casePaths struct {
	Input    string
	Output   string
	Profiles string
}

// buildCompileCommand appends the artefact copy steps to the bare
// compiler invocation. The copy to /tmp keeps the artefact readable
// after the work directory is reused.
func buildCompileCommand(lang Language, ver Version) string {
	objRel := ObjectFile(lang)
	return fmt.Sprintf("%s; cp %s/%s /tmp/%s; chmod 744 /tmp/%s",
		CompileCommand(lang, ver), WorkDir, objRel, objRel, objRel)
}

// buildBatchRunCommand wraps the solution in the wall-clock and CPU
// limiters plus the timing wrapper. The outer timeout bounds wall
// clock, prlimit bounds CPU, and the trailing sync flushes the output
// file before the shell exits.
func buildBatchRunCommand(lang Language, ver Version, timeLimit float64, p casePaths) string {
	ceil := math.Ceil(timeLimit + 0.1)
	return fmt.Sprintf(
		`timeout %.1f prlimit --cpu=%.1f /usr/bin/time -f "%s" -o %s %s < %s > %s; sync`,
		ceil+0.2, ceil+0.1, timeOutputFormat, p.Profiles,
		RunCommand(lang, ver), p.Input, p.Output)
}

// buildBatchJudgeCommand scores a finished output.
func buildBatchJudgeCommand(p casePaths) string {
	return fmt.Sprintf("%s %s %s", backend.TesterBin, p.Input, p.Output)
}

// buildReactiveJudgeCommand runs the solution through the tester,
// which drives the interaction and decides the verdict in one pass.
// The timing wrapper still profiles the solution process itself.
func buildReactiveJudgeCommand(lang Language, ver Version, timeLimit float64, p casePaths) string {
	ceil := math.Ceil(timeLimit + 0.1)
	return fmt.Sprintf(
		`timeout %.1f prlimit --cpu=%.1f %s /usr/bin/time -f "%s" -o %s %s < %s > %s; sync`,
		ceil+0.2, ceil+0.1, backend.TesterBin, timeOutputFormat, p.Profiles,
		RunCommand(lang, ver), p.Input, p.Output)
}

// buildVisCommand renders one case.
func buildVisCommand(p casePaths) string {
	return fmt.Sprintf("%s %s %s", backend.VisBin, p.Input, p.Output)
}
