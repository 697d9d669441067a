// Package profile parses the resource-usage record written by the
// timing wrapper that runs alongside every submission.
//
// The record is a JSON object whose values are all strings (the
// wrapper emits them via a printf format). The file may be prefixed
// by one informational line when the process was killed or exited
// non-zero; those lines are not JSON and are stripped first.
package profile

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Fault classifies a record that could not be turned into a clean
// profile. FaultNone means the run completed inside every limit.
type Fault int

const (
	FaultNone Fault = iota
	FaultRuntimeError
	FaultTimeLimit
	FaultMemoryLimit
	FaultWrongAnswer
	FaultInternal
)

const (
	signalKilledPrefix   = "Command terminated by signal 9"
	nonZeroStatusPrefix  = "Command exited with non-zero status"
	timeLimitSlackSecond = 0.1
)

// Report is the outcome of parsing one profile record. ExecutionTime
// and MemoryUsage are filled for every fault kind so the caller can
// attach them to the case verdict directly.
type Report struct {
	Fault         Fault
	Message       string
	ExecutionTime float64
	MemoryUsage   int64
}

type record struct {
	ExitStatus       string `json:"exit_status"`
	ElapsedSeconds   string `json:"elapsed_time_seconds"`
	UserCPUSeconds   string `json:"user_cpu_seconds"`
	SystemCPUSeconds string `json:"system_cpu_seconds"`
	MaxRSSKilobytes  string `json:"max_resident_set_size_kbytes"`
}

// Parse applies the parsing rules in order and returns a Report.
// hostWall is the wall-clock time observed by the host around the
// whole run command; it is the only timing available when the record
// is empty.
func Parse(content string, timeLimit float64, memoryLimit int64, hostWall float64) Report {
	isTLE := false
	switch {
	case content == "":
		if hostWall > timeLimit {
			return Report{
				Fault:         FaultTimeLimit,
				Message:       "Time limit exceeded.",
				ExecutionTime: min(hostWall, timeLimit+timeLimitSlackSecond),
			}
		}
		return Report{
			Fault:         FaultRuntimeError,
			Message:       "Runtime error.",
			ExecutionTime: hostWall,
		}
	case strings.HasPrefix(content, signalKilledPrefix):
		content = dropFirstLine(content)
		isTLE = true
	case strings.HasPrefix(content, nonZeroStatusPrefix):
		content = dropFirstLine(content)
	}
	content = strings.TrimSpace(content)

	var rec record
	if err := json.Unmarshal([]byte(content), &rec); err != nil {
		return Report{
			Fault:         FaultWrongAnswer,
			Message:       "Wrong answer.",
			ExecutionTime: min(hostWall, timeLimit+timeLimitSlackSecond),
		}
	}

	exitStatus, err1 := strconv.Atoi(rec.ExitStatus)
	elapsed, err2 := strconv.ParseFloat(rec.ElapsedSeconds, 64)
	userCPU, err3 := strconv.ParseFloat(rec.UserCPUSeconds, 64)
	systemCPU, err4 := strconv.ParseFloat(rec.SystemCPUSeconds, 64)
	maxRSS, err5 := strconv.ParseInt(rec.MaxRSSKilobytes, 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return Report{
			Fault:         FaultInternal,
			Message:       "Internal Error: Invalid profiles format.",
			ExecutionTime: min(hostWall, timeLimit+timeLimitSlackSecond),
		}
	}

	executionTime := max(elapsed, userCPU+systemCPU)
	memoryUsage := maxRSS * 1024

	switch {
	case exitStatus != 0:
		return Report{
			Fault:         FaultRuntimeError,
			Message:       "Runtime error.",
			ExecutionTime: min(executionTime, timeLimit+timeLimitSlackSecond),
			MemoryUsage:   memoryUsage,
		}
	case executionTime > timeLimit || isTLE:
		return Report{
			Fault:         FaultTimeLimit,
			Message:       "Time limit exceeded.",
			ExecutionTime: min(executionTime, timeLimit+timeLimitSlackSecond),
			MemoryUsage:   memoryUsage,
		}
	case memoryUsage > memoryLimit:
		return Report{
			Fault:         FaultMemoryLimit,
			Message:       "Memory limit exceeded.",
			ExecutionTime: executionTime,
			MemoryUsage:   memoryUsage,
		}
	}
	return Report{
		ExecutionTime: executionTime,
		MemoryUsage:   memoryUsage,
	}
}

func dropFirstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return ""
}
