package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Submission and resource hard limits.
const (
	// MaxCodeBytes is the largest accepted submission, in UTF-8 bytes.
	MaxCodeBytes = 524288

	// MinMemoryLimit is the smallest runnable memory cap (6 MB).
	MinMemoryLimit int64 = 6291456

	// MaxMemoryLimit caps every execution at 2 GiB RSS.
	MaxMemoryLimit int64 = 2 << 30
)

// Sentinel error kinds. Budget and lifetime violations are recoverable
// except after private evaluation.
var (
	ErrSessionFinished    = errors.New("the session has already finished")
	ErrBudgetExceeded     = errors.New("resource budget exceeded")
	ErrSubmissionInterval = errors.New("submission interval has not elapsed")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// ParseSeed validates one seed string as an unsigned 64-bit integer.
func ParseSeed(s string) (uint64, error) {
	seed, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: seed must be an integer in [0, 2^64): %q", ErrInvalidArgument, s)
	}
	return seed, nil
}

// ValidateCode rejects empty and oversize submissions.
func ValidateCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: code must not be empty", ErrInvalidArgument)
	}
	if len(code) > MaxCodeBytes {
		return fmt.Errorf("%w: code is %d bytes, the maximum is %d", ErrInvalidArgument, len(code), MaxCodeBytes)
	}
	return nil
}

// ValidateTimeLimit rejects non-positive limits. Zero selects the
// problem default upstream, so only explicit values reach here.
func ValidateTimeLimit(seconds float64) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: time limit must be strictly positive", ErrInvalidArgument)
	}
	return nil
}

// ParseMemoryLimit accepts a byte count or a suffixed size string
// ("256m", "1G", "6291456b", case-insensitive). Values below the
// 6 MB floor are rejected; values above the global cap are clamped.
func ParseMemoryLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: memory limit must not be empty", ErrInvalidArgument)
	}
	multiplier := int64(1)
	switch strings.ToLower(s[len(s)-1:]) {
	case "b":
		s = s[:len(s)-1]
	case "k":
		multiplier = 1 << 10
		s = s[:len(s)-1]
	case "m":
		multiplier = 1 << 20
		s = s[:len(s)-1]
	case "g":
		multiplier = 1 << 30
		s = s[:len(s)-1]
	}
	value, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid memory limit %q", ErrInvalidArgument, s)
	}
	bytes := value * multiplier
	if bytes < MinMemoryLimit {
		return 0, fmt.Errorf("%w: memory limit %d is below the %d byte minimum", ErrInvalidArgument, bytes, MinMemoryLimit)
	}
	if bytes > MaxMemoryLimit {
		bytes = MaxMemoryLimit
	}
	return bytes, nil
}

// FilterGenKwargs drops the reserved generator key "dir".
func FilterGenKwargs(kwargs map[string]string) map[string]string {
	if _, ok := kwargs["dir"]; !ok {
		return kwargs
	}
	filtered := make(map[string]string, len(kwargs))
	for key, value := range kwargs {
		if key != "dir" {
			filtered[key] = value
		}
	}
	return filtered
}
