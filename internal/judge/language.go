// Package judge compiles submissions, runs them under CPU, wall-clock
// and memory limits, and scores the outputs with the per-problem
// contest tools.
package judge

import (
	"fmt"
)

// Language identifies a submission language.
type Language string

const (
	CPP17  Language = "cpp17"
	CPP20  Language = "cpp20"
	CPP23  Language = "cpp23"
	Python Language = "python"
	Rust   Language = "rust"
)

// Version selects the judge toolchain generation.
type Version string

const (
	V201907 Version = "201907"
	V202301 Version = "202301"

	// DefaultVersion is assumed when a session does not pin one.
	DefaultVersion = V202301
)

// ParseLanguage converts a string to a Language.
func ParseLanguage(s string) (Language, error) {
	switch Language(s) {
	case CPP17, CPP20, CPP23, Python, Rust:
		return Language(s), nil
	}
	return "", fmt.Errorf("unknown language %q", s)
}

// ParseVersion converts a string to a Version. Empty selects the
// default.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return DefaultVersion, nil
	}
	switch Version(s) {
	case V201907, V202301:
		return Version(s), nil
	}
	return "", fmt.Errorf("unknown judge version %q", s)
}

// ValidatePair rejects language/version combinations the toolchains
// never shipped.
func ValidatePair(lang Language, ver Version) error {
	if ver == V201907 && (lang == CPP20 || lang == CPP23) {
		return fmt.Errorf("language %s is not available on judge version %s", lang, ver)
	}
	return nil
}

// SubmissionFile returns the path, relative to the work directory,
// where the submission source is written.
func SubmissionFile(lang Language) string {
	switch lang {
	case Python:
		return "Main.py"
	case Rust:
		return "src/main.rs"
	default:
		return "Main.cpp"
	}
}

// ObjectFile returns the compile artefact path relative to the work
// directory. For the interpreter the source doubles as the artefact.
func ObjectFile(lang Language) string {
	switch lang {
	case Python:
		return "Main.py"
	case Rust:
		return "target/release/main"
	default:
		return "a.out"
	}
}

// CompileCommand returns the bare compiler invocation for the pair.
func CompileCommand(lang Language, ver Version) string {
	switch lang {
	case Python:
		if ver == V201907 {
			return "python3.8 -m py_compile Main.py"
		}
		return "python3.11 -m py_compile Main.py"
	case Rust:
		return "cargo build --release --offline --quiet"
	case CPP20:
		return "g++-12 -std=gnu++20 -O2 -o a.out Main.cpp"
	case CPP23:
		return "g++-12 -std=gnu++23 -O2 -o a.out Main.cpp"
	default:
		if ver == V201907 {
			return "g++ -std=gnu++17 -Wall -Wextra -O2 -o a.out Main.cpp"
		}
		return "g++-12 -std=gnu++17 -O2 -o a.out Main.cpp"
	}
}

// RunCommand returns the solution invocation for the pair.
func RunCommand(lang Language, ver Version) string {
	switch lang {
	case Python:
		if ver == V201907 {
			return "python3.8 Main.py"
		}
		return "python3.11 Main.py"
	case Rust:
		return "./target/release/main"
	default:
		return "./a.out"
	}
}
