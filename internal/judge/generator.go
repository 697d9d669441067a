package judge

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hurttlocker/arena/internal/backend"
	"github.com/hurttlocker/arena/internal/logging"
)

// GenerateInputs runs the problem's generator for the given seeds and
// returns the generated cases in seed order. Extra generator flags are
// passed as --key=value; the key "dir" is reserved by the generator
// itself and is dropped with a warning.
func GenerateInputs(ctx context.Context, b backend.Backend, toolDir string, seeds []uint64, genKwargs map[string]string) ([]string, error) {
	if err := b.SetupToolLinks(ctx, toolDir); err != nil {
		return nil, fmt.Errorf("linking judge tools: %w", err)
	}

	genDir := "/tmp/gen"
	var sb strings.Builder
	for _, seed := range seeds {
		sb.WriteString(strconv.FormatUint(seed, 10))
		sb.WriteByte('\n')
	}
	if err := b.WriteFile(ctx, genDir+"/seeds.txt", sb.String()); err != nil {
		return nil, fmt.Errorf("writing seeds: %w", err)
	}
	if res, err := b.Exec(ctx, "rm -rf in && mkdir in", genDir, 0); err != nil {
		return nil, fmt.Errorf("resetting input dir: %w", err)
	} else if res.ExitCode != 0 {
		return nil, fmt.Errorf("resetting input dir: %s", strings.TrimSpace(res.Stderr))
	}

	cmd := buildGenCommand(genKwargs)
	res, err := b.Exec(ctx, cmd, genDir, GenerationTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to generate the case: %w", err)
	}
	if res.ExitCode != 0 {
		stderr := strings.TrimSpace(res.Stderr)
		if stderr != "" {
			return nil, fmt.Errorf("failed to generate the case, the standard error is:\n%s", stderr)
		}
		return nil, fmt.Errorf("failed to generate the case")
	}

	files, err := b.ListFiles(ctx, genDir+"/in", "*.txt")
	if err != nil {
		return nil, fmt.Errorf("listing generated cases: %w", err)
	}
	for idx, file := range files {
		if path.Base(file) != fmt.Sprintf("%04d.txt", idx) {
			return nil, fmt.Errorf("generated case files must be named 0000.txt, 0001.txt, ...; got %s", path.Base(file))
		}
	}
	if len(files) != len(seeds) {
		return nil, fmt.Errorf("generator produced %d cases for %d seeds", len(files), len(seeds))
	}
	return b.ReadFiles(ctx, files)
}

// buildGenCommand composes the generator invocation. Flags are
// emitted in sorted key order so the command is deterministic.
func buildGenCommand(genKwargs map[string]string) string {
	keys := make([]string, 0, len(genKwargs))
	for key := range genKwargs {
		if key == "dir" {
			logging.Logger().Warn("`dir` is a reserved generator keyword and will be ignored",
				zap.String("value", genKwargs[key]))
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	cmd := backend.GenBin
	for _, key := range keys {
		cmd += fmt.Sprintf(" --%s=%s", key, genKwargs[key])
	}
	cmd += " seeds.txt"
	return cmd
}
