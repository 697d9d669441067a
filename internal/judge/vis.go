package judge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hurttlocker/arena/internal/backend"
)

// Visualize renders one already-produced output without re-running the
// solution. Returns the SVG text, or empty when the problem has no
// visualiser.
func Visualize(ctx context.Context, b backend.Backend, toolDir string, kind VisKind, input, output string) (string, error) {
	if kind == VisNone {
		return "", nil
	}
	if err := b.SetupToolLinks(ctx, toolDir); err != nil {
		return "", fmt.Errorf("linking judge tools: %w", err)
	}
	visDir := "/tmp/vis/" + uuid.NewString()
	paths := casePaths{
		Input:  visDir + "/input.txt",
		Output: visDir + "/output.txt",
	}
	if err := b.WriteFiles(ctx, map[string]string{
		paths.Input:  input,
		paths.Output: output,
	}); err != nil {
		return "", err
	}
	return visualize(ctx, b, kind, visDir, paths)
}
