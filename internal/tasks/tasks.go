// Package tasks contains the worker-side handlers for every job kind.
//
// The transformations themselves are external tools (IfcOpenShell-based
// converters) invoked as subprocesses; the handlers here own the file
// contract: inputs are resolved under the uploads root, outputs are
// produced atomically under the kind's output directory, and a
// structured result is returned for the job record.
package tasks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/openbim/ifcpipeline/internal/vol"
)

// CommandRunner executes an external tool and returns its combined
// output. Swappable for tests.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Env carries the shared resources every handler needs.
type Env struct {
	Roots            vol.Roots
	BinDir           string
	CustomRecipesDir string
	Log              zerolog.Logger
	Run              CommandRunner
}

// NewEnv creates a handler environment with the default subprocess
// runner.
func NewEnv(roots vol.Roots, binDir, customRecipesDir string, log zerolog.Logger) *Env {
	return &Env{
		Roots:            roots,
		BinDir:           binDir,
		CustomRecipesDir: customRecipesDir,
		Log:              log,
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			cmd := exec.CommandContext(ctx, name, args...)
			return cmd.CombinedOutput()
		},
	}
}

// tool returns the absolute path of an external transformation tool.
func (e *Env) tool(name string) string {
	return filepath.Join(e.BinDir, name)
}

// input resolves a client filename under the uploads root and verifies
// the file exists.
func (e *Env) input(name string) (string, error) {
	path, err := vol.SafeJoin(e.Roots.Uploads, name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("input file %s: %w", name, err)
	}
	return path, nil
}

// output resolves an output filename under the kind's output
// subdirectory, creating the directory as needed.
func (e *Env) output(subdir, name string) (string, error) {
	dir := e.Roots.OutputFor(subdir)
	path, err := vol.SafeJoin(dir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return path, nil
}

// runTool invokes an external tool that writes outPath. The tool is
// pointed at a temporary sibling path which is renamed into place only
// on success, so concurrent readers never see a partial artifact.
// buildArgs receives the temporary path the tool must write.
func (e *Env) runTool(ctx context.Context, toolName, outPath string, buildArgs func(tmpOut string) []string) error {
	tmpOut := filepath.Join(filepath.Dir(outPath), "."+filepath.Base(outPath)+".tmp")
	defer os.Remove(tmpOut)

	out, err := e.Run(ctx, e.tool(toolName), buildArgs(tmpOut)...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %v: %s", toolName, err, firstLines(out, 800))
	}
	if _, err := os.Stat(tmpOut); err != nil {
		return fmt.Errorf("%s produced no output: %w", toolName, err)
	}
	if err := os.Rename(tmpOut, outPath); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

// success is the common result shape for file-producing handlers.
func success(outPath string) map[string]any {
	return map[string]any{
		"success":     true,
		"output_path": outPath,
	}
}

// firstLines truncates tool output for error messages.
func firstLines(b []byte, max int) string {
	s := string(b)
	if len(s) > max {
		s = s[:max]
	}
	return s
}
