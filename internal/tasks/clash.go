package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/openbim/ifcpipeline/internal/kind"
)

// Clash runs clash detection across the requested model groups. The
// clash-set definition is handed to the tool as a JSON file with the
// client filenames resolved to absolute paths.
func (e *Env) Clash(ctx context.Context, req kind.ClashRequest) (any, error) {
	resolved := make([]map[string]any, 0, len(req.ClashSets))
	for _, set := range req.ClashSets {
		a, err := e.resolveClashFiles(set.A)
		if err != nil {
			return nil, err
		}
		b, err := e.resolveClashFiles(set.B)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, map[string]any{
			"name": set.Name,
			"a":    a,
			"b":    b,
		})
	}

	out, err := e.output(kind.Clash.OutputDir, req.OutputFilename)
	if err != nil {
		return nil, err
	}

	setsFile, err := e.writeClashSets(resolved)
	if err != nil {
		return nil, err
	}
	defer os.Remove(setsFile)

	tolerance := req.Tolerance
	if tolerance == 0 {
		tolerance = 0.01
	}

	e.Log.Info().Int("clash_sets", len(req.ClashSets)).Float64("tolerance", tolerance).Msg("running clash detection")
	if err := e.runTool(ctx, "ifcclash", out, func(tmpOut string) []string {
		return []string{
			"--sets", setsFile,
			"--tolerance", strconv.FormatFloat(tolerance, 'f', -1, 64),
			"--output", tmpOut,
		}
	}); err != nil {
		return nil, err
	}
	return success(out), nil
}

func (e *Env) resolveClashFiles(files []kind.ClashFile) ([]map[string]string, error) {
	resolved := make([]map[string]string, 0, len(files))
	for _, f := range files {
		path, err := e.input(f.File)
		if err != nil {
			return nil, err
		}
		entry := map[string]string{"file": path}
		if f.Mode != "" {
			entry["mode"] = f.Mode
		}
		resolved = append(resolved, entry)
	}
	return resolved, nil
}

func (e *Env) writeClashSets(sets []map[string]any) (string, error) {
	f, err := os.CreateTemp("", "clash-sets-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create clash set file: %w", err)
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(sets); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write clash set file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
