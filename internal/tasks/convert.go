package tasks

import (
	"context"

	"github.com/openbim/ifcpipeline/internal/kind"
)

// Convert transforms an IFC model into the format implied by the output
// filename extension (GLB, OBJ, SVG, ...).
func (e *Env) Convert(ctx context.Context, req kind.ConvertRequest) (any, error) {
	in, err := e.input(req.InputFilename)
	if err != nil {
		return nil, err
	}
	out, err := e.output(kind.Convert.OutputDir, req.OutputFilename)
	if err != nil {
		return nil, err
	}

	e.Log.Info().Str("input", req.InputFilename).Str("output", req.OutputFilename).Msg("running conversion")
	if err := e.runTool(ctx, "ifcconvert", out, func(tmpOut string) []string {
		return []string{in, tmpOut, "-y"}
	}); err != nil {
		return nil, err
	}
	return success(out), nil
}
