package tasks

import (
	"context"

	"github.com/openbim/ifcpipeline/internal/kind"
)

// Json converts a model to its JSON representation.
func (e *Env) Json(ctx context.Context, req kind.JsonRequest) (any, error) {
	in, err := e.input(req.Filename)
	if err != nil {
		return nil, err
	}
	out, err := e.output(kind.Json.OutputDir, req.OutputFilename)
	if err != nil {
		return nil, err
	}

	e.Log.Info().Str("input", req.Filename).Msg("running json conversion")
	if err := e.runTool(ctx, "ifc2json", out, func(tmpOut string) []string {
		return []string{in, tmpOut}
	}); err != nil {
		return nil, err
	}
	return success(out), nil
}
