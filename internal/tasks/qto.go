package tasks

import (
	"context"

	"github.com/openbim/ifcpipeline/internal/kind"
)

// Qto computes quantity take-offs for a model.
func (e *Env) Qto(ctx context.Context, req kind.QtoRequest) (any, error) {
	in, err := e.input(req.Filename)
	if err != nil {
		return nil, err
	}
	out, err := e.output(kind.Qto.OutputDir, req.OutputFilename)
	if err != nil {
		return nil, err
	}

	e.Log.Info().Str("input", req.Filename).Msg("running quantity take-off")
	if err := e.runTool(ctx, "ifc5d", out, func(tmpOut string) []string {
		return []string{in, "--output", tmpOut}
	}); err != nil {
		return nil, err
	}
	return success(out), nil
}
