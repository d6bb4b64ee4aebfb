package tasks

import (
	"context"

	"github.com/openbim/ifcpipeline/internal/kind"
)

// Diff compares two model revisions and writes the change set.
func (e *Env) Diff(ctx context.Context, req kind.DiffRequest) (any, error) {
	oldFile, err := e.input(req.OldFile)
	if err != nil {
		return nil, err
	}
	newFile, err := e.input(req.NewFile)
	if err != nil {
		return nil, err
	}
	out, err := e.output(kind.Diff.OutputDir, req.OutputFilename)
	if err != nil {
		return nil, err
	}

	e.Log.Info().Str("old", req.OldFile).Str("new", req.NewFile).Msg("running diff")
	if err := e.runTool(ctx, "ifcdiff", out, func(tmpOut string) []string {
		args := []string{oldFile, newFile, "--output", tmpOut}
		if req.RelationshipsOnly {
			args = append(args, "--relationships-only")
		}
		if req.ShallowDiff {
			args = append(args, "--shallow")
		}
		return args
	}); err != nil {
		return nil, err
	}
	return success(out), nil
}
