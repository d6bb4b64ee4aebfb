package tasks

import (
	"context"

	"github.com/openbim/ifcpipeline/internal/kind"
)

// Tester validates a model against an IDS specification and writes a
// report in the requested format.
func (e *Env) Tester(ctx context.Context, req kind.TesterRequest) (any, error) {
	model, err := e.input(req.IfcFilename)
	if err != nil {
		return nil, err
	}
	ids, err := e.input(req.IdsFilename)
	if err != nil {
		return nil, err
	}
	out, err := e.output(kind.Tester.OutputDir, req.OutputFilename)
	if err != nil {
		return nil, err
	}

	reportType := req.ReportType
	if reportType == "" {
		reportType = "json"
	}

	e.Log.Info().Str("model", req.IfcFilename).Str("ids", req.IdsFilename).Str("report", reportType).Msg("running ids validation")
	if err := e.runTool(ctx, "ifctester", out, func(tmpOut string) []string {
		return []string{model, ids, "--reporter", reportType, "--output", tmpOut}
	}); err != nil {
		return nil, err
	}
	return success(out), nil
}
