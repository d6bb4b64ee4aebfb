package tasks

import (
	"context"
	"strings"

	"github.com/openbim/ifcpipeline/internal/kind"
)

// CsvExport writes selected model attributes to a tabular file.
func (e *Env) CsvExport(ctx context.Context, req kind.CsvExportRequest) (any, error) {
	in, err := e.input(req.Filename)
	if err != nil {
		return nil, err
	}
	out, err := e.output(kind.CsvExport.OutputDir, req.OutputFilename)
	if err != nil {
		return nil, err
	}

	delimiter := req.Delimiter
	if delimiter == "" {
		delimiter = ","
	}
	nullValue := req.NullValue
	if nullValue == "" {
		nullValue = "-"
	}

	e.Log.Info().Str("input", req.Filename).Str("format", req.Format).Msg("running csv export")
	if err := e.runTool(ctx, "ifccsv", out, func(tmpOut string) []string {
		args := []string{
			"export", in, tmpOut,
			"--format", req.Format,
			"--delimiter", delimiter,
			"--null", nullValue,
		}
		if req.Query != "" {
			args = append(args, "--query", req.Query)
		}
		if len(req.Attributes) > 0 {
			args = append(args, "--attributes", strings.Join(req.Attributes, ","))
		}
		return args
	}); err != nil {
		return nil, err
	}
	return success(out), nil
}

// CsvImport applies an edited tabular file back onto a model. Without
// an explicit output filename the patched model replaces the original
// name under the csv output directory.
func (e *Env) CsvImport(ctx context.Context, req kind.CsvImportRequest) (any, error) {
	model, err := e.input(req.IfcFilename)
	if err != nil {
		return nil, err
	}
	table, err := e.input(req.CsvFilename)
	if err != nil {
		return nil, err
	}

	outName := req.OutputFilename
	if outName == "" {
		outName = req.IfcFilename
	}
	out, err := e.output(kind.CsvImport.OutputDir, outName)
	if err != nil {
		return nil, err
	}

	e.Log.Info().Str("model", req.IfcFilename).Str("table", req.CsvFilename).Msg("running csv import")
	if err := e.runTool(ctx, "ifccsv", out, func(tmpOut string) []string {
		return []string{"import", model, table, "--output", tmpOut}
	}); err != nil {
		return nil, err
	}
	return success(out), nil
}
