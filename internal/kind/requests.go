package kind

import (
	"fmt"

	"github.com/openbim/ifcpipeline/internal/vol"
)

// Request schemas, one per job kind. All file references are filenames
// relative to the shared roots; Validate rejects anything else before
// the payload reaches the broker.

// ConvertRequest converts an IFC model to another format.
type ConvertRequest struct {
	InputFilename  string `json:"input_filename"`
	OutputFilename string `json:"output_filename"`
}

func (r *ConvertRequest) Validate() error {
	if err := requireName("input_filename", r.InputFilename); err != nil {
		return err
	}
	return requireName("output_filename", r.OutputFilename)
}

// CsvExportRequest exports model attributes to a tabular format.
type CsvExportRequest struct {
	Filename       string   `json:"filename"`
	OutputFilename string   `json:"output_filename"`
	Format         string   `json:"format"`
	Delimiter      string   `json:"delimiter"`
	NullValue      string   `json:"null_value"`
	Query          string   `json:"query"`
	Attributes     []string `json:"attributes"`
}

var csvFormats = map[string]bool{"csv": true, "xlsx": true, "ods": true}

func (r *CsvExportRequest) Validate() error {
	if err := requireName("filename", r.Filename); err != nil {
		return err
	}
	if err := requireName("output_filename", r.OutputFilename); err != nil {
		return err
	}
	if !csvFormats[r.Format] {
		return fmt.Errorf("format must be one of csv, xlsx, ods; got %q", r.Format)
	}
	return nil
}

// CsvImportRequest applies edited tabular data back onto a model.
type CsvImportRequest struct {
	IfcFilename    string `json:"ifc_filename"`
	CsvFilename    string `json:"csv_filename"`
	OutputFilename string `json:"output_filename,omitempty"`
}

func (r *CsvImportRequest) Validate() error {
	if err := requireName("ifc_filename", r.IfcFilename); err != nil {
		return err
	}
	if err := requireName("csv_filename", r.CsvFilename); err != nil {
		return err
	}
	if r.OutputFilename != "" {
		return requireName("output_filename", r.OutputFilename)
	}
	return nil
}

// ClashSet is a named grouping of models checked against each other.
type ClashSet struct {
	Name string      `json:"name"`
	A    []ClashFile `json:"a"`
	B    []ClashFile `json:"b"`
}

// ClashFile is one model participating in a clash set.
type ClashFile struct {
	File string `json:"file"`
	Mode string `json:"mode,omitempty"`
}

// ClashRequest runs clash detection across model groups.
type ClashRequest struct {
	ClashSets      []ClashSet `json:"clash_sets"`
	Tolerance      float64    `json:"tolerance"`
	OutputFilename string     `json:"output_filename"`
}

func (r *ClashRequest) Validate() error {
	if len(r.ClashSets) == 0 {
		return fmt.Errorf("clash_sets must not be empty")
	}
	for _, set := range r.ClashSets {
		if set.Name == "" {
			return fmt.Errorf("clash set name must not be empty")
		}
		for _, f := range append(append([]ClashFile{}, set.A...), set.B...) {
			if err := requireName("clash set file", f.File); err != nil {
				return err
			}
		}
	}
	if r.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative")
	}
	return requireName("output_filename", r.OutputFilename)
}

// TesterRequest validates a model against an IDS specification.
type TesterRequest struct {
	IfcFilename    string `json:"ifc_filename"`
	IdsFilename    string `json:"ids_filename"`
	OutputFilename string `json:"output_filename"`
	ReportType     string `json:"report_type"`
}

func (r *TesterRequest) Validate() error {
	if err := requireName("ifc_filename", r.IfcFilename); err != nil {
		return err
	}
	if err := requireName("ids_filename", r.IdsFilename); err != nil {
		return err
	}
	return requireName("output_filename", r.OutputFilename)
}

// DiffRequest compares two model revisions.
type DiffRequest struct {
	OldFile           string `json:"old_file"`
	NewFile           string `json:"new_file"`
	OutputFilename    string `json:"output_filename"`
	RelationshipsOnly bool   `json:"relationships_only,omitempty"`
	ShallowDiff       bool   `json:"shallow_diff,omitempty"`
}

func (r *DiffRequest) Validate() error {
	if err := requireName("old_file", r.OldFile); err != nil {
		return err
	}
	if err := requireName("new_file", r.NewFile); err != nil {
		return err
	}
	return requireName("output_filename", r.OutputFilename)
}

// QtoRequest computes quantity take-offs.
type QtoRequest struct {
	Filename       string `json:"filename"`
	OutputFilename string `json:"output_filename"`
}

func (r *QtoRequest) Validate() error {
	if err := requireName("filename", r.Filename); err != nil {
		return err
	}
	return requireName("output_filename", r.OutputFilename)
}

// PatchRequest applies a named recipe to a model.
type PatchRequest struct {
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
	Recipe     string `json:"recipe"`
	Arguments  []any  `json:"arguments,omitempty"`
	UseCustom  bool   `json:"use_custom,omitempty"`
}

func (r *PatchRequest) Validate() error {
	if err := requireName("input_file", r.InputFile); err != nil {
		return err
	}
	if err := requireName("output_file", r.OutputFile); err != nil {
		return err
	}
	if r.Recipe == "" {
		return fmt.Errorf("recipe must not be empty")
	}
	for _, a := range r.Arguments {
		switch a.(type) {
		case string, float64, bool, nil:
		default:
			return fmt.Errorf("arguments must be primitives")
		}
	}
	return nil
}

// PatchListRequest enumerates available patch recipes. Answered
// synchronously by the gateway within a bounded wait.
type PatchListRequest struct {
	IncludeBuiltin bool `json:"include_builtin"`
	IncludeCustom  bool `json:"include_custom"`
}

func (r *PatchListRequest) Validate() error {
	if !r.IncludeBuiltin && !r.IncludeCustom {
		return fmt.Errorf("at least one of include_builtin, include_custom must be true")
	}
	return nil
}

// JsonRequest converts a model to its JSON representation.
type JsonRequest struct {
	Filename       string `json:"filename"`
	OutputFilename string `json:"output_filename"`
}

func (r *JsonRequest) Validate() error {
	if err := requireName("filename", r.Filename); err != nil {
		return err
	}
	return requireName("output_filename", r.OutputFilename)
}

func requireName(field, name string) error {
	if name == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if err := vol.CheckName(name); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
