package kind

import "testing"

func TestConvertRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ConvertRequest
		wantErr bool
	}{
		{"valid", ConvertRequest{InputFilename: "model.ifc", OutputFilename: "model.glb"}, false},
		{"missing input", ConvertRequest{OutputFilename: "model.glb"}, true},
		{"missing output", ConvertRequest{InputFilename: "model.ifc"}, true},
		{"traversal in input", ConvertRequest{InputFilename: "../model.ifc", OutputFilename: "model.glb"}, true},
		{"absolute output", ConvertRequest{InputFilename: "model.ifc", OutputFilename: "/tmp/model.glb"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCsvExportRequestValidate(t *testing.T) {
	valid := CsvExportRequest{Filename: "m.ifc", OutputFilename: "out.csv", Format: "csv"}

	tests := []struct {
		name    string
		mutate  func(r *CsvExportRequest)
		wantErr bool
	}{
		{"valid csv", func(r *CsvExportRequest) {}, false},
		{"valid xlsx", func(r *CsvExportRequest) { r.Format = "xlsx" }, false},
		{"valid ods", func(r *CsvExportRequest) { r.Format = "ods" }, false},
		{"unknown format", func(r *CsvExportRequest) { r.Format = "pdf" }, true},
		{"empty format", func(r *CsvExportRequest) { r.Format = "" }, true},
		{"missing filename", func(r *CsvExportRequest) { r.Filename = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCsvImportRequestValidate(t *testing.T) {
	req := CsvImportRequest{IfcFilename: "m.ifc", CsvFilename: "edits.csv"}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate() without output error = %v", err)
	}

	req.OutputFilename = "../evil.ifc"
	if err := req.Validate(); err == nil {
		t.Error("Validate() accepted traversal in optional output")
	}
}

func TestClashRequestValidate(t *testing.T) {
	valid := ClashRequest{
		ClashSets: []ClashSet{{
			Name: "structure vs mep",
			A:    []ClashFile{{File: "structure.ifc"}},
			B:    []ClashFile{{File: "mep.ifc", Mode: "i"}},
		}},
		Tolerance:      0.01,
		OutputFilename: "clashes.json",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(r *ClashRequest)
	}{
		{"no sets", func(r *ClashRequest) { r.ClashSets = nil }},
		{"unnamed set", func(r *ClashRequest) { r.ClashSets[0].Name = "" }},
		{"traversal in set file", func(r *ClashRequest) { r.ClashSets[0].B[0].File = "../mep.ifc" }},
		{"negative tolerance", func(r *ClashRequest) { r.Tolerance = -1 }},
		{"missing output", func(r *ClashRequest) { r.OutputFilename = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ClashRequest{
				ClashSets: []ClashSet{{
					Name: "structure vs mep",
					A:    []ClashFile{{File: "structure.ifc"}},
					B:    []ClashFile{{File: "mep.ifc"}},
				}},
				Tolerance:      0.01,
				OutputFilename: "clashes.json",
			}
			tt.mutate(&req)
			if err := req.Validate(); err == nil {
				t.Error("Validate() accepted invalid request")
			}
		})
	}
}

func TestPatchRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     PatchRequest
		wantErr bool
	}{
		{
			"valid with primitive args",
			PatchRequest{InputFile: "m.ifc", OutputFile: "out.ifc", Recipe: "ExtractElements", Arguments: []any{"IfcWall", 2.5, true, nil}},
			false,
		},
		{
			"missing recipe",
			PatchRequest{InputFile: "m.ifc", OutputFile: "out.ifc"},
			true,
		},
		{
			"nested argument",
			PatchRequest{InputFile: "m.ifc", OutputFile: "out.ifc", Recipe: "R", Arguments: []any{map[string]any{"a": 1}}},
			true,
		},
		{
			"array argument",
			PatchRequest{InputFile: "m.ifc", OutputFile: "out.ifc", Recipe: "R", Arguments: []any{[]any{"x"}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPatchListRequestValidate(t *testing.T) {
	req := PatchListRequest{}
	if err := req.Validate(); err == nil {
		t.Error("Validate() accepted neither builtin nor custom")
	}
	req.IncludeBuiltin = true
	if err := req.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestQueuesCoverAllKinds(t *testing.T) {
	queues := Queues()
	want := map[string]bool{
		QueueConvert: true, QueueCsv: true, QueueClash: true, QueueTester: true,
		QueueDiff: true, QueueQto: true, QueuePatch: true, QueueJson: true,
	}
	if len(queues) != len(want) {
		t.Fatalf("Queues() has %d entries, want %d", len(queues), len(want))
	}
	for _, q := range queues {
		if !want[q] {
			t.Errorf("unexpected queue %q", q)
		}
	}
}
