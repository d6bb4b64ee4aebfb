// Package kind enumerates the job kinds the pipeline understands: their
// queue names, wire-stable handler names, per-kind timeouts and output
// subdirectories.
package kind

import "time"

// Queue names. One worker pool serves each queue.
const (
	QueueConvert = "ifcconvert"
	QueueCsv     = "ifccsv"
	QueueClash   = "ifcclash"
	QueueTester  = "ifctester"
	QueueDiff    = "ifcdiff"
	QueueQto     = "ifc5d"
	QueuePatch   = "ifcpatch"
	QueueJson    = "ifc2json"
)

// Handler names resolved in the target worker's registry. These are
// part of the wire protocol and must not change.
const (
	HandlerConvert   = "tasks.run_ifcconvert"
	HandlerCsvExport = "tasks.run_ifccsv_export"
	HandlerCsvImport = "tasks.run_ifccsv_import"
	HandlerClash     = "tasks.run_ifcclash_detection"
	HandlerTester    = "tasks.run_ifctester"
	HandlerDiff      = "tasks.run_ifcdiff"
	HandlerQto       = "tasks.run_qto_calculation"
	HandlerPatch     = "tasks.run_ifcpatch"
	HandlerPatchList = "tasks.list_ifcpatch_recipes"
	HandlerJson      = "tasks.run_ifc2json"
)

// Timeouts per kind: long for clash/diff, short for the rest.
const (
	LongTimeout  = 2 * time.Hour
	ShortTimeout = 1 * time.Hour
)

// Kind describes one enqueueable job kind.
type Kind struct {
	Name      string
	Queue     string
	Handler   string
	Timeout   time.Duration
	OutputDir string // subdirectory below the output root
}

// All known kinds, keyed by name.
var (
	Convert   = Kind{"convert", QueueConvert, HandlerConvert, ShortTimeout, "converted"}
	CsvExport = Kind{"csv_export", QueueCsv, HandlerCsvExport, ShortTimeout, "csv"}
	CsvImport = Kind{"csv_import", QueueCsv, HandlerCsvImport, ShortTimeout, "csv"}
	Clash     = Kind{"clash", QueueClash, HandlerClash, LongTimeout, "clash"}
	Tester    = Kind{"tester", QueueTester, HandlerTester, ShortTimeout, "tester"}
	Diff      = Kind{"diff", QueueDiff, HandlerDiff, LongTimeout, "diff"}
	Qto       = Kind{"qto", QueueQto, HandlerQto, ShortTimeout, "qto"}
	Patch     = Kind{"patch", QueuePatch, HandlerPatch, ShortTimeout, "patch"}
	PatchList = Kind{"patch_list", QueuePatch, HandlerPatchList, ShortTimeout, "patch"}
	Json      = Kind{"json", QueueJson, HandlerJson, ShortTimeout, "json"}
)

// Queues lists every queue the pipeline serves, for health reporting.
func Queues() []string {
	return []string{
		QueueConvert, QueueCsv, QueueClash, QueueTester,
		QueueDiff, QueueQto, QueuePatch, QueueJson,
	}
}
