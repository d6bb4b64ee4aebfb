package tasks

import (
	"fmt"

	"github.com/openbim/ifcpipeline/internal/kind"
	"github.com/openbim/ifcpipeline/internal/worker"
)

// RegisterQueue populates a registry with the handlers served by one
// queue. A worker process registers exactly the handlers of its bound
// queue; everything else stays unknown on purpose.
func RegisterQueue(reg *worker.Registry, env *Env, queue string) error {
	switch queue {
	case kind.QueueConvert:
		worker.Register(reg, kind.HandlerConvert, env.Convert)
	case kind.QueueCsv:
		worker.Register(reg, kind.HandlerCsvExport, env.CsvExport)
		worker.Register(reg, kind.HandlerCsvImport, env.CsvImport)
	case kind.QueueClash:
		worker.Register(reg, kind.HandlerClash, env.Clash)
	case kind.QueueTester:
		worker.Register(reg, kind.HandlerTester, env.Tester)
	case kind.QueueDiff:
		worker.Register(reg, kind.HandlerDiff, env.Diff)
	case kind.QueueQto:
		worker.Register(reg, kind.HandlerQto, env.Qto)
	case kind.QueuePatch:
		worker.Register(reg, kind.HandlerPatch, env.Patch)
		worker.Register(reg, kind.HandlerPatchList, env.PatchList)
	case kind.QueueJson:
		worker.Register(reg, kind.HandlerJson, env.Json)
	default:
		return fmt.Errorf("unknown queue %q", queue)
	}
	return nil
}
