// cmd/worker.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openbim/ifcpipeline/internal/broker"
	"github.com/openbim/ifcpipeline/internal/kind"
	"github.com/openbim/ifcpipeline/internal/tasks"
	"github.com/openbim/ifcpipeline/internal/worker"
)

var workerQueue string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a job queue worker for one tool queue",
	Long: `A worker binds to exactly one queue and serves the handlers of that
queue, running the corresponding IfcOpenShell tool as a subprocess for
each job. Jobs on a queue are processed strictly one at a time; run
more worker processes on the same queue to scale out.

Known queues: ` + fmt.Sprint(kind.Queues()) + `.`,
	RunE: runWorkerCmd,
}

func runWorkerCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workerQueue == "" {
		workerQueue = cfg.QueueName
	}
	if workerQueue == "" {
		return fmt.Errorf("a queue is required: set --queue or QUEUE_NAME")
	}
	log := newLogger("worker")

	ctx := context.Background()
	b := broker.NewClient(broker.Config{URL: cfg.BrokerURL, ResultTTL: cfg.JobResultTTL})
	if err := b.Connect(ctx, cfg.BrokerURL); err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	defer b.Close()
	log.Info().Str("broker", cfg.BrokerURL).Str("queue", workerQueue).Msg("connected to broker")

	env := tasks.NewEnv(cfg.Roots(), cfg.ConverterBinDir, cfg.CustomRecipesDir, log)
	registry := worker.NewRegistry()
	if err := tasks.RegisterQueue(registry, env, workerQueue); err != nil {
		return err
	}

	runner := worker.NewRunner(b, registry, worker.RunnerConfig{Queue: workerQueue}, log)
	return runner.Run(ctx)
}

func init() {
	workerCmd.Flags().StringVar(&workerQueue, "queue", "", "Queue to serve (overrides QUEUE_NAME)")
	rootCmd.AddCommand(workerCmd)
}
