// cmd/cleanup.go
package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openbim/ifcpipeline/internal/vol"
)

var (
	cleanupInterval time.Duration
	cleanupOnce     bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Sweep aged clash and diff artifacts from the output volume",
	Long: `Removes clash and diff result files older than the retention window
(CLEANUP_MAX_AGE_HOURS, default 168h) and prunes subdirectories left
empty. Runs periodically by default; use --once for a single sweep.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger("cleanup")

	sweeper := vol.NewSweeper(cfg.Roots(), cfg.CleanupMaxAge, log)

	if cleanupOnce {
		removed, err := sweeper.Sweep()
		if err != nil {
			return err
		}
		log.Info().Int("removed", removed).Msg("sweep complete")
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	sweeper.Run(ctx, cleanupInterval)
	return nil
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupInterval, "interval", time.Hour, "Time between sweeps")
	cleanupCmd.Flags().BoolVar(&cleanupOnce, "once", false, "Run a single sweep and exit")
	rootCmd.AddCommand(cleanupCmd)
}
