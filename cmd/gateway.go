// cmd/gateway.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openbim/ifcpipeline/internal/broker"
	"github.com/openbim/ifcpipeline/internal/gateway"
)

var gatewayAddr string

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the HTTP gateway",
	Long: `The gateway is the HTTP front door of the pipeline. It validates and
enqueues jobs, serves status polls and websocket status streams, accepts
file uploads, mints download links, and reports system health.

Authentication is an API key (X-API-Key) or a CIDR allow-list; the
health, metrics, download and example endpoints are open.`,
	RunE: runGateway,
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if gatewayAddr != "" {
		cfg.GatewayAddr = gatewayAddr
	}
	log := newLogger("gateway")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := broker.NewClient(broker.Config{URL: cfg.BrokerURL, ResultTTL: cfg.JobResultTTL})
	if err := b.Connect(ctx, cfg.BrokerURL); err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	defer b.Close()
	log.Info().Str("broker", cfg.BrokerURL).Msg("connected to broker")

	srv, err := gateway.NewServer(cfg, b, log)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	gatewayCmd.Flags().StringVar(&gatewayAddr, "addr", "", "Listen address (overrides GATEWAY_ADDR)")
	rootCmd.AddCommand(gatewayCmd)
}
