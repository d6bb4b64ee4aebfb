// cmd/status.go
package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openbim/ifcpipeline/internal/health"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
	noColor     bool
	statusURL   string
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Shows the health of a running pipeline gateway",
	Long: `Queries the gateway's /health endpoint and prints the broker state,
per-queue state and host vitals in a readable form.`,
	Example: `  # Check the local gateway
  ifcpipeline status

  # Check a remote gateway without colors (for scripts/logging)
  ifcpipeline status --url http://gateway:8000 --no-color`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	if noColor {
		color.NoColor = true
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(statusURL + "/health")
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", statusURL, err)
	}
	defer resp.Body.Close()

	var report health.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("unexpected /health response: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	headerColor.Fprintf(w, "--- Pipeline Status (%s) ---\n", statusURL)

	fmt.Fprintf(w, "\n%s:\t%s\n", labelColor.Sprint("Overall"), stateColor(report.Status).Sprint(report.Status))
	fmt.Fprintf(w, "%s:\t%s\n", labelColor.Sprint("Broker"), stateColor(report.Broker).Sprint(report.Broker))

	headerColor.Fprintln(w, "\nQUEUES")
	names := make([]string, 0, len(report.Queues))
	for name := range report.Queues {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		state := report.Queues[name]
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint(name), queueColor(state).Sprint(state))
	}

	headerColor.Fprintln(w, "\nSYSTEM VITALS")
	fmt.Fprintf(w, "  %s:\t%d\n", labelColor.Sprint("CPUs"), report.System.CPUCount)
	fmt.Fprintf(w, "  %s:\t%.1f%%\n", labelColor.Sprint("CPU Usage"), report.System.CPUPercent)
	fmt.Fprintf(w, "  %s:\t%.1f%%\n", labelColor.Sprint("Memory Usage"), report.System.MemoryUsedPercent)
	fmt.Fprintf(w, "  %s:\t%.1f%%\n", labelColor.Sprint("Disk Usage"), report.System.DiskUsedPercent)

	return nil
}

func stateColor(state string) *color.Color {
	switch state {
	case "healthy", "ok":
		return goodColor
	case "degraded":
		return warnColor
	default:
		return badColor
	}
}

func queueColor(state string) *color.Color {
	switch state {
	case health.QueueHealthy:
		return goodColor
	case health.QueueWaiting:
		return warnColor
	default:
		return badColor
	}
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", "http://localhost:8000", "Gateway base URL")
	statusCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.AddCommand(statusCmd)
}
