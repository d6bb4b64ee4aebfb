// cmd/root.go
/*
Copyright © 2025 OpenBIM <dev@openbim.dev>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openbim/ifcpipeline/internal/config"
)

var (
	cfgFile   string
	debugMode bool
	jsonLogs  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ifcpipeline",
	Short: "ifcpipeline runs the IFC processing pipeline services",
	Long: `A single binary for the IFC processing pipeline: the HTTP gateway,
the per-queue workers that run the IfcOpenShell tools, and the artifact
cleanup sweep. All processes share a Redis broker and a common volume
for uploads and outputs.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !debugMode {
			return
		}
		// Echo the invocation so debug logs are self-describing.
		fullCmd := "ifcpipeline"
		if cmd.Name() != "ifcpipeline" {
			fullCmd += " " + cmd.Name()
		}
		cmd.Flags().Visit(func(f *pflag.Flag) {
			if f.Name == "debug" {
				return
			}
			if f.Value.Type() == "bool" {
				fullCmd += " --" + f.Name
			} else {
				fullCmd += " --" + f.Name + "=" + f.Value.String()
			}
		})
		if len(args) > 0 {
			fullCmd += " " + strings.Join(args, " ")
		}
		fmt.Printf("[DEBUG] command: %s\n", fullCmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, environment overrides it)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit JSON logs instead of console output")
}

// loadConfig builds the effective configuration for a command.
func loadConfig() (config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger builds the process logger honoring the global flags.
func newLogger(component string) zerolog.Logger {
	level := zerolog.InfoLevel
	if debugMode {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if jsonLogs {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
	return logger.Level(level).With().Timestamp().Str("component", component).Logger()
}
