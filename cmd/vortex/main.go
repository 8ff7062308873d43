package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vortexdl/vortex/internal/errs"
)

const (
	appName = "vortex"
	version = "v1.3.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(errs.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Historical market data download engine",
		Version: version,
		Long: `vortex plans and runs historical OHLCV downloads for futures, stocks,
and forex from Barchart, Yahoo Finance, and Interactive Brokers, and keeps
local CSV or Parquet stores incrementally up to date.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newProvidersCmd())
	return rootCmd
}

// reportError prints the structured error with its remediation hints before
// the process exits with the kind-specific code.
func reportError(err error) {
	log.Error().Err(err).Msg("command failed")
	typed := errs.AsError(err)
	if typed == nil {
		return
	}
	if typed.Help != "" {
		fmt.Fprintf(os.Stderr, "help: %s\n", typed.Help)
	}
	if typed.UserAction != "" {
		fmt.Fprintf(os.Stderr, "action: %s\n", typed.UserAction)
	}
	if typed.CorrelationID != "" {
		fmt.Fprintf(os.Stderr, "correlation id: %s\n", typed.CorrelationID)
	}
}
