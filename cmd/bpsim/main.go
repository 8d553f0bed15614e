// Command bpsim compares branch predictors over branch traces.
//
// Usage:
//
//	bpsim run [flags] [trace...]
//	bpsim generate [flags]
//	bpsim serve [flags]
//	bpsim runs [flags]
//
// Example:
//
//	# Write the synthetic traces and compare all predictors on them
//	bpsim generate --out-dir traces
//	bpsim run traces/*.txt
//
//	# Same, without touching the disk, as CSV
//	bpsim run --generate --csv > results.csv
//
//	# Run an experiment file and keep the results
//	bpsim run --config experiment.yaml --db bpsim.db
//	bpsim runs --db bpsim.db
//
// Trace files hold one branch per line: a hexadecimal address followed by T
// (taken) or N (not taken).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type rootOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "bpsim",
		Short:        "Branch predictor simulator",
		Long:         "bpsim replays branch traces through 2-bit, perceptron and hybrid predictors and reports accuracy, MPKI and CPI.",
		Example:      "  bpsim generate --out-dir traces\n  bpsim run traces/*.txt\n  bpsim run --generate --csv",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newRunCmd(opts),
		newGenerateCmd(opts),
		newServeCmd(opts),
		newRunsCmd(opts),
	)

	return cmd
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
