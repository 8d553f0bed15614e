package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/bpsim/results"
)

type runsOptions struct {
	root *rootOptions

	dbPath string
	limit  int
	show   string
	json   bool
}

func newRunsCmd(root *rootOptions) *cobra.Command {
	opts := &runsOptions{root: root}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dbPath, "db", "bpsim.db", "SQLite database")
	f.IntVar(&opts.limit, "limit", 20, "Maximum number of runs to list (0 = all)")
	f.StringVar(&opts.show, "show", "", "Print the results of one run")
	f.BoolVar(&opts.json, "json", false, "Output in JSON format")

	return cmd
}

func (o *runsOptions) run(cmd *cobra.Command) error {
	store, err := results.NewStore(o.dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()

	if o.show != "" {
		run, err := store.GetRun(cmd.Context(), o.show)
		if err != nil {
			return err
		}
		if o.json {
			return encodeJSON(cmd, run)
		}

		printf(out, "Run %s %s %s\n", run.ID, run.CreatedAt.Local().Format(time.DateTime), run.Label)
		printf(out, "%-12s %-10s %-9s %-8s %-8s\n", "Predictor", "Trace", "Accuracy", "MPKI", "CPI")
		for _, r := range run.Results {
			printf(out, "%-12s %-10s %-9.4f %-8.2f %-8.4f\n",
				r.Predictor, r.Workload, r.Accuracy, r.MPKI, r.CPI)
		}
		return nil
	}

	runs, err := store.ListRuns(cmd.Context(), o.limit)
	if err != nil {
		return err
	}
	if o.json {
		return encodeJSON(cmd, runs)
	}

	printf(out, "%-20s %-19s %-8s %-8s %-12s %s\n",
		"ID", "Created", "Table", "History", "Perceptrons", "Label")
	printf(out, "%s\n", strings.Repeat("-", 80))
	for _, r := range runs {
		printf(out, "%-20s %-19s %-8d %-8d %-12d %s\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime),
			r.Predictor.TableSize, r.Predictor.HistoryLength,
			r.Predictor.NumPerceptrons, r.Label)
	}

	return nil
}

func encodeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}
	return nil
}
