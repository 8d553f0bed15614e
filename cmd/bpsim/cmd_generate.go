package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sarchlab/bpsim/trace"
)

type generateOptions struct {
	root *rootOptions

	outDir   string
	lines    int
	seed     uint64
	patterns []string
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{root: root}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the synthetic trace files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.outDir, "out-dir", "o", ".", "Directory for the trace files")
	f.IntVar(&opts.lines, "lines", trace.DefaultLength, "Branches per trace")
	f.Uint64Var(&opts.seed, "seed", 42, "Seed for the branchy trace")
	f.StringSliceVar(&opts.patterns, "pattern", trace.Patterns(), "Patterns to generate")

	return cmd
}

func (o *generateOptions) run(cmd *cobra.Command) error {
	logger := o.root.logger(cmd.ErrOrStderr())

	if err := os.MkdirAll(o.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, pattern := range o.patterns {
		events, err := trace.Generate(pattern, o.lines, o.seed)
		if err != nil {
			return err
		}

		path := filepath.Join(o.outDir, pattern+".txt")
		if err := trace.Save(path, events); err != nil {
			return err
		}

		logger.Debug("wrote trace", "path", path, "branches", len(events))
		printf(cmd.OutOrStdout(), "Generated %s (%d branches)\n", path, len(events))
	}

	return nil
}
