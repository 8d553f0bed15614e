package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/bpsim/experiment"
	"github.com/sarchlab/bpsim/metrics"
	"github.com/sarchlab/bpsim/results"
	"github.com/sarchlab/bpsim/trace"
)

type runOptions struct {
	root *rootOptions

	configPath    string
	metricsConfig string
	predictors    []string
	tableSize     int
	historyLength int
	numPercept    int

	generate bool
	lines    int
	seed     uint64

	csv        bool
	json       bool
	noColor    bool
	profileTop int
	parallel   int

	metricsOut string
	dbPath     string
	label      string
	cpuProfile string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{root: root}

	cmd := &cobra.Command{
		Use:   "run [flags] [trace...]",
		Short: "Compare predictors over trace files or synthetic traces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Experiment file (YAML or JSON)")
	f.StringVar(&opts.metricsConfig, "metrics-config", "", "CPI model file (YAML or JSON)")
	f.StringSliceVarP(&opts.predictors, "predictor", "p", nil, "Predictors to compare (default: all)")
	f.IntVar(&opts.tableSize, "table-size", 0, "Entries in the 2-bit and selector tables")
	f.IntVar(&opts.historyLength, "history-length", 0, "Global history length of the perceptron")
	f.IntVar(&opts.numPercept, "num-perceptrons", 0, "Perceptrons in the standalone perceptron predictor")
	f.BoolVar(&opts.generate, "generate", false, "Add the synthetic loop, branchy and complex traces")
	f.IntVar(&opts.lines, "lines", trace.DefaultLength, "Branches per synthetic trace")
	f.Uint64Var(&opts.seed, "seed", 42, "Seed for the branchy trace")
	f.BoolVar(&opts.csv, "csv", false, "Output results in CSV format")
	f.BoolVar(&opts.json, "json", false, "Output results in JSON format")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable highlighting")
	f.IntVar(&opts.profileTop, "profile-top", 0, "Report the N most mispredicted addresses per result")
	f.IntVar(&opts.parallel, "parallel", 0, "Concurrent replays (default: GOMAXPROCS)")
	f.StringVar(&opts.metricsOut, "metrics-out", "", "Write Prometheus metrics to this textfile")
	f.StringVar(&opts.dbPath, "db", "", "Store the run in this SQLite database")
	f.StringVar(&opts.label, "label", "", "Label of the stored run")
	f.StringVar(&opts.cpuProfile, "cpuprofile", "", "Write CPU profile to file")
	cmd.MarkFlagsMutuallyExclusive("csv", "json")

	return cmd
}

func (o *runOptions) run(cmd *cobra.Command, args []string) error {
	logger := o.root.logger(cmd.ErrOrStderr())

	if o.cpuProfile != "" {
		f, err := os.Create(o.cpuProfile)
		if err != nil {
			return fmt.Errorf("failed to create CPU profile: %w", err)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	plan, err := o.plan(cmd)
	if err != nil {
		return err
	}

	kinds, err := plan.Kinds()
	if err != nil {
		return err
	}

	workloads, err := plan.BuildWorkloads()
	if err != nil {
		return err
	}
	for _, path := range args {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		w, err := experiment.LoadWorkload(name, path)
		if err != nil {
			return err
		}
		workloads = append(workloads, w)
	}
	if o.generate {
		synthetic, err := experiment.SyntheticWorkloads(o.lines, o.seed)
		if err != nil {
			return err
		}
		workloads = append(workloads, synthetic...)
	}
	if len(workloads) == 0 {
		return errors.New("no traces: pass trace files, --generate or --config")
	}

	config := experiment.DefaultConfig()
	config.Predictor = plan.Predictor
	config.Metrics = plan.Metrics
	config.Kinds = kinds
	config.ProfileTop = o.profileTop
	config.Output = cmd.OutOrStdout()
	config.NoColor = o.noColor
	config.Logger = logger
	if o.parallel > 0 {
		config.Parallelism = o.parallel
	}

	var collector *experiment.Collector
	if o.metricsOut != "" {
		collector = experiment.NewCollector()
		config.Collector = collector
	}

	h := experiment.NewHarness(config)
	h.AddWorkloads(workloads)

	logger.Info("running experiment",
		"workloads", len(workloads),
		"predictors", len(kinds),
		"table_size", config.Predictor.TableSize,
		"history_length", config.Predictor.HistoryLength,
	)

	res, err := h.RunAll(cmd.Context())
	if err != nil {
		return err
	}

	switch {
	case o.json:
		if err := h.PrintJSON(res); err != nil {
			return err
		}
	case o.csv:
		h.PrintCSV(res)
	default:
		h.PrintResults(res)
	}

	if collector != nil {
		if err := collector.WriteTextfile(o.metricsOut); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		logger.Info("wrote metrics", "path", o.metricsOut)
	}

	if o.dbPath != "" {
		store, err := results.NewStore(o.dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		id, err := store.SaveRun(cmd.Context(), results.Run{
			Label:     o.label,
			Predictor: config.Predictor,
			Metrics:   *config.Metrics,
			Results:   res,
		})
		if err != nil {
			return err
		}
		logger.Info("stored run", "id", id, "db", o.dbPath)
	}

	return nil
}

// plan builds the experiment plan from --config and the flags that override
// it.
func (o *runOptions) plan(cmd *cobra.Command) (*experiment.Plan, error) {
	plan := experiment.DefaultPlan()
	if o.configPath != "" {
		var err error
		plan, err = experiment.LoadPlan(o.configPath)
		if err != nil {
			return nil, err
		}
	}

	if o.metricsConfig != "" {
		m, err := metrics.LoadConfig(o.metricsConfig)
		if err != nil {
			return nil, err
		}
		plan.Metrics = m
	}

	f := cmd.Flags()
	if f.Changed("predictor") {
		plan.Predictors = o.predictors
	}
	if f.Changed("table-size") {
		plan.Predictor.TableSize = o.tableSize
	}
	if f.Changed("history-length") {
		plan.Predictor.HistoryLength = o.historyLength
	}
	if f.Changed("num-perceptrons") {
		plan.Predictor.NumPerceptrons = o.numPercept
	}

	return plan, nil
}
