// Package experiment compares branch predictors over a set of traces and
// reports accuracy together with the derived CPI figures.
package experiment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/bpsim/metrics"
	"github.com/sarchlab/bpsim/predictor"
	"github.com/sarchlab/bpsim/trace"
)

// Result holds the outcome of one predictor on one workload.
type Result struct {
	// Predictor is the predictor kind.
	Predictor string `json:"predictor"`

	// Workload names the trace.
	Workload string `json:"workload"`

	// Accuracy is the fraction of correctly predicted branches.
	Accuracy float64 `json:"accuracy"`

	// Correct is the number of correctly predicted branches.
	Correct uint64 `json:"correct"`

	// Total is the number of branches in the trace.
	Total uint64 `json:"total"`

	// Mispredictions is Total minus Correct.
	Mispredictions uint64 `json:"mispredictions"`

	// MPKI is mispredictions per thousand instructions.
	MPKI float64 `json:"mpki"`

	// CPI is cycles per instruction including the misprediction penalty.
	CPI float64 `json:"cpi"`

	// Cycles and Seconds are the estimated execution time.
	Cycles  float64 `json:"cycles"`
	Seconds float64 `json:"seconds"`

	// HotBranches lists the most mispredicted addresses, if profiling is
	// enabled.
	HotBranches []BranchStats `json:"hot_branches,omitempty"`

	// WallTime is the actual time taken to replay the trace.
	WallTime time.Duration `json:"wall_time_ns"`
}

// Workload is a named branch trace.
type Workload struct {
	// Name identifies the workload in reports.
	Name string

	// Events is the ordered branch trace. It is only read, so the same
	// slice is safely shared by all predictors.
	Events []trace.Event
}

// LoadWorkload reads a workload from a trace file.
func LoadWorkload(name, path string) (Workload, error) {
	events, err := trace.Load(path)
	if err != nil {
		return Workload{}, err
	}
	return Workload{Name: name, Events: events}, nil
}

// SyntheticWorkloads generates one workload per synthetic trace pattern.
func SyntheticWorkloads(n int, seed uint64) ([]Workload, error) {
	var workloads []Workload
	for _, pattern := range []string{trace.PatternLoop, trace.PatternBranchy, trace.PatternComplex} {
		events, err := trace.Generate(pattern, n, seed)
		if err != nil {
			return nil, err
		}
		workloads = append(workloads, Workload{Name: pattern, Events: events})
	}
	return workloads, nil
}

// HarnessConfig configures the experiment harness.
type HarnessConfig struct {
	// Predictor holds the table sizes used for every predictor.
	Predictor predictor.Config

	// Metrics holds the CPI assumptions.
	Metrics *metrics.Config

	// Kinds selects the predictors to compare (default: all).
	Kinds []predictor.Kind

	// Parallelism bounds the number of concurrent replays
	// (default: GOMAXPROCS).
	Parallelism int

	// ProfileTop, if > 0, records the N most mispredicted addresses.
	ProfileTop int

	// Output is where reports are written (default: os.Stdout).
	Output io.Writer

	// NoColor disables highlighting in PrintResults.
	NoColor bool

	// Logger receives progress messages (default: discarded).
	Logger *slog.Logger

	// Collector, if set, receives every result.
	Collector *Collector
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Predictor:   predictor.DefaultConfig(),
		Metrics:     metrics.DefaultConfig(),
		Kinds:       predictor.Kinds(),
		Parallelism: runtime.GOMAXPROCS(0),
		Output:      os.Stdout,
	}
}

// Harness runs every configured predictor over every workload.
type Harness struct {
	config    HarnessConfig
	workloads []Workload
}

// NewHarness creates a new harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Metrics == nil {
		config.Metrics = metrics.DefaultConfig()
	}
	if len(config.Kinds) == 0 {
		config.Kinds = predictor.Kinds()
	}
	if config.Parallelism <= 0 {
		config.Parallelism = runtime.GOMAXPROCS(0)
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Harness{config: config}
}

// Config returns the effective configuration.
func (h *Harness) Config() HarnessConfig {
	return h.config
}

// AddWorkload adds a workload to the harness.
func (h *Harness) AddWorkload(w Workload) {
	h.workloads = append(h.workloads, w)
}

// AddWorkloads adds multiple workloads to the harness.
func (h *Harness) AddWorkloads(workloads []Workload) {
	h.workloads = append(h.workloads, workloads...)
}

// Workloads returns the registered workloads.
func (h *Harness) Workloads() []Workload {
	return h.workloads
}

// RunAll replays every workload through a freshly constructed instance of
// every configured predictor. Results are ordered by workload, then by
// predictor kind, regardless of the order in which replays finish.
func (h *Harness) RunAll(ctx context.Context) ([]Result, error) {
	if err := h.config.Predictor.Validate(); err != nil {
		return nil, err
	}
	if err := h.config.Metrics.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	kinds := h.config.Kinds
	results := make([]Result, len(h.workloads)*len(kinds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Parallelism)

	for wi, w := range h.workloads {
		for ki, kind := range kinds {
			idx := wi*len(kinds) + ki
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}

				r, err := h.run(w, kind)
				if err != nil {
					return err
				}
				results[idx] = r
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// run replays one workload. A panic inside the predictor is returned as an
// error so that it does not take down the process from an errgroup goroutine.
func (h *Harness) run(w Workload, kind predictor.Kind) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("replay of %s on %s panicked: %v", kind, w.Name, r)
		}
	}()

	p, err := predictor.New(kind, h.config.Predictor)
	if err != nil {
		return Result{}, err
	}

	var (
		profile *Profile
		observe func(trace.Event, bool)
	)
	if h.config.ProfileTop > 0 {
		profile = NewProfile()
		observe = profile.Record
	}

	start := time.Now()
	res := predictor.Replay(p, w.Events, observe)
	wallTime := time.Since(start)

	m := metrics.Compute(h.config.Metrics, res.Correct, res.Total)
	result = Result{
		Predictor:      p.Name(),
		Workload:       w.Name,
		Accuracy:       m.Accuracy,
		Correct:        res.Correct,
		Total:          res.Total,
		Mispredictions: m.Mispredictions,
		MPKI:           m.MPKI,
		CPI:            m.CPI,
		Cycles:         m.Cycles,
		Seconds:        m.Seconds,
		WallTime:       wallTime,
	}
	if profile != nil {
		result.HotBranches = profile.Top(h.config.ProfileTop)
	}

	if h.config.Collector != nil {
		h.config.Collector.Record(result)
	}

	h.config.Logger.Debug("replayed trace",
		"predictor", result.Predictor,
		"workload", result.Workload,
		"branches", result.Total,
		"accuracy", result.Accuracy,
		"wall_time", wallTime,
	)

	return result, nil
}
