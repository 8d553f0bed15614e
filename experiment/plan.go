package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/bpsim/metrics"
	"github.com/sarchlab/bpsim/predictor"
	"github.com/sarchlab/bpsim/trace"
)

// WorkloadSpec describes a workload in a plan file. Exactly one of Path and
// Pattern must be set.
type WorkloadSpec struct {
	Name    string `json:"name" yaml:"name"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Lines   int    `json:"lines,omitempty" yaml:"lines,omitempty"`
	Seed    uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Plan is an experiment description loaded from a JSON or YAML file.
//
//	predictor:
//	  table_size: 1024
//	  history_length: 16
//	  num_perceptrons: 1024
//	predictors: [2-bit, perceptron, hybrid]
//	workloads:
//	  - name: loop
//	    pattern: loop
//	  - name: gcc
//	    path: traces/gcc.txt
type Plan struct {
	Predictor  predictor.Config `json:"predictor" yaml:"predictor"`
	Metrics    *metrics.Config  `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Predictors []string         `json:"predictors,omitempty" yaml:"predictors,omitempty"`
	Workloads  []WorkloadSpec   `json:"workloads" yaml:"workloads"`
}

// DefaultPlan returns a plan with default predictor and metrics settings and
// no workloads.
func DefaultPlan() *Plan {
	return &Plan{
		Predictor: predictor.DefaultConfig(),
		Metrics:   metrics.DefaultConfig(),
	}
}

// LoadPlan reads a plan file. Relative workload paths are resolved against the
// plan's directory.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	plan := DefaultPlan()
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		err = yaml.Unmarshal(data, plan)
	} else {
		err = json.Unmarshal(data, plan)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if plan.Metrics == nil {
		plan.Metrics = metrics.DefaultConfig()
	}

	dir := filepath.Dir(path)
	for i := range plan.Workloads {
		p := plan.Workloads[i].Path
		if p != "" && !filepath.IsAbs(p) {
			plan.Workloads[i].Path = filepath.Join(dir, p)
		}
	}

	return plan, nil
}

// Kinds parses the plan's predictor names. An empty list selects all kinds.
func (p *Plan) Kinds() ([]predictor.Kind, error) {
	if len(p.Predictors) == 0 {
		return predictor.Kinds(), nil
	}

	kinds := make([]predictor.Kind, 0, len(p.Predictors))
	for _, name := range p.Predictors {
		kind, err := predictor.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// BuildWorkloads loads or generates every workload in the plan.
func (p *Plan) BuildWorkloads() ([]Workload, error) {
	workloads := make([]Workload, 0, len(p.Workloads))
	for _, spec := range p.Workloads {
		w, err := spec.Build()
		if err != nil {
			return nil, err
		}
		workloads = append(workloads, w)
	}
	return workloads, nil
}

// Build loads or generates the workload.
func (s WorkloadSpec) Build() (Workload, error) {
	switch {
	case s.Path != "" && s.Pattern != "":
		return Workload{}, fmt.Errorf("workload %q: path and pattern are mutually exclusive", s.Name)
	case s.Path != "":
		name := s.Name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path))
		}
		return LoadWorkload(name, s.Path)
	case s.Pattern != "":
		lines := s.Lines
		if lines == 0 {
			lines = trace.DefaultLength
		}
		events, err := trace.Generate(s.Pattern, lines, s.Seed)
		if err != nil {
			return Workload{}, fmt.Errorf("workload %q: %w", s.Name, err)
		}
		name := s.Name
		if name == "" {
			name = s.Pattern
		}
		return Workload{Name: name, Events: events}, nil
	}
	return Workload{}, fmt.Errorf("workload %q: one of path or pattern is required", s.Name)
}
