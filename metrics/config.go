// Package metrics derives performance figures (MPKI, CPI) from branch
// prediction hit counts.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sarchlab/akita/v4/sim"
	"gopkg.in/yaml.v3"
)

// Config holds the assumptions used to turn hit counts into CPI.
type Config struct {
	// InstructionsPerTrace is the assumed number of dynamic instructions
	// executed while the trace was recorded. Default: 100000.
	InstructionsPerTrace uint64 `json:"instructions_per_trace" yaml:"instructions_per_trace"`

	// BaseCPI is the cycles per instruction with perfect prediction.
	// Default: 1.0.
	BaseCPI float64 `json:"base_cpi" yaml:"base_cpi"`

	// MispredictPenalty is the number of cycles lost per misprediction.
	// Default: 5 cycles.
	MispredictPenalty float64 `json:"mispredict_penalty" yaml:"mispredict_penalty"`

	// Frequency is the core clock used to convert cycles to seconds.
	// Default: 1 GHz.
	Frequency sim.Freq `json:"frequency_hz" yaml:"frequency_hz"`
}

// DefaultConfig returns a Config with the default assumptions.
func DefaultConfig() *Config {
	return &Config{
		InstructionsPerTrace: 100_000,
		BaseCPI:              1.0,
		MispredictPenalty:    5.0,
		Frequency:            1 * sim.GHz,
	}
}

// LoadConfig loads a Config from a JSON or YAML file. Fields missing from the
// file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the Config to a JSON or YAML file, chosen by extension.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize metrics config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics config file: %w", err)
	}

	return nil
}

// Validate checks that the assumptions are usable.
func (c *Config) Validate() error {
	if c.InstructionsPerTrace == 0 {
		return fmt.Errorf("instructions_per_trace must be > 0")
	}
	if c.BaseCPI <= 0 {
		return fmt.Errorf("base_cpi must be > 0")
	}
	if c.MispredictPenalty < 0 {
		return fmt.Errorf("mispredict_penalty must be >= 0")
	}
	if c.Frequency <= 0 {
		return fmt.Errorf("frequency_hz must be > 0")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
