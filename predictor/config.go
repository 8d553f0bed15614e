package predictor

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names a predictor algorithm.
type Kind string

// Supported predictor kinds.
const (
	KindTwoBit     Kind = "2-bit"
	KindPerceptron Kind = "perceptron"
	KindHybrid     Kind = "hybrid"
)

// Kinds returns every supported kind in report order.
func Kinds() []Kind {
	return []Kind{KindTwoBit, KindPerceptron, KindHybrid}
}

// ParseKind converts a user-supplied name to a Kind. Matching is
// case-insensitive and accepts a few common aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "2-bit", "2bit", "twobit", "bimodal":
		return KindTwoBit, nil
	case "perceptron":
		return KindPerceptron, nil
	case "hybrid", "tournament":
		return KindHybrid, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Config holds the construction parameters shared by all predictor kinds.
type Config struct {
	// TableSize is the number of counter and selector entries.
	// No power-of-two requirement. Default is 1024.
	TableSize int `json:"table_size" yaml:"table_size"`
	// HistoryLength is the perceptron global history length. Default is 16.
	HistoryLength int `json:"history_length" yaml:"history_length"`
	// NumPerceptrons is the number of perceptron weight rows for the
	// standalone perceptron predictor. The hybrid uses TableSize instead.
	// Default is 1024.
	NumPerceptrons int `json:"num_perceptrons" yaml:"num_perceptrons"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		TableSize:      1024,
		HistoryLength:  16,
		NumPerceptrons: 1024,
	}
}

// Validate checks every size against its limits, including the weight
// arenas of the standalone and the hybrid perceptron.
func (c Config) Validate() error {
	err := errors.Join(
		checkSize("table size", c.TableSize, MaxTableSize),
		checkSize("history length", c.HistoryLength, MaxHistoryLength),
		checkSize("perceptron count", c.NumPerceptrons, MaxTableSize),
	)
	if err != nil {
		return err
	}

	return errors.Join(
		checkWeights(c.NumPerceptrons, c.HistoryLength),
		checkWeights(c.TableSize, c.HistoryLength),
	)
}

// New constructs a fresh predictor of the given kind.
func New(kind Kind, config Config) (Predictor, error) {
	var (
		p   Predictor
		err error
	)

	switch kind {
	case KindTwoBit:
		var sc *SaturatingCounter
		sc, err = NewSaturatingCounter(config.TableSize)
		p = sc
	case KindPerceptron:
		var pc *Perceptron
		pc, err = NewPerceptron(config.HistoryLength, config.NumPerceptrons)
		p = pc
	case KindHybrid:
		var h *Hybrid
		h, err = NewHybrid(config.TableSize, config.HistoryLength)
		p = h
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s predictor: %w", kind, err)
	}

	return p, nil
}
