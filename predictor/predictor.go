// Package predictor implements conditional branch direction predictors and
// the loop that replays a branch trace through them.
//
// Every predictor owns its tables outright, so several instances can replay
// the same trace side by side without interfering with each other.
package predictor

import (
	"errors"
	"fmt"

	"github.com/sarchlab/bpsim/trace"
)

// ErrInvalidConfig is returned when a predictor is constructed with a table
// size or history length smaller than one.
var ErrInvalidConfig = errors.New("invalid predictor configuration")

// ErrUnknownKind is returned for an unrecognised predictor kind.
var ErrUnknownKind = errors.New("unknown predictor kind")

// Predictor is the common contract the evaluation loop drives.
type Predictor interface {
	// Name identifies the algorithm in reports.
	Name() string
	// Observe predicts the branch at ev.Address, then trains on ev.Taken
	// using the same prediction record. It returns the prediction made
	// before training.
	Observe(ev trace.Event) bool
	// Reset restores all tables to their initial values.
	Reset()
}

// Result holds the outcome of replaying a trace.
type Result struct {
	// Correct is the number of correctly predicted branches.
	Correct uint64
	// Total is the number of branches replayed.
	Total uint64
}

// Accuracy returns the fraction of correct predictions, or 0 for an empty
// trace.
func (r Result) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total)
}

// Mispredictions returns the number of wrong predictions.
func (r Result) Mispredictions() uint64 {
	return r.Total - r.Correct
}

// Replay feeds events through p strictly in order. The prediction for event
// k only sees state trained by events 0..k-1. If observe is not nil it is
// called once per event after training.
func Replay(p Predictor, events []trace.Event, observe func(ev trace.Event, correct bool)) Result {
	var res Result

	for _, ev := range events {
		correct := p.Observe(ev) == ev.Taken
		if correct {
			res.Correct++
		}
		res.Total++

		if observe != nil {
			observe(ev, correct)
		}
	}

	return res
}

// RunTrace replays events through p and returns the hit counts.
func RunTrace(p Predictor, events []trace.Event) Result {
	return Replay(p, events, nil)
}

func tableIndex(addr uint64, size int) int {
	return int(addr % uint64(size))
}

func saturatingInc(c uint8) uint8 {
	if c < counterMax {
		return c + 1
	}
	return c
}

func saturatingDec(c uint8) uint8 {
	if c > 0 {
		return c - 1
	}
	return c
}

// Construction limits. They keep table allocation well below what a single
// process can hold.
const (
	MaxTableSize      = 1 << 24
	MaxHistoryLength  = 1024
	MaxPerceptronSize = 1 << 26
)

func checkSize(name string, v, max int) error {
	if v < 1 || v > max {
		return fmt.Errorf("%w: %s must be in [1, %d], got %d", ErrInvalidConfig, name, max, v)
	}
	return nil
}

// checkWeights bounds the perceptron weight arena of rows*(historyLength+1)
// entries. Both arguments must already be positive.
func checkWeights(rows, historyLength int) error {
	n := uint64(rows) * uint64(historyLength+1)
	if n > MaxPerceptronSize {
		return fmt.Errorf("%w: %d perceptrons of history %d need %d weights, limit is %d",
			ErrInvalidConfig, rows, historyLength, n, MaxPerceptronSize)
	}
	return nil
}
