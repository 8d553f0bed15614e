package predictor

import (
	"math"

	"github.com/sarchlab/bpsim/trace"
)

// PerceptronPrediction is the record Perceptron.Predict hands to Update.
type PerceptronPrediction struct {
	// Taken is true when Output is non-negative.
	Taken bool
	// Output is the raw dot product of weights and history.
	Output int
}

// Perceptron predicts with a per-address linear model over a global history
// register (GHR).
//
// The GHR starts as if the last H branches were all taken, so the very first
// predictions lean towards taken until real history replaces it.
type Perceptron struct {
	// weights holds numPerceptrons rows of historyLength+1 entries; entry 0
	// of each row is the bias.
	weights []int

	// ghr holds +1/-1 outcomes, most recent first.
	ghr []int

	historyLength  int
	numPerceptrons int
	threshold      int
}

// NewPerceptron creates a perceptron predictor with a history of
// historyLength branches and numPerceptrons weight rows.
func NewPerceptron(historyLength, numPerceptrons int) (*Perceptron, error) {
	if err := checkSize("history length", historyLength, MaxHistoryLength); err != nil {
		return nil, err
	}
	if err := checkSize("perceptron count", numPerceptrons, MaxTableSize); err != nil {
		return nil, err
	}
	if err := checkWeights(numPerceptrons, historyLength); err != nil {
		return nil, err
	}

	p := &Perceptron{
		weights:        make([]int, numPerceptrons*(historyLength+1)),
		ghr:            make([]int, historyLength),
		historyLength:  historyLength,
		numPerceptrons: numPerceptrons,
		threshold:      TrainingThreshold(historyLength),
	}
	p.Reset()

	return p, nil
}

// TrainingThreshold returns round(1.93*h + 14), the confidence below which a
// correct prediction still trains.
func TrainingThreshold(historyLength int) int {
	return int(math.Round(1.93*float64(historyLength) + 14))
}

// Name implements Predictor.
func (p *Perceptron) Name() string {
	return string(KindPerceptron)
}

// Threshold returns the training threshold.
func (p *Perceptron) Threshold() int {
	return p.threshold
}

// HistoryLength returns the GHR length.
func (p *Perceptron) HistoryLength() int {
	return p.historyLength
}

// NumPerceptrons returns the number of weight rows.
func (p *Perceptron) NumPerceptrons() int {
	return p.numPerceptrons
}

func (p *Perceptron) row(addr uint64) []int {
	width := p.historyLength + 1
	start := tableIndex(addr, p.numPerceptrons) * width
	return p.weights[start : start+width]
}

// Predict computes bias + sum(w[i+1]*ghr[i]) for the row of addr.
func (p *Perceptron) Predict(addr uint64) PerceptronPrediction {
	w := p.row(addr)

	output := w[0]
	for i, h := range p.ghr {
		output += w[i+1] * h
	}

	return PerceptronPrediction{
		Taken:  output >= 0,
		Output: output,
	}
}

// Update trains the row of addr when the prediction behind output was wrong
// or its magnitude was below the threshold, then shifts the actual outcome
// into the history register.
func (p *Perceptron) Update(addr uint64, taken bool, output int) {
	actual := -1
	if taken {
		actual = 1
	}

	mispredicted := (taken && output < 0) || (!taken && output >= 0)
	if mispredicted || abs(output) < p.threshold {
		w := p.row(addr)
		w[0] += actual
		for i, h := range p.ghr {
			w[i+1] += actual * h
		}
	}

	copy(p.ghr[1:], p.ghr[:p.historyLength-1])
	p.ghr[0] = actual
}

// Weights returns a copy of the weight row for addr, bias first.
func (p *Perceptron) Weights(addr uint64) []int {
	return append([]int(nil), p.row(addr)...)
}

// History returns a copy of the global history register, most recent first.
func (p *Perceptron) History() []int {
	return append([]int(nil), p.ghr...)
}

// Observe implements Predictor.
func (p *Perceptron) Observe(ev trace.Event) bool {
	pred := p.Predict(ev.Address)
	p.Update(ev.Address, ev.Taken, pred.Output)
	return pred.Taken
}

// RunTrace replays events through the predictor.
func (p *Perceptron) RunTrace(events []trace.Event) Result {
	return RunTrace(p, events)
}

// Reset zeroes all weights and fills the history with taken.
func (p *Perceptron) Reset() {
	for i := range p.weights {
		p.weights[i] = 0
	}
	for i := range p.ghr {
		p.ghr[i] = 1
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
