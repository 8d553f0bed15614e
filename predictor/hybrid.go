package predictor

import "github.com/sarchlab/bpsim/trace"

// HybridPrediction carries everything Hybrid.Update needs from Predict.
type HybridPrediction struct {
	// Taken is the prediction chosen by the selector.
	Taken bool
	// TwoBit is the saturating counter's prediction.
	TwoBit bool
	// Perceptron is the perceptron's prediction.
	Perceptron bool
	// PerceptronOutput is the perceptron's raw output.
	PerceptronOutput int
}

// Hybrid is a tournament predictor. A per-address 2-bit selector chooses
// between a saturating counter predictor and a perceptron predictor.
//
// The selector only moves when exactly one component was right; when both
// are right or both are wrong it is left alone.
type Hybrid struct {
	twoBit     *SaturatingCounter
	perceptron *Perceptron

	// Selector states: 0-1 favour the counter predictor, 2-3 favour the
	// perceptron.
	selector  []uint8
	tableSize int
}

// NewHybrid creates a hybrid predictor. The counter, perceptron and selector
// tables all have tableSize entries.
func NewHybrid(tableSize, historyLength int) (*Hybrid, error) {
	twoBit, err := NewSaturatingCounter(tableSize)
	if err != nil {
		return nil, err
	}

	perceptron, err := NewPerceptron(historyLength, tableSize)
	if err != nil {
		return nil, err
	}

	h := &Hybrid{
		twoBit:     twoBit,
		perceptron: perceptron,
		selector:   make([]uint8, tableSize),
		tableSize:  tableSize,
	}
	h.resetSelector()

	return h, nil
}

// Name implements Predictor.
func (h *Hybrid) Name() string {
	return string(KindHybrid)
}

// Predict queries both components and picks one according to the selector.
func (h *Hybrid) Predict(addr uint64) HybridPrediction {
	twoBit := h.twoBit.Predict(addr)
	perc := h.perceptron.Predict(addr)

	final := twoBit
	if h.selector[tableIndex(addr, h.tableSize)] >= counterThreshold {
		final = perc.Taken
	}

	return HybridPrediction{
		Taken:            final,
		TwoBit:           twoBit,
		Perceptron:       perc.Taken,
		PerceptronOutput: perc.Output,
	}
}

// Update trains both components with the actual outcome, then rewards
// whichever component was uniquely correct.
func (h *Hybrid) Update(addr uint64, taken bool, pred HybridPrediction) {
	h.twoBit.Update(addr, taken)
	h.perceptron.Update(addr, taken, pred.PerceptronOutput)

	twoBitCorrect := pred.TwoBit == taken
	percCorrect := pred.Perceptron == taken

	idx := tableIndex(addr, h.tableSize)
	switch {
	case percCorrect && !twoBitCorrect:
		h.selector[idx] = saturatingInc(h.selector[idx])
	case twoBitCorrect && !percCorrect:
		h.selector[idx] = saturatingDec(h.selector[idx])
	}
}

// Selector returns the selector value for addr.
func (h *Hybrid) Selector(addr uint64) uint8 {
	return h.selector[tableIndex(addr, h.tableSize)]
}

// TwoBit returns the internal saturating counter predictor.
func (h *Hybrid) TwoBit() *SaturatingCounter {
	return h.twoBit
}

// Perceptron returns the internal perceptron predictor.
func (h *Hybrid) Perceptron() *Perceptron {
	return h.perceptron
}

// Observe implements Predictor.
func (h *Hybrid) Observe(ev trace.Event) bool {
	pred := h.Predict(ev.Address)
	h.Update(ev.Address, ev.Taken, pred)
	return pred.Taken
}

// RunTrace replays events through the predictor.
func (h *Hybrid) RunTrace(events []trace.Event) Result {
	return RunTrace(h, events)
}

// Reset restores both components and the selector.
func (h *Hybrid) Reset() {
	h.twoBit.Reset()
	h.perceptron.Reset()
	h.resetSelector()
}

func (h *Hybrid) resetSelector() {
	for i := range h.selector {
		h.selector[i] = counterInit
	}
}
