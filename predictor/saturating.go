package predictor

import "github.com/sarchlab/bpsim/trace"

// 2-bit counter states: 0=Strongly Not Taken, 1=Weakly Not Taken,
// 2=Weakly Taken, 3=Strongly Taken.
const (
	counterMax       uint8 = 3
	counterThreshold uint8 = 2
	counterInit      uint8 = 1
)

// SaturatingCounter is a bimodal predictor: one 2-bit saturating counter per
// table entry, indexed by address modulo the table size.
type SaturatingCounter struct {
	counters  []uint8
	tableSize int
}

// NewSaturatingCounter creates a predictor with tableSize counters, all
// weakly not taken.
func NewSaturatingCounter(tableSize int) (*SaturatingCounter, error) {
	if err := checkSize("table size", tableSize, MaxTableSize); err != nil {
		return nil, err
	}

	p := &SaturatingCounter{
		counters:  make([]uint8, tableSize),
		tableSize: tableSize,
	}
	p.Reset()

	return p, nil
}

// Name implements Predictor.
func (p *SaturatingCounter) Name() string {
	return string(KindTwoBit)
}

// TableSize returns the number of counters.
func (p *SaturatingCounter) TableSize() int {
	return p.tableSize
}

// Predict returns true (taken) if the counter for addr is 2 or 3.
func (p *SaturatingCounter) Predict(addr uint64) bool {
	return p.counters[tableIndex(addr, p.tableSize)] >= counterThreshold
}

// Update moves the counter for addr one step towards the actual outcome.
func (p *SaturatingCounter) Update(addr uint64, taken bool) {
	idx := tableIndex(addr, p.tableSize)
	if taken {
		p.counters[idx] = saturatingInc(p.counters[idx])
	} else {
		p.counters[idx] = saturatingDec(p.counters[idx])
	}
}

// Counter returns the current counter value for addr.
func (p *SaturatingCounter) Counter(addr uint64) uint8 {
	return p.counters[tableIndex(addr, p.tableSize)]
}

// Observe implements Predictor.
func (p *SaturatingCounter) Observe(ev trace.Event) bool {
	pred := p.Predict(ev.Address)
	p.Update(ev.Address, ev.Taken)
	return pred
}

// RunTrace replays events through the predictor.
func (p *SaturatingCounter) RunTrace(events []trace.Event) Result {
	return RunTrace(p, events)
}

// Reset sets every counter back to weakly not taken.
func (p *SaturatingCounter) Reset() {
	for i := range p.counters {
		p.counters[i] = counterInit
	}
}
