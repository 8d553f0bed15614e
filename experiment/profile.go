package experiment

import (
	"sort"

	"github.com/google/btree"

	"github.com/sarchlab/bpsim/trace"
)

// BranchStats summarises one static branch.
type BranchStats struct {
	Address        uint64 `json:"address"`
	Executions     uint64 `json:"executions"`
	Taken          uint64 `json:"taken"`
	Mispredictions uint64 `json:"mispredictions"`
}

// MispredictionRate returns mispredictions per execution.
func (s BranchStats) MispredictionRate() float64 {
	if s.Executions == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Executions)
}

// Profile accumulates per-address statistics during a replay, kept ordered
// by address.
type Profile struct {
	tree  *btree.BTreeG[*BranchStats]
	probe BranchStats
}

// NewProfile creates an empty profile.
func NewProfile() *Profile {
	return &Profile{
		tree: btree.NewG[*BranchStats](32, func(a, b *BranchStats) bool {
			return a.Address < b.Address
		}),
	}
}

// Record adds one replayed branch. Its signature matches the predictor.Replay
// observer.
func (p *Profile) Record(ev trace.Event, correct bool) {
	p.probe.Address = ev.Address
	s, ok := p.tree.Get(&p.probe)
	if !ok {
		s = &BranchStats{Address: ev.Address}
		p.tree.ReplaceOrInsert(s)
	}

	s.Executions++
	if ev.Taken {
		s.Taken++
	}
	if !correct {
		s.Mispredictions++
	}
}

// Len returns the number of distinct addresses seen.
func (p *Profile) Len() int {
	return p.tree.Len()
}

// Entries returns all statistics in ascending address order.
func (p *Profile) Entries() []BranchStats {
	entries := make([]BranchStats, 0, p.tree.Len())
	p.tree.Ascend(func(s *BranchStats) bool {
		entries = append(entries, *s)
		return true
	})
	return entries
}

// Top returns the n addresses with the most mispredictions. Ties are broken
// by address.
func (p *Profile) Top(n int) []BranchStats {
	entries := p.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Mispredictions > entries[j].Mispredictions
	})
	if n < len(entries) {
		entries = entries[:n]
	}
	return entries
}
