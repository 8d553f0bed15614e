package trace

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// DefaultLength is the number of branches in a generated trace.
const DefaultLength = 5000

// Pattern names accepted by Generate.
const (
	PatternLoop    = "loop"
	PatternBranchy = "branchy"
	PatternComplex = "complex"
)

var loopPattern = []bool{true, true, true, true, false}

var complexPattern = []bool{true, false, true, true, true, false}

var branchyAddrs = []uint64{0x3450, 0x7800, 0xAB10, 0xF200, 0x9000}

var complexAddrs = []uint64{0x8000, 0xA123, 0xB555}

// GenerateLoop returns a single loop branch at 0x1000 that is taken four
// times and then falls through, repeating.
func GenerateLoop(n int) []Event {
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, Event{
			Address: 0x1000,
			Taken:   loopPattern[i%len(loopPattern)],
		})
	}
	return events
}

// GenerateBranchy returns branches spread over five addresses with coin-flip
// outcomes. The same seed always yields the same trace.
func GenerateBranchy(n int, seed uint64) []Event {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))

	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		addr := branchyAddrs[rng.IntN(len(branchyAddrs))]
		events = append(events, Event{
			Address: addr,
			Taken:   rng.Float64() > 0.5,
		})
	}
	return events
}

// GenerateComplex returns three round-robin addresses driven by the
// repeating global pattern T N T T T N, so outcomes correlate with history
// rather than with the address.
func GenerateComplex(n int) []Event {
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, Event{
			Address: complexAddrs[i%len(complexAddrs)],
			Taken:   complexPattern[i%len(complexPattern)],
		})
	}
	return events
}

var generators = map[string]func(n int, seed uint64) []Event{
	PatternLoop:    func(n int, _ uint64) []Event { return GenerateLoop(n) },
	PatternBranchy: GenerateBranchy,
	PatternComplex: func(n int, _ uint64) []Event { return GenerateComplex(n) },
}

// Patterns returns the names of all synthetic patterns in sorted order.
func Patterns() []string {
	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generate builds a synthetic trace of n branches for the named pattern.
// The seed only affects randomised patterns.
func Generate(pattern string, n int, seed uint64) ([]Event, error) {
	gen, ok := generators[pattern]
	if !ok {
		return nil, fmt.Errorf("unknown trace pattern %q", pattern)
	}
	if n < 0 {
		return nil, fmt.Errorf("trace length must be >= 0, got %d", n)
	}
	return gen(n, seed), nil
}
