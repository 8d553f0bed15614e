// Package main provides accuracy validation for predictor changes.
// Ensures that optimizations preserve prediction results.
package main

import (
	"fmt"
	"os"

	"github.com/sarchlab/bpsim/predictor"
	"github.com/sarchlab/bpsim/trace"
)

// testReferenceResults checks hit counts that are known by hand.
func testReferenceResults() bool {
	fmt.Println("Testing reference results...")

	single, err := predictor.NewSaturatingCounter(1)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return false
	}

	cases := []struct {
		name    string
		p       predictor.Predictor
		events  []trace.Event
		correct uint64
	}{
		{
			name: "2-bit single entry",
			p:    single,
			events: []trace.Event{
				{Address: 0x1000, Taken: true},
				{Address: 0x1000, Taken: true},
				{Address: 0x1000, Taken: false},
				{Address: 0x1000, Taken: true},
				{Address: 0x1000, Taken: true},
			},
			correct: 3,
		},
		{
			name:    "2-bit loop",
			p:       mustNew(predictor.KindTwoBit),
			events:  trace.GenerateLoop(5000),
			correct: 3999,
		},
	}

	for _, c := range cases {
		res := predictor.RunTrace(c.p, c.events)
		if res.Correct != c.correct {
			fmt.Printf("❌ %s: expected %d correct, got %d\n", c.name, c.correct, res.Correct)
			return false
		}
		fmt.Printf("✅ %s: %d/%d correct\n", c.name, res.Correct, res.Total)
	}

	return true
}

// testResetDeterminism validates that a reset predictor replays a trace
// exactly like a fresh one.
func testResetDeterminism() bool {
	fmt.Println("\nTesting reset determinism...")

	events := trace.GenerateBranchy(5000, 7)
	for _, kind := range predictor.Kinds() {
		fresh := mustNew(kind)
		reused := mustNew(kind)

		want := predictor.RunTrace(fresh, events)
		predictor.RunTrace(reused, trace.GenerateComplex(1000))
		reused.Reset()
		got := predictor.RunTrace(reused, events)

		if got != want {
			fmt.Printf("❌ %s: fresh %+v, after reset %+v\n", kind, want, got)
			return false
		}
		fmt.Printf("✅ %s: %d/%d correct after reset\n", kind, got.Correct, got.Total)
	}

	return true
}

// testObserverAgreement validates that observing a replay does not change
// its outcome.
func testObserverAgreement() bool {
	fmt.Println("\nTesting observer agreement...")

	events := trace.GenerateComplex(5000)
	for _, kind := range predictor.Kinds() {
		var mispredicted uint64
		res := predictor.Replay(mustNew(kind), events, func(_ trace.Event, correct bool) {
			if !correct {
				mispredicted++
			}
		})
		plain := predictor.RunTrace(mustNew(kind), events)

		if res != plain || mispredicted != res.Mispredictions() {
			fmt.Printf("❌ %s: observed %+v (%d misp), plain %+v\n", kind, res, mispredicted, plain)
			return false
		}
		fmt.Printf("✅ %s: accuracy %.4f\n", kind, res.Accuracy())
	}

	return true
}

func mustNew(kind predictor.Kind) predictor.Predictor {
	p, err := predictor.New(kind, predictor.DefaultConfig())
	if err != nil {
		panic(err)
	}
	return p
}

func main() {
	fmt.Println("bpsim Accuracy Validation")
	fmt.Println("=======================================================")

	allPassed := true

	if !testReferenceResults() {
		allPassed = false
	}

	if !testResetDeterminism() {
		allPassed = false
	}

	if !testObserverAgreement() {
		allPassed = false
	}

	fmt.Println("\n=======================================================")
	if allPassed {
		fmt.Println("🎉 ALL ACCURACY TESTS PASSED")
		os.Exit(0)
	} else {
		fmt.Println("❌ ACCURACY TESTS FAILED")
		os.Exit(1)
	}
}
