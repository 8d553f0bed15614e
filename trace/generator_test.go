package trace_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bpsim/trace"
)

var _ = Describe("Generator", func() {
	countTaken := func(events []trace.Event) int {
		n := 0
		for _, ev := range events {
			if ev.Taken {
				n++
			}
		}
		return n
	}

	Describe("GenerateLoop", func() {
		It("should repeat T T T T N at a single address", func() {
			events := trace.GenerateLoop(10)
			Expect(events).To(HaveLen(10))
			for i, ev := range events {
				Expect(ev.Address).To(Equal(uint64(0x1000)))
				Expect(ev.Taken).To(Equal(i%5 != 4))
			}
		})
	})

	Describe("GenerateComplex", func() {
		It("should rotate through three addresses", func() {
			events := trace.GenerateComplex(6)
			Expect(events).To(Equal([]trace.Event{
				{Address: 0x8000, Taken: true},
				{Address: 0xA123, Taken: false},
				{Address: 0xB555, Taken: true},
				{Address: 0x8000, Taken: true},
				{Address: 0xA123, Taken: true},
				{Address: 0xB555, Taken: false},
			}))
		})
	})

	Describe("GenerateBranchy", func() {
		It("should be deterministic for a seed", func() {
			a := trace.GenerateBranchy(500, 7)
			b := trace.GenerateBranchy(500, 7)
			Expect(a).To(Equal(b))
		})

		It("should differ across seeds", func() {
			a := trace.GenerateBranchy(500, 1)
			b := trace.GenerateBranchy(500, 2)
			Expect(a).NotTo(Equal(b))
		})

		It("should only use the five branchy addresses", func() {
			allowed := []uint64{0x3450, 0x7800, 0xAB10, 0xF200, 0x9000}
			for _, ev := range trace.GenerateBranchy(1000, 3) {
				Expect(allowed).To(ContainElement(ev.Address))
			}
		})

		It("should be roughly balanced", func() {
			taken := countTaken(trace.GenerateBranchy(4000, 11))
			Expect(taken).To(BeNumerically("~", 2000, 300))
		})
	})

	Describe("Generate", func() {
		It("should list all patterns", func() {
			Expect(trace.Patterns()).To(Equal([]string{"branchy", "complex", "loop"}))
		})

		It("should dispatch by name", func() {
			events, err := trace.Generate(trace.PatternLoop, 5, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal(trace.GenerateLoop(5)))
		})

		It("should reject unknown patterns", func() {
			_, err := trace.Generate("zigzag", 5, 0)
			Expect(err).To(MatchError(ContainSubstring("zigzag")))
		})

		It("should reject negative lengths", func() {
			_, err := trace.Generate(trace.PatternComplex, -1, 0)
			Expect(err).To(HaveOccurred())
		})
	})
})
