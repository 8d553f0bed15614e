package predictor_test

import (
	"errors"
	"math"

	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bpsim/predictor"
	"github.com/sarchlab/bpsim/trace"
)

var _ = Describe("Replay", func() {
	var (
		mockCtrl *gomock.Controller
		p        *MockPredictor
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		p = NewMockPredictor(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should observe events strictly in order", func() {
		events := []trace.Event{
			{Address: 0x10, Taken: true},
			{Address: 0x20, Taken: false},
			{Address: 0x10, Taken: false},
		}

		gomock.InOrder(
			p.EXPECT().Observe(events[0]).Return(true),
			p.EXPECT().Observe(events[1]).Return(true),
			p.EXPECT().Observe(events[2]).Return(false),
		)

		res := predictor.RunTrace(p, events)
		Expect(res.Correct).To(Equal(uint64(2)))
		Expect(res.Total).To(Equal(uint64(3)))
		Expect(res.Mispredictions()).To(Equal(uint64(1)))
	})

	It("should never call the predictor for an empty trace", func() {
		res := predictor.RunTrace(p, nil)
		Expect(res.Accuracy()).To(Equal(0.0))
		Expect(res.Correct).To(BeZero())
		Expect(res.Total).To(BeZero())
	})

	It("should report per-event correctness to the observer", func() {
		events := []trace.Event{
			{Address: 0x1, Taken: true},
			{Address: 0x2, Taken: true},
		}
		p.EXPECT().Observe(events[0]).Return(false)
		p.EXPECT().Observe(events[1]).Return(true)

		var seen []bool
		predictor.Replay(p, events, func(ev trace.Event, correct bool) {
			seen = append(seen, correct)
		})
		Expect(seen).To(Equal([]bool{false, true}))
	})
})

var _ = Describe("Result", func() {
	It("should compute accuracy as a fraction", func() {
		res := predictor.Result{Correct: 3, Total: 4}
		Expect(res.Accuracy()).To(Equal(0.75))
		Expect(res.Mispredictions()).To(Equal(uint64(1)))
	})
})

var _ = Describe("Factory", func() {
	It("should use sensible defaults", func() {
		config := predictor.DefaultConfig()
		Expect(config.TableSize).To(Equal(1024))
		Expect(config.HistoryLength).To(Equal(16))
		Expect(config.NumPerceptrons).To(Equal(1024))
		Expect(config.Validate()).To(Succeed())
	})

	It("should build every kind", func() {
		for _, kind := range predictor.Kinds() {
			p, err := predictor.New(kind, predictor.DefaultConfig())
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name()).To(Equal(string(kind)))
		}
	})

	It("should build independent instances", func() {
		a, err := predictor.New(predictor.KindHybrid, predictor.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		b, err := predictor.New(predictor.KindHybrid, predictor.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		events := trace.GenerateComplex(3000)

		// Interleave the two instances event by event.
		var ra, rb predictor.Result
		for _, ev := range events {
			if a.Observe(ev) == ev.Taken {
				ra.Correct++
			}
			ra.Total++
			if b.Observe(ev) == ev.Taken {
				rb.Correct++
			}
			rb.Total++
		}
		Expect(ra).To(Equal(rb))

		c, err := predictor.New(predictor.KindHybrid, predictor.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		Expect(predictor.RunTrace(c, events)).To(Equal(ra))
	})

	It("should reject unknown kinds", func() {
		p, err := predictor.New("gshare", predictor.DefaultConfig())
		Expect(p).To(BeNil())
		Expect(errors.Is(err, predictor.ErrUnknownKind)).To(BeTrue())
	})

	It("should reject invalid configurations", func() {
		config := predictor.DefaultConfig()
		config.HistoryLength = 0

		p, err := predictor.New(predictor.KindPerceptron, config)
		Expect(p).To(BeNil())
		Expect(errors.Is(err, predictor.ErrInvalidConfig)).To(BeTrue())
		Expect(errors.Is(config.Validate(), predictor.ErrInvalidConfig)).To(BeTrue())
	})

	It("should report every invalid field", func() {
		err := predictor.Config{}.Validate()
		Expect(err).To(MatchError(ContainSubstring("table size")))
		Expect(err).To(MatchError(ContainSubstring("history length")))
		Expect(err).To(MatchError(ContainSubstring("perceptron count")))
	})

	DescribeTable("should reject sizes beyond the construction limits",
		func(config predictor.Config) {
			Expect(errors.Is(config.Validate(), predictor.ErrInvalidConfig)).To(BeTrue())
			for _, kind := range predictor.Kinds() {
				p, err := predictor.New(kind, config)
				if err == nil {
					continue
				}
				Expect(p).To(BeNil())
				Expect(errors.Is(err, predictor.ErrInvalidConfig)).To(BeTrue())
			}
		},
		Entry("huge table", predictor.Config{TableSize: 100_000_000_000, HistoryLength: 16, NumPerceptrons: 1024}),
		Entry("huge history", predictor.Config{TableSize: 1024, HistoryLength: 3_000_000_000, NumPerceptrons: 1024}),
		Entry("overflowing arena", predictor.Config{TableSize: 1024, HistoryLength: math.MaxInt, NumPerceptrons: math.MaxInt}),
		Entry("hybrid arena too large", predictor.Config{
			TableSize: predictor.MaxTableSize, HistoryLength: 16, NumPerceptrons: 1024,
		}),
	)

	It("should accept sizes at the limits", func() {
		config := predictor.Config{
			TableSize:      1,
			HistoryLength:  predictor.MaxHistoryLength,
			NumPerceptrons: predictor.MaxPerceptronSize / (predictor.MaxHistoryLength + 1),
		}
		Expect(config.Validate()).To(Succeed())

		_, err := predictor.NewSaturatingCounter(predictor.MaxTableSize)
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("ParseKind",
		func(in string, want predictor.Kind) {
			kind, err := predictor.ParseKind(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(want))
		},
		Entry("2-bit", "2-bit", predictor.KindTwoBit),
		Entry("bimodal alias", "Bimodal", predictor.KindTwoBit),
		Entry("perceptron", " PERCEPTRON ", predictor.KindPerceptron),
		Entry("tournament alias", "tournament", predictor.KindHybrid),
	)

	It("should reject unknown names", func() {
		_, err := predictor.ParseKind("tage")
		Expect(errors.Is(err, predictor.ErrUnknownKind)).To(BeTrue())
	})
})
