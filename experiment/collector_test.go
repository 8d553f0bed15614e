package experiment_test

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sarchlab/bpsim/experiment"
)

var _ = Describe("Collector", func() {
	var (
		collector *experiment.Collector
		result    experiment.Result
	)

	BeforeEach(func() {
		collector = experiment.NewCollector()
		result = experiment.Result{
			Predictor:      "2-bit",
			Workload:       "loop",
			Accuracy:       0.8,
			Correct:        8,
			Total:          10,
			Mispredictions: 2,
			MPKI:           0.02,
			WallTime:       time.Millisecond,
		}
	})

	It("should count branches by outcome", func() {
		collector.Record(result)
		collector.Record(result)

		expected := `
# HELP bpsim_branches_total Replayed branches by prediction outcome.
# TYPE bpsim_branches_total counter
bpsim_branches_total{outcome="correct",predictor="2-bit",workload="loop"} 16
bpsim_branches_total{outcome="mispredicted",predictor="2-bit",workload="loop"} 4
`
		Expect(testutil.GatherAndCompare(collector.Registry(),
			strings.NewReader(expected), "bpsim_branches_total")).To(Succeed())
	})

	It("should keep the latest accuracy", func() {
		collector.Record(result)
		result.Accuracy = 0.9
		collector.Record(result)

		expected := `
# HELP bpsim_accuracy_ratio Prediction accuracy of the latest replay.
# TYPE bpsim_accuracy_ratio gauge
bpsim_accuracy_ratio{predictor="2-bit",workload="loop"} 0.9
`
		Expect(testutil.GatherAndCompare(collector.Registry(),
			strings.NewReader(expected), "bpsim_accuracy_ratio")).To(Succeed())
	})

	It("should observe replay durations", func() {
		collector.Record(result)
		n, err := testutil.GatherAndCount(collector.Registry(), "bpsim_replay_duration_seconds")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("should write a textfile", func() {
		dir, err := os.MkdirTemp("", "collector-test")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = os.RemoveAll(dir) })

		collector.Record(result)
		path := filepath.Join(dir, "bpsim.prom")
		Expect(collector.WriteTextfile(path)).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("bpsim_mpki"))
	})
})
