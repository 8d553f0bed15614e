package experiment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exports experiment results as Prometheus metrics. It is safe to
// record from concurrent replays.
type Collector struct {
	registry *prometheus.Registry

	branches       *prometheus.CounterVec
	accuracy       *prometheus.GaugeVec
	mpki           *prometheus.GaugeVec
	replayDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		branches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bpsim",
			Name:      "branches_total",
			Help:      "Replayed branches by prediction outcome.",
		}, []string{"predictor", "workload", "outcome"}),
		accuracy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bpsim",
			Name:      "accuracy_ratio",
			Help:      "Prediction accuracy of the latest replay.",
		}, []string{"predictor", "workload"}),
		mpki: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bpsim",
			Name:      "mpki",
			Help:      "Mispredictions per thousand instructions of the latest replay.",
		}, []string{"predictor", "workload"}),
		replayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bpsim",
			Name:      "replay_duration_seconds",
			Help:      "Wall time spent replaying one trace.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"predictor"}),
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Record updates the metrics from one result.
func (c *Collector) Record(r Result) {
	c.branches.WithLabelValues(r.Predictor, r.Workload, "correct").Add(float64(r.Correct))
	c.branches.WithLabelValues(r.Predictor, r.Workload, "mispredicted").Add(float64(r.Mispredictions))
	c.accuracy.WithLabelValues(r.Predictor, r.Workload).Set(r.Accuracy)
	c.mpki.WithLabelValues(r.Predictor, r.Workload).Set(r.MPKI)
	c.replayDuration.WithLabelValues(r.Predictor).Observe(r.WallTime.Seconds())
}

// WriteTextfile writes the current metrics in the Prometheus text format,
// suitable for the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
