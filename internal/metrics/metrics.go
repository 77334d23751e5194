// Package metrics collects extraction timings and neighborhood volumes in a
// private Prometheus registry and writes them out as a node-exporter
// textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/lidarfeatures/internal/errs"
)

const namespace = "lidarfeat"

// Recorder implements both the neighborhood and the feature observer hooks.
type Recorder struct {
	registry *prometheus.Registry

	extractorSeconds *prometheus.HistogramVec
	extractorTargets *prometheus.CounterVec
	batches          prometheus.Counter
	batchTargets     prometheus.Counter
	neighborIndices  prometheus.Counter
}

// New returns a recorder with its collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		extractorSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extractor_duration_seconds",
			Help:      "Time spent in one extractor call on one chunk.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"extractor"}),
		extractorTargets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractor_targets_total",
			Help:      "Targets processed per extractor.",
		}, []string{"extractor"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "neighborhood_batches_total",
			Help:      "Neighborhood batches computed.",
		}),
		batchTargets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "neighborhood_targets_total",
			Help:      "Targets whose neighborhood was computed.",
		}),
		neighborIndices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "neighborhood_indices_total",
			Help:      "Environment indices returned across all neighborhoods.",
		}),
	}
	r.registry.MustRegister(r.extractorSeconds, r.extractorTargets, r.batches, r.batchTargets, r.neighborIndices)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveExtractor records one extractor call.
func (r *Recorder) ObserveExtractor(name string, d time.Duration, targets int) {
	r.extractorSeconds.WithLabelValues(name).Observe(d.Seconds())
	r.extractorTargets.WithLabelValues(name).Add(float64(targets))
}

// ObserveBatch records one neighborhood batch.
func (r *Recorder) ObserveBatch(targets, indices int) {
	r.batches.Inc()
	r.batchTargets.Add(float64(targets))
	r.neighborIndices.Add(float64(indices))
}

// WriteTextfile writes the current values to path in the Prometheus text
// format, atomically replacing any previous file.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errs.Wrap(err, errs.IOError, "writing metrics to %s", path)
	}
	return nil
}
