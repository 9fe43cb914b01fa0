// Package metrics records download outcomes as Prometheus metrics and can
// export them in the node_exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/replicate/batchget/pkg/download"
)

const namespace = "batchget"

// Observer implements download.Observer. Each Observer owns its registry, so
// any number of them can exist side by side.
type Observer struct {
	registry *prometheus.Registry

	downloadsTotal  *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	durationSeconds *prometheus.HistogramVec
	sizeBytes       prometheus.Histogram
	inProgress      prometheus.Gauge
}

var _ download.Observer = &Observer{}

func New() *Observer {
	o := &Observer{registry: prometheus.NewRegistry()}

	o.downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Finished downloads by outcome and failure kind.",
		},
		[]string{"outcome", "kind"},
	)
	o.bytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "received_bytes_total",
		Help:      "Body bytes accepted by sinks.",
	})
	o.durationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Time from request to outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	// 1KB to 1GB
	o.sizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "download_size_bytes",
		Help:      "Size of successful downloads.",
		Buckets:   prometheus.ExponentialBuckets(1024, 10, 7),
	})
	o.inProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "downloads_in_progress",
		Help:      "Downloads currently running.",
	})

	o.registry.MustRegister(
		o.downloadsTotal,
		o.bytesTotal,
		o.durationSeconds,
		o.sizeBytes,
		o.inProgress,
	)
	return o
}

func (o *Observer) TaskStarted(*download.Task) {
	o.inProgress.Inc()
}

func (o *Observer) TaskFinished(_ *download.Task, outcome download.Outcome) {
	o.inProgress.Dec()
	o.bytesTotal.Add(float64(outcome.Bytes))

	if outcome.Failure != nil {
		o.downloadsTotal.WithLabelValues("failure", string(outcome.Failure.Kind())).Inc()
		o.durationSeconds.WithLabelValues("failure").Observe(outcome.Elapsed.Seconds())
		return
	}
	o.downloadsTotal.WithLabelValues("success", "none").Inc()
	o.durationSeconds.WithLabelValues("success").Observe(outcome.Elapsed.Seconds())
	o.sizeBytes.Observe(float64(outcome.Bytes))
}

// Registry exposes the observer's metrics, e.g. for promhttp.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// WriteToTextfile atomically writes the current metric values to path.
func (o *Observer) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, o.registry); err != nil {
		return fmt.Errorf("error writing metrics to %s: %w", path, err)
	}
	return nil
}
