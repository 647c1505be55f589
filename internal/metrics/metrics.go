package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parcel"

// Recorder holds the download counters of one run. A nil Recorder records nothing.
type Recorder struct {
	registry  *prometheus.Registry
	downloads *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	fallbacks prometheus.Counter
	segErrors prometheus.Counter
	inFlight  prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Finished downloads by transfer mode and outcome.",
		}, []string{"mode", "status"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes written to final destinations by transfer mode.",
		}, []string{"mode"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Wall time of finished downloads.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"mode"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Segmented downloads retried as a single stream.",
		}),
		segErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_failures_total",
			Help:      "Segments that failed to transfer.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloads_in_flight",
			Help:      "Downloads currently running.",
		}),
	}
	r.registry.MustRegister(r.downloads, r.bytes, r.duration, r.fallbacks, r.segErrors, r.inFlight)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Started() {
	if r == nil {
		return
	}
	r.inFlight.Inc()
}

func (r *Recorder) Finished(mode string, success bool, bytes int64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.inFlight.Dec()
	status := "success"
	if !success {
		status = "failure"
	}
	r.downloads.WithLabelValues(mode, status).Inc()
	if success && bytes > 0 {
		r.bytes.WithLabelValues(mode).Add(float64(bytes))
	}
	r.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (r *Recorder) Fallback() {
	if r == nil {
		return
	}
	r.fallbacks.Inc()
}

func (r *Recorder) SegmentFailed() {
	if r == nil {
		return
	}
	r.segErrors.Inc()
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
