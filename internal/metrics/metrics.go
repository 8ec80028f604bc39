// Package metrics provides the Prometheus metrics of the classification
// pipeline.
//
// All methods are safe to call on a nil *Metrics so that components can run
// without a registry.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the pipeline counters and histograms.
type Metrics struct {
	FramesReceived  prometheus.Counter
	FramesDropped   prometheus.Counter
	FramesMalformed prometheus.Counter
	FrameErrors     *prometheus.CounterVec
	Classifications *prometheus.CounterVec

	InferenceDuration prometheus.Histogram
	FrameDuration     prometheus.Histogram

	SinkErrors *prometheus.CounterVec
}

// New creates the pipeline metrics and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shapecls_frames_received_total",
			Help: "Frames offered to the classification worker.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shapecls_frames_dropped_total",
			Help: "Frames replaced by a newer frame before the worker took them.",
		}),
		FramesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shapecls_frames_malformed_total",
			Help: "Frames skipped because their plane layout was invalid.",
		}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shapecls_frame_errors_total",
			Help: "Frames that failed after decoding, by stage.",
		}, []string{"stage"}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shapecls_classifications_total",
			Help: "Frames classified, partitioned by label.",
		}, []string{"label"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shapecls_inference_duration_seconds",
			Help:    "Time spent in the inference engine per frame.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shapecls_frame_duration_seconds",
			Help:    "Time from decode start to label per frame.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shapecls_sink_errors_total",
			Help: "Result deliveries that failed, by sink.",
		}, []string{"sink"}),
	}

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

// FrameReceived counts a frame offered to the worker.
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
}

// FrameDropped counts a frame overwritten in the mailbox.
func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

// FrameMalformed counts a frame rejected by the decoder.
func (m *Metrics) FrameMalformed() {
	if m == nil {
		return
	}
	m.FramesMalformed.Inc()
}

// FrameFailed counts a frame that failed at stage ("infer", "score").
func (m *Metrics) FrameFailed(stage string) {
	if m == nil {
		return
	}
	m.FrameErrors.WithLabelValues(stage).Inc()
}

// RecordClassification records one labelled frame with its inference and
// total durations in seconds.
func (m *Metrics) RecordClassification(label string, inferSeconds, totalSeconds float64) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(label).Inc()
	m.InferenceDuration.Observe(inferSeconds)
	m.FrameDuration.Observe(totalSeconds)
}

// SinkFailed counts a failed delivery to the named sink.
func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.FramesReceived.Desc()
	ch <- m.FramesDropped.Desc()
	ch <- m.FramesMalformed.Desc()
	m.FrameErrors.Describe(ch)
	m.Classifications.Describe(ch)
	ch <- m.InferenceDuration.Desc()
	ch <- m.FrameDuration.Desc()
	m.SinkErrors.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.FramesReceived
	ch <- m.FramesDropped
	ch <- m.FramesMalformed
	m.FrameErrors.Collect(ch)
	m.Classifications.Collect(ch)
	ch <- m.InferenceDuration
	ch <- m.FrameDuration
	m.SinkErrors.Collect(ch)
}
