package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	TrackingStateRecorded = "recorded"
	TrackingStateSkipped  = "skipped"
	TrackingStateFailed   = "failed"
)

// TrackingMetrics captures request tracking pipeline health.
type TrackingMetrics struct {
	outcomes        *prometheus.CounterVec
	classifications *prometheus.CounterVec
	recordDuration  prometheus.Histogram
	reloads         *prometheus.CounterVec
}

var (
	trackingMetricsOnce sync.Once
	trackingMetrics     *TrackingMetrics
)

// Tracking returns the singleton tracking metrics registry.
func Tracking() *TrackingMetrics {
	return TrackingWithConfig(Config{})
}

// TrackingWithConfig returns the singleton tracking metrics registry using config labels.
func TrackingWithConfig(cfg Config) *TrackingMetrics {
	trackingMetricsOnce.Do(func() {
		trackingMetrics = NewTrackingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return trackingMetrics
}

// NewTrackingMetrics registers tracking collectors on registerer.
func NewTrackingMetrics(registerer prometheus.Registerer, cfg Config) *TrackingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "usagetrack"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "usagetrack_tracking_outcomes_total",
		Help:        "Request tracking outcomes by terminal state and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"state", "reason"})
	classifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "usagetrack_tracking_classifications_total",
		Help:        "Requests matched to a tracking type by the URL classifier.",
		ConstLabels: constLabels,
	}, []string{"type"})
	recordDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "usagetrack_tracking_record_duration_seconds",
		Help:        "Latency added to tracked requests by the usage record insert.",
		Buckets:     []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConstLabels: constLabels,
	})
	reloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "usagetrack_tracking_rule_reloads_total",
		Help:        "Classifier rule set rebuilds by result.",
		ConstLabels: constLabels,
	}, []string{"result"})

	registerer.MustRegister(outcomes, classifications, recordDuration, reloads)

	return &TrackingMetrics{
		outcomes:        outcomes,
		classifications: classifications,
		recordDuration:  recordDuration,
		reloads:         reloads,
	}
}

func (m *TrackingMetrics) ObserveOutcome(state, reason string) {
	if m == nil {
		return
	}
	state = strings.ToLower(strings.TrimSpace(state))
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "none"
	}
	m.outcomes.WithLabelValues(state, reason).Inc()
}

func (m *TrackingMetrics) ObserveClassification(trackingType string) {
	if m == nil || trackingType == "" {
		return
	}
	m.classifications.WithLabelValues(trackingType).Inc()
}

func (m *TrackingMetrics) ObserveRecordDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.recordDuration.Observe(d.Seconds())
}

func (m *TrackingMetrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reloads.WithLabelValues(result).Inc()
}
