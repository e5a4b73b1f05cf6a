package stream

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Manu-world/flight-tracking-service/metric"
)

// Metrics holds the stream package's instruments. A nil *Metrics is valid and
// records nothing, so callers never branch on whether metrics are wired.
type Metrics struct {
	activeSubscriptions prometheus.Gauge
	framesTotal         *prometheus.CounterVec
	pollsTotal          *prometheus.CounterVec
	pollDuration        *prometheus.HistogramVec
}

// NewMetrics registers the stream instruments with the registry. A nil
// registry yields a nil Metrics, which is safe to use.
func NewMetrics(reg *metric.Registry) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flightstream",
			Name:      "active_subscriptions",
			Help:      "Number of live stream subscriptions.",
		}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flightstream",
			Name:      "frames_emitted_total",
			Help:      "Frames pushed to subscribers by kind.",
		}, []string{"kind"}),
		pollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flightstream",
			Name:      "polls_total",
			Help:      "Upstream polls by source and outcome.",
		}, []string{"source", "outcome"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flightstream",
			Name:      "poll_duration_seconds",
			Help:      "Upstream poll latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"active_subscriptions":  m.activeSubscriptions,
		"frames_emitted_total":  m.framesTotal,
		"polls_total":           m.pollsTotal,
		"poll_duration_seconds": m.pollDuration,
	} {
		if err := reg.Register("stream", name, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.activeSubscriptions.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.activeSubscriptions.Dec()
}

// FrameEmitted records one pushed frame; kind is "combined" or "error".
func (m *Metrics) FrameEmitted(kind string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(kind).Inc()
}

// PollObserved records one completed poll; source is "position" or "info",
// outcome is "success", "empty" or "failure".
func (m *Metrics) PollObserved(source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pollsTotal.WithLabelValues(source, outcome).Inc()
	m.pollDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}
