package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	Exchanges     *prometheus.CounterVec
	Frames        *prometheus.CounterVec
	Duration      prometheus.Histogram
	Conversations prometheus.Gauge
}

// New creates the collectors and registers them on reg (skipped when reg is nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berrychat_exchanges_total",
				Help: "Finished exchanges by outcome",
			},
			[]string{"outcome"},
		),
		Frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berrychat_frames_total",
				Help: "Classified inbound events by kind",
			},
			[]string{"kind"},
		),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "berrychat_exchange_duration_seconds",
			Help:    "Time from submit to the terminal event",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		Conversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "berrychat_conversations_active",
			Help: "Open conversations held by the gateway",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Exchanges, m.Frames, m.Duration, m.Conversations)
	}
	return m
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(kind).Inc()
}

func (m *Metrics) ExchangeDone(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(outcome).Inc()
	m.Duration.Observe(d.Seconds())
}

func (m *Metrics) ConversationOpened() {
	if m == nil {
		return
	}
	m.Conversations.Inc()
}

func (m *Metrics) ConversationClosed() {
	if m == nil {
		return
	}
	m.Conversations.Dec()
}
