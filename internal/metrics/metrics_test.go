package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Event("delta")
	m.Event("delta")
	m.ExchangeDone("stream", 2*time.Second)
	m.ConversationOpened()
	m.ConversationOpened()
	m.ConversationClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Frames.WithLabelValues("delta")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exchanges.WithLabelValues("stream")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conversations))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Duration))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Event("delta")
		m.ExchangeDone("reply", time.Second)
		m.ConversationOpened()
		m.ConversationClosed()
	})
}
