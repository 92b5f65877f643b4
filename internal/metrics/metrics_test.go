package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricValue(t *testing.T, m prometheus.Metric) *dto.Metric {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	return &out
}

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithNamespace("test"))

	c.ConnectionAccepted(1)
	c.ConnectionAccepted(2)
	c.ConnectionRejected()
	c.ConnectionsPruned(1, 1)
	c.MessageReceived("ping", false)
	c.MessageReceived("text", true)
	c.MessageReceived("text", true)
	c.DispatchError()
	c.BroadcastDelivered(3)
	c.ObservePass(2 * time.Millisecond)

	assert.Equal(t, 2.0, metricValue(t, c.connectionsAccepted).GetCounter().GetValue())
	assert.Equal(t, 1.0, metricValue(t, c.connectionsRejected).GetCounter().GetValue())
	assert.Equal(t, 1.0, metricValue(t, c.connectionsClosed).GetCounter().GetValue())
	assert.Equal(t, 1.0, metricValue(t, c.connectionsActive).GetGauge().GetValue())
	assert.Equal(t, 2.0, metricValue(t, c.messagesReceived.WithLabelValues("text")).GetCounter().GetValue())
	assert.Equal(t, 2.0, metricValue(t, c.textFallbacks).GetCounter().GetValue())
	assert.Equal(t, 1.0, metricValue(t, c.dispatchErrors).GetCounter().GetValue())
	assert.Equal(t, 3.0, metricValue(t, c.broadcastDeliveries).GetCounter().GetValue())
	assert.Equal(t, uint64(1), metricValue(t, c.passDuration).GetHistogram().GetSampleCount())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_connections_active")
	assert.Contains(t, names, "test_reactor_pass_seconds")
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ConnectionAccepted(1)
		c.ConnectionRejected()
		c.ConnectionsPruned(1, 0)
		c.MessageReceived("ping", false)
		c.DispatchError()
		c.BroadcastDelivered(1)
		c.ObservePass(time.Millisecond)
	})
}
