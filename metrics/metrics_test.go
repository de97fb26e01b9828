package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewRegistersAllCollectorsOnce(t *testing.T) {
	m := New()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMatchedProxiesGaugeTracksSetAndLabels(t *testing.T) {
	m := New()
	g := m.MatchedProxies.WithLabelValues(EntityWriter, "HelloWorld")
	g.Set(3)
	assert.Equal(t, float64(3), gaugeValue(t, g))
}

func TestHeartbeatsCounterIncrementsPerDirection(t *testing.T) {
	m := New()
	sent := m.Heartbeats.WithLabelValues(DirectionSent, "HelloWorld")
	received := m.Heartbeats.WithLabelValues(DirectionReceived, "HelloWorld")
	sent.Inc()
	sent.Inc()
	received.Inc()
	assert.Equal(t, float64(2), counterValue(t, sent))
	assert.Equal(t, float64(1), counterValue(t, received))
}

func TestLivelinessAssertedIsUnlabeled(t *testing.T) {
	m := New()
	m.LivelinessAsserted.Inc()
	assert.Equal(t, float64(1), counterValue(t, m.LivelinessAsserted))
}

func TestTwoIndependentMetricsInstancesDoNotCollide(t *testing.T) {
	m1 := New()
	m2 := New()
	m1.SamplesSent.WithLabelValues("A").Inc()
	m2.SamplesSent.WithLabelValues("A").Inc()
	assert.Equal(t, float64(1), counterValue(t, m1.SamplesSent.WithLabelValues("A")))
	assert.Equal(t, float64(1), counterValue(t, m2.SamplesSent.WithLabelValues("A")))
}
