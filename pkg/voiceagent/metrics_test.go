package voiceagent

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)

	var second *Metrics
	require.NotPanics(t, func() { second = NewMetrics(reg) })

	second.KeepAlivesSent.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(first.KeepAlivesSent))

	count, err := testutil.GatherAndCount(reg, "voiceagent_keepalives_sent_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_SetState(t *testing.T) {
	m := NewMetrics(nil)
	m.setState(StateConnected)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.State.WithLabelValues(string(StateConnected))))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.State.WithLabelValues(string(StateIdle))))

	m.setDegraded(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Degraded))
	m.setDegraded(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Degraded))
}
