package metric_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomcast/metric"
)

// series counts the gathered series per metric name.
func series(t *testing.T, m *metric.Metrics) map[string]int {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	out := make(map[string]int)
	for _, f := range families {
		out[f.GetName()] = len(f.GetMetric())
	}
	return out
}

func TestMetrics(t *testing.T) {
	m := metric.New(metric.Config{Port: metric.DefaultMetricsPort, Path: metric.DefaultMetricsPath})
	require.NotPanics(t, m.RegisterMetrics)

	m.IncrementRelayedSignals("offer")
	m.IncrementRelayedSignals("answer")
	m.IncrementRegistryErrors("incorrect password")
	m.SetRoomStats(2, 5)
	m.SetPeerSessions(map[string]int{"CONNECTED": 2, "FAILED": 1})
	m.UpdatePeerQuality("peer-1", 30, 1500, 0, 1.5)

	got := series(t, m)
	assert.Equal(t, 2, got["relayed_signals_total"])
	assert.Equal(t, 1, got["registry_errors_total"])
	assert.Equal(t, 1, got["rooms_total"])
	assert.Equal(t, 2, got["peer_sessions"])
	assert.Equal(t, 4, got["peer_quality"])

	m.DeletePeerQuality("peer-1")
	assert.Zero(t, series(t, m)["peer_quality"])
}
