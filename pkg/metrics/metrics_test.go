package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFrame(t *testing.T) {
	m := New()
	m.ObserveFrame(4, 1, 2, 30*time.Millisecond)
	m.ObserveFrame(3, 0, 1, 10*time.Millisecond)
	m.FrameFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Frames.WithLabelValues(StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues(StatusFailed)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Seeds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fusions))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Merges))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "voxelseg_frame_duration_seconds")
	assert.Contains(t, names, "voxelseg_cluster_merges_total")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.FrameFailed()
	assert.Zero(t, testutil.ToFloat64(b.Frames.WithLabelValues(StatusFailed)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFrame(1, 1, 1, time.Second)
		m.FrameFailed()
	})
	assert.Nil(t, m.Registry())
}
