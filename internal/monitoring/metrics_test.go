package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRejection("escape")
		m.RecordLoad("ok", time.Millisecond)
		m.CacheEvent("hit")
		m.RecordRun("ok", time.Millisecond)
		m.RuntimeOpened()
		m.RuntimeClosed()
	})
}

func TestPrivateRegistriesDoNotCollide(t *testing.T) {
	a := NewMetrics(nil)
	b := NewMetrics(nil)

	a.RecordRejection("remote")
	a.RecordRejection("remote")
	b.RecordRejection("remote")

	assert.Equal(t, 2.0, testutil.ToFloat64(a.Rejections.WithLabelValues("remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Rejections.WithLabelValues("remote")))
}

func TestSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m.Gatherer())

	m.RecordLoad("ok", 2*time.Millisecond)
	m.CacheEvent("load")
	m.RuntimeOpened()

	count, err := testutil.GatherAndCount(reg,
		"sandbox_module_loads_total",
		"sandbox_module_cache_events_total",
		"sandbox_runtimes_active",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	m.RuntimeClosed()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RuntimesActive))
}

func TestRegisterTwiceOnSharedRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
