package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSingleton(t *testing.T) {
	a := New()
	b := New()
	require.NotNil(t, a)
	assert.Same(t, a, b)
}

func TestRecorders(t *testing.T) {
	m := New()

	okBefore := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("ok"))
	fbBefore := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("fallback"))
	m.RecordSession(false, 6, 4)
	m.RecordSession(true, 0, 3)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("ok")))
	assert.Equal(t, fbBefore+1, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("fallback")))

	lockBefore := testutil.ToFloat64(m.LocksTotal.WithLabelValues("shot_clock"))
	m.RecordLock("shot_clock")
	m.RecordLock("")
	assert.Equal(t, lockBefore+1, testutil.ToFloat64(m.LocksTotal.WithLabelValues("shot_clock")))

	ovBefore := testutil.ToFloat64(m.FinalizerOverridesTotal)
	m.RecordFinalizerOverride()
	assert.Equal(t, ovBefore+1, testutil.ToFloat64(m.FinalizerOverridesTotal))

	fallBefore := testutil.ToFloat64(m.OracleFallbacksTotal.WithLabelValues("detective"))
	m.RecordOracleFallback("detective")
	assert.Equal(t, fallBefore+1, testutil.ToFloat64(m.OracleFallbacksTotal.WithLabelValues("detective")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSession(false, 1, 1)
		m.RecordLock("confidence")
		m.RecordFinalizerOverride()
		m.RecordOracleFallback("detective")
	})
}
