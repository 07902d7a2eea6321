package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordCache(true)
	m.RecordCache(false)
	m.RecordCache(false)
	m.RecordEmission("header", "global")
	m.RecordFallback()
	m.RecordRequest("GET", "200", 15*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequestsTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheRequestsTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmissionsTotal.WithLabelValues("header", "global")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeaderFallbacksTotal))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCache(true)
		m.RecordEmission("meta", "override")
		m.RecordSettingsSave()
	})
}
