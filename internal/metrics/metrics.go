// Package metrics provides Prometheus metrics for the robots service
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Directive emission
	EmissionsTotal       *prometheus.CounterVec
	HeaderFallbacksTotal prometheus.Counter
	InjectionErrorsTotal prometheus.Counter

	// Settings cache
	CacheRequestsTotal *prometheus.CounterVec

	// Admin writes
	SettingsSavesTotal prometheus.Counter
	OverrideSavesTotal *prometheus.CounterVec
}

// New registers every metric on reg. Pass prometheus.DefaultRegisterer in
// production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noindex_seo_http_requests_total",
			Help: "Total number of proxied HTTP requests",
		}, []string{"method", "code"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "noindex_seo_http_request_duration_seconds",
			Help:    "Duration of proxied HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		EmissionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noindex_seo_emissions_total",
			Help: "Robots directives emitted, by transport and decision source",
		}, []string{"transport", "source"}),
		HeaderFallbacksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "noindex_seo_header_fallbacks_total",
			Help: "Header emissions downgraded to meta because headers were already sent",
		}),
		InjectionErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "noindex_seo_injection_errors_total",
			Help: "HTML documents the robots meta tag could not be injected into",
		}),
		CacheRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noindex_seo_options_cache_requests_total",
			Help: "Options snapshot cache lookups by result",
		}, []string{"result"}),
		SettingsSavesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "noindex_seo_settings_saves_total",
			Help: "Settings form submissions stored",
		}),
		OverrideSavesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noindex_seo_override_saves_total",
			Help: "Per-item override writes by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) RecordRequest(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, code).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) RecordEmission(transport, source string) {
	if m == nil {
		return
	}
	m.EmissionsTotal.WithLabelValues(transport, source).Inc()
}

func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.HeaderFallbacksTotal.Inc()
}

func (m *Metrics) RecordInjectionError() {
	if m == nil {
		return
	}
	m.InjectionErrorsTotal.Inc()
}

func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSettingsSave() {
	if m == nil {
		return
	}
	m.SettingsSavesTotal.Inc()
}

func (m *Metrics) RecordOverrideSave(kind string) {
	if m == nil {
		return
	}
	m.OverrideSavesTotal.WithLabelValues(kind).Inc()
}
