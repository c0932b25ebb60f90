package main

import (
	"net/http"
	"time"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "nepenthes"

// Metrics tracks render and cache activity on a dedicated registry.
//
// Metrics:
//   - nepenthes_renders_total: renders by template and status (ok, error)
//   - nepenthes_render_duration_seconds: render latency by template
//   - nepenthes_cache_lookups_total: cache lookups by result (hit, miss)
//   - nepenthes_cache_entries: templates currently cached
//
// Metrics implements ejs.CacheObserver.
type Metrics struct {
	registry       *prometheus.Registry
	renders        *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
}

// NewMetrics creates and registers the render metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "renders_total",
				Help:      "Total number of template renders",
			},
			[]string{"template", "status"},
		),
		renderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "render_duration_seconds",
				Help:      "Template render latency in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"template"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of template cache lookups",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(m.renders, m.renderDuration, m.cacheLookups)
	return m
}

// WatchCache exposes the number of entries in c as a gauge.
func (m *Metrics) WatchCache(c *ejs.Cache) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cache_entries",
			Help:      "Current number of compiled templates in the cache",
		},
		func() float64 { return float64(c.Len()) },
	))
}

func (m *Metrics) CacheHit(string) {
	m.cacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss(string) {
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveRender records one render of template. Ad-hoc renders use the
// template label "adhoc".
func (m *Metrics) ObserveRender(template string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.renders.WithLabelValues(template, status).Inc()
	m.renderDuration.WithLabelValues(template).Observe(took.Seconds())
}

// Handler returns an HTTP handler exposing the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
