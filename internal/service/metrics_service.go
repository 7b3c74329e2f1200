package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for bulletin generation.
const (
	OutcomeCreated  = "created"
	OutcomeConflict = "conflict"
	OutcomeNoGrades = "no_grades"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec

	bulletinsGenerated   *prometheus.CounterVec
	bulletinsPublished   prometheus.Counter
	rankRecalculations   *prometheus.CounterVec
	rankDuration         prometheus.Observer
	notificationFailures *prometheus.CounterVec
	pdfRenders           *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	bulletinsGenerated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulletins_generated_total",
		Help: "Bulletin creation attempts by outcome",
	}, []string{"mode", "outcome"})

	bulletinsPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bulletins_published_total",
		Help: "Bulletins transitioned to published",
	})

	rankRecalculations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rank_recalculations_total",
		Help: "Full scope re-rank passes by trigger",
	}, []string{"trigger"})

	rankDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rank_recalculation_duration_seconds",
		Help:    "Duration of a scope re-rank including lock wait",
		Buckets: prometheus.DefBuckets,
	})

	notificationFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Publication notices that could not be delivered",
	}, []string{"recipient"})

	pdfRenders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulletin_pdf_renders_total",
		Help: "Bulletin PDF render jobs by status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		bulletinsGenerated, bulletinsPublished, rankRecalculations, rankDuration, notificationFailures, pdfRenders, goroutines)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheLatency:         cacheLatency,
		cacheWrite:           cacheWrite,
		cacheLookups:         cacheLookups,
		bulletinsGenerated:   bulletinsGenerated,
		bulletinsPublished:   bulletinsPublished,
		rankRecalculations:   rankRecalculations,
		rankDuration:         rankDuration,
		notificationFailures: notificationFailures,
		pdfRenders:           pdfRenders,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// BulletinGenerated counts one creation attempt. mode is "single" or "bulk".
func (m *MetricsService) BulletinGenerated(mode, outcome string) {
	if m == nil {
		return
	}
	m.bulletinsGenerated.WithLabelValues(mode, outcome).Inc()
}

func (m *MetricsService) BulletinPublished() {
	if m == nil {
		return
	}
	m.bulletinsPublished.Inc()
}

// RankRecalculated counts a full re-rank of one scope.
func (m *MetricsService) RankRecalculated(trigger string, duration time.Duration) {
	if m == nil {
		return
	}
	m.rankRecalculations.WithLabelValues(trigger).Inc()
	m.rankDuration.Observe(duration.Seconds())
}

func (m *MetricsService) NotificationFailed(recipient string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(recipient).Inc()
}

func (m *MetricsService) PDFRendered(status string) {
	if m == nil {
		return
	}
	m.pdfRenders.WithLabelValues(status).Inc()
}
