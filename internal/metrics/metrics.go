package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/activityflow/internal/errors"
)

// Metrics holds all Prometheus metrics for activityflow.
// All Observe* helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// Document resolution
	Resolutions        *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec
	CacheLookups       *prometheus.CounterVec

	// Screen building and input dispatch
	ScreenBuilds        *prometheus.CounterVec
	ScreenBuildDuration prometheus.Histogram
	Fallbacks           *prometheus.CounterVec
	Superseded          prometheus.Counter

	// Flow control
	ActivityLoads *prometheus.CounterVec
	Navigations   *prometheus.CounterVec
	Responses     *prometheus.CounterVec

	// Sessions
	Sessions *prometheus.CounterVec

	// HTTP API
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activityflow_resolutions_total",
				Help: "Total number of linked-data document resolutions",
			},
			[]string{"scheme", "success"},
		),
		ResolutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activityflow_resolution_duration_seconds",
				Help:    "Document fetch and expansion duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"scheme"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activityflow_resolver_cache_lookups_total",
				Help: "Resolver cache lookups by result",
			},
			[]string{"result"},
		),

		ScreenBuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activityflow_screen_builds_total",
				Help: "Total number of screen model builds",
			},
			[]string{"input_type", "success"},
		),
		ScreenBuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "activityflow_screen_build_duration_seconds",
				Help:    "Screen model build duration in seconds, including the constraints document",
				Buckets: prometheus.DefBuckets,
			},
		),
		Fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activityflow_input_fallbacks_total",
				Help: "Screens rendered with the unknown-input fallback",
			},
			[]string{"input_type", "reason"},
		),
		Superseded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "activityflow_screen_loads_superseded_total",
				Help: "Screen loads discarded because navigation moved on before they finished",
			},
		),

		ActivityLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activityflow_activity_loads_total",
				Help: "Total number of activity loads",
			},
			[]string{"success"},
		),
		Navigations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activityflow_navigations_total",
				Help: "Navigation commands by direction and whether the index moved",
			},
			[]string{"direction", "moved"},
		),
		Responses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activityflow_responses_total",
				Help: "Responses saved, by whether they replaced an earlier answer",
			},
			[]string{"overwrite"},
		),

		Sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activityflow_sessions_total",
				Help: "Session lifecycle events",
			},
			[]string{"event"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activityflow_http_requests_total",
				Help: "HTTP API requests",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activityflow_http_request_duration_seconds",
				Help:    "HTTP API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activityflow_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "category"},
		),
	}
}

func successLabel(err error) string {
	return strconv.FormatBool(err == nil)
}

// ObserveResolution records one document resolution.
func (m *Metrics) ObserveResolution(scheme string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(scheme, successLabel(err)).Inc()
	m.ResolutionDuration.WithLabelValues(scheme).Observe(d.Seconds())
	m.RecordError(err)
}

// ObserveCache records a resolver cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveScreenBuild records one screen model build.
func (m *Metrics) ObserveScreenBuild(inputType string, err error, d time.Duration) {
	if m == nil {
		return
	}
	if inputType == "" {
		inputType = "none"
	}
	m.ScreenBuilds.WithLabelValues(inputType, successLabel(err)).Inc()
	m.ScreenBuildDuration.Observe(d.Seconds())
	m.RecordError(err)
}

// ObserveFallback records a screen degraded to the unknown-input fallback.
func (m *Metrics) ObserveFallback(inputType, reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(inputType, reason).Inc()
}

// ObserveSuperseded records a discarded stale screen load.
func (m *Metrics) ObserveSuperseded() {
	if m == nil {
		return
	}
	m.Superseded.Inc()
}

// ObserveActivityLoad records one activity load.
func (m *Metrics) ObserveActivityLoad(err error) {
	if m == nil {
		return
	}
	m.ActivityLoads.WithLabelValues(successLabel(err)).Inc()
	m.RecordError(err)
}

// ObserveNavigation records a navigation command.
func (m *Metrics) ObserveNavigation(direction string, moved bool) {
	if m == nil {
		return
	}
	m.Navigations.WithLabelValues(direction, strconv.FormatBool(moved)).Inc()
}

// ObserveResponse records a saved response.
func (m *Metrics) ObserveResponse(overwrite bool) {
	if m == nil {
		return
	}
	m.Responses.WithLabelValues(strconv.FormatBool(overwrite)).Inc()
}

// ObserveSession records a session lifecycle event (created, resumed, completed, deleted).
func (m *Metrics) ObserveSession(event string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(event).Inc()
}

// ObserveHTTP records one HTTP API request.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordError counts err by its error code. Uncoded errors count as "unknown".
func (m *Metrics) RecordError(err error) {
	if m == nil || err == nil {
		return
	}
	code := errors.CodeOf(err)
	if code == "" {
		m.Errors.WithLabelValues("unknown", "unknown").Inc()
		return
	}
	m.Errors.WithLabelValues(string(code), code.Category()).Inc()
}
