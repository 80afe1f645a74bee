// Package health reports whether activityflow's dependencies are usable.
//
// Checkers probe one dependency each (the session store, the activity
// catalog). A Manager runs them in parallel and a ProbeManager layers
// liveness, readiness and startup probes on top:
//
//	pm := health.NewProbeManager(version)
//	pm.AddChecker(health.NewStoreChecker(store))
//	pm.AddChecker(health.NewCatalogChecker(catalogPath))
//	result := pm.CheckReadiness(ctx)
package health

import (
	"context"
	"time"
)

// Checker verifies one dependency.
type Checker interface {
	// Name is lowercase with hyphens, e.g. "session-store".
	Name() string

	// Check must honor the context deadline.
	Check(ctx context.Context) *Result
}

// Status is the outcome of a check.
type Status string

const (
	StatusHealthy Status = "healthy"
	// StatusDegraded means the process can serve requests with reduced
	// functionality.
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

// Result is the outcome of one check.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency_ns"`
}

// NewResult creates a result with an empty details map.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail and returns r for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// WithLatency sets the latency and returns r for chaining.
func (r *Result) WithLatency(latency time.Duration) *Result {
	r.Latency = latency
	return r
}

func Healthy(message string) *Result {
	return NewResult(StatusHealthy, message)
}

func Degraded(message string) *Result {
	return NewResult(StatusDegraded, message)
}

func Unhealthy(message string) *Result {
	return NewResult(StatusUnhealthy, message)
}
