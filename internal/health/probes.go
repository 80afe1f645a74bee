package health

import (
	"context"
	"sync/atomic"
	"time"
)

// ProbeManager adds Kubernetes-style probes to a Manager. It tracks whether
// the process finished starting and whether it is shutting down.
type ProbeManager struct {
	*Manager

	startTime   time.Time
	initialized atomic.Bool
	inShutdown  atomic.Bool
	version     string
}

// NewProbeManager creates a probe manager reporting version.
func NewProbeManager(version string) *ProbeManager {
	return &ProbeManager{
		Manager:   NewManager(),
		startTime: time.Now(),
		version:   version,
	}
}

// MarkInitialized lets the startup probe pass.
func (pm *ProbeManager) MarkInitialized() {
	pm.initialized.Store(true)
}

// MarkShutdown makes the readiness probe fail.
func (pm *ProbeManager) MarkShutdown() {
	pm.inShutdown.Store(true)
}

func (pm *ProbeManager) IsInitialized() bool {
	return pm.initialized.Load()
}

func (pm *ProbeManager) IsShuttingDown() bool {
	return pm.inShutdown.Load()
}

func (pm *ProbeManager) Uptime() time.Duration {
	return time.Since(pm.startTime)
}

func (pm *ProbeManager) Version() string {
	return pm.version
}

// ProbeResult is the body of a probe response.
type ProbeResult struct {
	Status    Status             `json:"status"`
	Version   string             `json:"version,omitempty"`
	Uptime    string             `json:"uptime,omitempty"`
	Checks    map[string]*Result `json:"checks,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func (pm *ProbeManager) result(status Status, checks map[string]*Result) *ProbeResult {
	if checks == nil {
		checks = make(map[string]*Result)
	}
	return &ProbeResult{
		Status:    status,
		Version:   pm.version,
		Uptime:    pm.Uptime().Round(time.Second).String(),
		Checks:    checks,
		Timestamp: time.Now(),
	}
}

// CheckLiveness never runs dependency checks. It is healthy while running
// and degraded once shutdown has begun.
func (pm *ProbeManager) CheckLiveness(ctx context.Context) *ProbeResult {
	if pm.IsShuttingDown() {
		return pm.result(StatusDegraded, nil)
	}
	return pm.result(StatusHealthy, nil)
}

// CheckReadiness runs every registered check. It is unhealthy without
// running them once shutdown has begun.
func (pm *ProbeManager) CheckReadiness(ctx context.Context) *ProbeResult {
	if pm.IsShuttingDown() {
		return pm.result(StatusUnhealthy, nil)
	}
	checks := pm.Manager.Check(ctx)
	return pm.result(pm.Manager.OverallStatus(checks), checks)
}

// CheckStartup is healthy once MarkInitialized has been called.
func (pm *ProbeManager) CheckStartup(ctx context.Context) *ProbeResult {
	if pm.IsInitialized() {
		return pm.result(StatusHealthy, nil)
	}
	return pm.result(StatusUnhealthy, nil)
}
