package health

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds each check run by a Manager.
const DefaultTimeout = 5 * time.Second

// Manager runs registered checkers in parallel, each under its own timeout.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

// NewManager creates a manager with DefaultTimeout.
func NewManager() *Manager {
	return &Manager{
		checkers: make([]Checker, 0),
		timeout:  DefaultTimeout,
	}
}

// WithTimeout sets the per-check timeout and returns m for chaining.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return m
}

// AddChecker registers c.
func (m *Manager) AddChecker(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// RemoveChecker removes the checker called name and reports whether one was
// registered.
func (m *Manager) RemoveChecker(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.checkers {
		if c.Name() == name {
			m.checkers = append(m.checkers[:i], m.checkers[i+1:]...)
			return true
		}
	}
	return false
}

// Check runs every checker and returns results by checker name. A checker
// that returns nil is reported unhealthy.
func (m *Manager) Check(ctx context.Context) map[string]*Result {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	timeout := m.timeout
	m.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]*Result, len(checkers))
	)
	for _, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := runCheck(ctx, c, timeout)
			mu.Lock()
			results[c.Name()] = r
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func runCheck(ctx context.Context, c Checker, timeout time.Duration) *Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	r := c.Check(ctx)
	if r == nil {
		r = Unhealthy("check returned no result")
	}
	if r.Latency == 0 {
		r.Latency = time.Since(start)
	}
	return r
}

// OverallStatus is the worst status among results; no results is healthy.
func (m *Manager) OverallStatus(results map[string]*Result) Status {
	overall := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// CheckNames returns checker names in registration order.
func (m *Manager) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.checkers))
	for i, c := range m.checkers {
		names[i] = c.Name()
	}
	return names
}

// Count returns the number of registered checkers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.checkers)
}
