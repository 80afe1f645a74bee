package input

import (
	"fmt"
	"sort"
	"sync"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/metrics"
)

// Registry maps exact input type names to strategies. Lookups are
// case-sensitive and unregistered names select the unknown strategy.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	unknown    Strategy
	metrics    *metrics.Metrics
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		unknown:    UnknownStrategy{},
	}
}

// DefaultRegistry returns a registry with the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(RadioStrategy{})
	return r
}

// SetMetrics records fallbacks on m.
func (r *Registry) SetMetrics(m *metrics.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// Register adds s under s.Name().
func (r *Registry) Register(s Strategy) error {
	name := s.Name()
	if name == "" {
		return aferrors.New(aferrors.ErrCodeStrategyInvalid, "strategy name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[name]; exists {
		return aferrors.New(aferrors.ErrCodeStrategyInvalid, fmt.Sprintf("strategy already registered: %s", name))
	}
	r.strategies[name] = s
	return nil
}

// Select returns the strategy registered for inputType, or the unknown strategy.
func (r *Registry) Select(inputType string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.strategies[inputType]; ok {
		return s
	}
	return r.unknown
}

// Names lists the registered input types in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prompt prepares in with the selected strategy. A strategy that cannot
// prepare the screen degrades it to the unknown prompt; the failure is kept
// on Prompt.Err and never aborts the flow.
func (r *Registry) Prompt(in Input) *Prompt {
	s := r.Select(in.InputType)

	r.mu.RLock()
	m := r.metrics
	r.mu.RUnlock()

	p, err := s.Prepare(in)
	if err == nil && p != nil {
		if p.Kind == KindUnknown {
			m.ObserveFallback(in.InputType, "unregistered")
		}
		return p
	}

	reason := "malformed"
	if !aferrors.HasCode(err, aferrors.ErrCodeConstraintsMalformed) {
		reason = "failed"
	}
	m.ObserveFallback(in.InputType, reason)
	m.RecordError(err)

	fallback, _ := UnknownStrategy{}.Prepare(in)
	fallback.Err = err
	return fallback
}
