package health

import (
	"context"
)

// Pinger is the part of a session store the checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker pings the session store.
type StoreChecker struct {
	store   Pinger
	backend string
}

// NewStoreChecker creates a checker for store. backend only labels the result.
func NewStoreChecker(store Pinger, backend string) *StoreChecker {
	return &StoreChecker{store: store, backend: backend}
}

func (c *StoreChecker) Name() string {
	return "session-store"
}

// Check is unhealthy when the store cannot be reached.
func (c *StoreChecker) Check(ctx context.Context) *Result {
	if c.store == nil {
		return Unhealthy("no session store configured").
			WithDetail("suggestion", "Set store.dsn in the configuration")
	}

	if err := c.store.Ping(ctx); err != nil {
		return Unhealthy("session store is unreachable").
			WithDetail("backend", c.backend).
			WithDetail("error", err.Error())
	}

	return Healthy("session store is reachable").
		WithDetail("backend", c.backend)
}
