package server

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/felixgeelhaar/activityflow/internal/activity"
	"github.com/felixgeelhaar/activityflow/internal/log"
	"github.com/felixgeelhaar/activityflow/internal/metrics"
	"github.com/felixgeelhaar/activityflow/internal/session"
)

// DefaultLiveSessions bounds how many controllers a Hub keeps in memory.
const DefaultLiveSessions = 1024

// ControllerFactory returns a fresh, uninitialized controller.
type ControllerFactory func() *activity.Controller

// Live is one session with its controller. Callers hold mu while using it so
// that the persisted session matches the controller.
type Live struct {
	mu      sync.Mutex
	ctrl    *activity.Controller
	session *session.Session
}

// Hub keeps a controller per live session and persists every change.
// Sessions evicted from memory are restored from the store on next access.
type Hub struct {
	mu      sync.RWMutex
	live    *lru.Cache[string, *Live]
	factory ControllerFactory
	store   session.Store
	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewHub creates a hub holding at most size live sessions.
func NewHub(factory ControllerFactory, store session.Store, size int, logger *log.Logger, m *metrics.Metrics) (*Hub, error) {
	if size <= 0 {
		size = DefaultLiveSessions
	}
	if logger == nil {
		logger = log.Discard()
	}
	cache, err := lru.New[string, *Live](size)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &Hub{
		live:    cache,
		factory: factory,
		store:   store,
		logger:  logger.WithComponent("hub"),
		metrics: m,
	}, nil
}

// Create loads ref into a new session and persists it. A failed load
// creates nothing.
func (h *Hub) Create(ctx context.Context, ref string) (*Live, error) {
	ctrl := h.factory()
	if err := ctrl.LoadActivity(ctx, ref); err != nil {
		return nil, err
	}

	l := &Live{ctrl: ctrl, session: session.New(ref)}
	ctrl.Snapshot().ApplyTo(l.session)
	if err := h.store.Save(ctx, l.session); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.live.Add(l.session.ID, l)
	h.mu.Unlock()

	h.metrics.ObserveSession("created")
	h.logger.InfoContext(ctx, "session created", "session", l.session.ID, "ref", ref)
	return l, nil
}

// Get returns the live session for id, restoring it from the store when it
// is not in memory. A restore whose activity fails to load still returns the
// session, with its controller Errored so the client can reload.
//
// The restore runs outside the hub lock. The restored Live is published
// before its activity loads with its own mu held, so callers of the same id
// wait on mu while other sessions stay available.
func (h *Hub) Get(ctx context.Context, id string) (*Live, error) {
	if err := session.ValidateID(id); err != nil {
		return nil, err
	}

	h.mu.RLock()
	l, ok := h.live.Get(id)
	h.mu.RUnlock()
	if ok {
		return l, nil
	}

	sess, err := h.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if l, ok := h.live.Get(id); ok {
		h.mu.Unlock()
		return l, nil
	}
	l = &Live{ctrl: h.factory(), session: sess}
	l.mu.Lock()
	h.live.Add(id, l)
	h.mu.Unlock()
	defer l.mu.Unlock()

	// Other callers wait on this restore, so it must not end with this
	// caller's request.
	if err := l.ctrl.Restore(context.WithoutCancel(ctx), *sess); err != nil {
		h.logger.WithError(err).WarnContext(ctx, "session restored without its activity", "session", id)
	}
	h.metrics.ObserveSession("restored")
	return l, nil
}

// Delete drops the session from memory and the store.
func (h *Hub) Delete(ctx context.Context, id string) error {
	if err := session.ValidateID(id); err != nil {
		return err
	}

	h.mu.Lock()
	l, live := h.live.Peek(id)
	h.live.Remove(id)
	h.mu.Unlock()

	if live {
		l.mu.Lock()
		l.ctrl.Reset()
		l.mu.Unlock()
	} else if _, err := h.store.Load(ctx, id); err != nil {
		return err
	}

	if err := h.store.Delete(ctx, id); err != nil {
		return err
	}
	h.metrics.ObserveSession("deleted")
	return nil
}

// Len returns the number of sessions in memory.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live.Len()
}

// persist writes the controller state into the session. l.mu must be held.
func (h *Hub) persist(ctx context.Context, l *Live) error {
	if l.ctrl.State() != activity.StateReady {
		return nil
	}
	wasComplete := l.session.Status == session.StatusCompleted
	l.ctrl.Snapshot().ApplyTo(l.session)
	if err := h.store.Save(ctx, l.session); err != nil {
		return err
	}
	if !wasComplete && l.session.Status == session.StatusCompleted {
		h.metrics.ObserveSession("completed")
	}
	return nil
}

// Do runs fn on the live session id under its lock and persists the result.
func (h *Hub) Do(ctx context.Context, id string, fn func(ctrl *activity.Controller) error) (*Live, error) {
	l, err := h.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := fn(l.ctrl); err != nil {
		return l, err
	}
	return l, h.persist(ctx, l)
}

// Reload loads the session's activity again and reapplies the last saved
// position and responses.
func (h *Hub) Reload(ctx context.Context, id string) (*Live, error) {
	l, err := h.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ctrl.Restore(ctx, *l.session); err != nil {
		return l, err
	}
	h.logger.InfoContext(ctx, "session reloaded", "session", id)
	return l, h.persist(ctx, l)
}
