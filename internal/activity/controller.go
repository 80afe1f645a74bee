package activity

import (
	"context"
	"maps"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/input"
	"github.com/felixgeelhaar/activityflow/internal/ld"
	"github.com/felixgeelhaar/activityflow/internal/log"
	"github.com/felixgeelhaar/activityflow/internal/metrics"
	"github.com/felixgeelhaar/activityflow/internal/screen"
	"github.com/felixgeelhaar/activityflow/internal/session"
	"github.com/felixgeelhaar/activityflow/internal/telemetry"
)

// ScreenBuilder builds the model of one screen.
type ScreenBuilder interface {
	Build(ctx context.Context, ref string) (*screen.Model, error)
}

// Controller owns the navigation state and responses of one activity.
//
// All methods are safe for concurrent use. Document resolution runs outside
// the lock; results that arrive after the state they were started for has
// moved on are discarded.
type Controller struct {
	resolver ld.DocumentResolver
	builder  ScreenBuilder
	registry *input.Registry
	logger   *log.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	state     State
	err       error
	requested string
	def       *Definition
	index     int
	direction Direction
	responses map[string]any

	// loadGen changes on every load and reset; screenGen on every index
	// change as well. In-flight work compares against them when it returns.
	loadGen   uint64
	screenGen uint64
	builds    map[uint64]context.CancelFunc
	nextBuild uint64

	current  *Screen
	previous *Screen
}

// Option configures a Controller.
type Option func(*Controller)

// WithBuilder replaces the screen builder.
func WithBuilder(b ScreenBuilder) Option {
	return func(c *Controller) { c.builder = b }
}

// WithRegistry replaces the input registry.
func WithRegistry(r *input.Registry) Option {
	return func(c *Controller) { c.registry = r }
}

// WithLogger sets the controller logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l.WithComponent("activity") }
}

// WithMetrics records controller events on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController returns an uninitialized controller resolving documents
// through resolver.
func NewController(resolver ld.DocumentResolver, opts ...Option) *Controller {
	c := &Controller{
		resolver:  resolver,
		logger:    log.Discard(),
		responses: make(map[string]any),
		builds:    make(map[uint64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.builder == nil {
		c.builder = screen.NewBuilder(resolver, screen.WithLogger(c.logger), screen.WithMetrics(c.metrics))
	}
	if c.registry == nil {
		c.registry = input.DefaultRegistry()
		c.registry.SetMetrics(c.metrics)
	}
	return c
}

func malformedActivity(ref string, orderPresent bool) error {
	if orderPresent {
		return aferrors.NewMalformedActivityError(ref, "order list is empty")
	}
	return aferrors.NewMalformedActivityError(ref, "order list is missing")
}

// invalidateScreensLocked cancels in-flight screen builds and makes their
// results stale. c.mu must be held.
func (c *Controller) invalidateScreensLocked() {
	c.screenGen++
	for id, cancel := range c.builds {
		cancel()
		delete(c.builds, id)
	}
}

// LoadActivity resolves the activity at ref and, on success, starts it at
// the first screen with no responses. On failure the controller is Errored
// and the cause is returned. A load overtaken by a newer load or a reset
// returns ErrLoadSuperseded and changes nothing.
func (c *Controller) LoadActivity(ctx context.Context, ref string) (err error) {
	ctx, span := telemetry.StartActivitySpan(ctx, "load", ref)
	defer func() { telemetry.End(span, err) }()

	c.mu.Lock()
	c.loadGen++
	gen := c.loadGen
	c.invalidateScreensLocked()
	c.state = StateLoading
	c.err = nil
	c.requested = ref
	c.def = nil
	c.current, c.previous = nil, nil
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "loading activity", "ref", ref)

	def, err := c.resolveDefinition(ctx, ref)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.loadGen {
		c.logger.DebugContext(ctx, "discarding superseded activity load", "ref", ref)
		return aferrors.ErrLoadSuperseded
	}

	c.metrics.ObserveActivityLoad(err)
	if err != nil {
		c.state = StateErrored
		c.err = err
		c.logger.WithError(err).WarnContext(ctx, "activity load failed", "ref", ref)
		return err
	}

	c.def = def
	c.index = 0
	c.direction = Forward
	c.responses = make(map[string]any)
	c.state = StateReady

	span.SetAttributes(attribute.Int("activity.screens", len(def.ScreenRefs)))
	c.logger.InfoContext(ctx, "activity ready", "ref", ref, "screens", len(def.ScreenRefs))
	return nil
}

func (c *Controller) resolveDefinition(ctx context.Context, ref string) (*Definition, error) {
	doc, err := c.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return ParseDefinition(doc)
}

// Reload retries the most recently requested activity.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	ref, state := c.requested, c.state
	c.mu.Unlock()

	if ref == "" {
		return aferrors.NewNotReadyError("reload", state.String())
	}
	return c.LoadActivity(ctx, ref)
}

// GoNext moves to the next screen. At the last screen it does nothing.
func (c *Controller) GoNext() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady {
		return aferrors.NewNotReadyError("go next", c.state.String())
	}
	if c.index >= len(c.def.ScreenRefs)-1 {
		c.metrics.ObserveNavigation(Forward.String(), false)
		return nil
	}

	c.index++
	c.direction = Forward
	c.invalidateScreensLocked()
	c.metrics.ObserveNavigation(Forward.String(), true)
	return nil
}

// GoBack moves to the previous screen. At the first screen it does nothing.
func (c *Controller) GoBack() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady {
		return aferrors.NewNotReadyError("go back", c.state.String())
	}
	if c.index <= 0 {
		c.metrics.ObserveNavigation(Backward.String(), false)
		return nil
	}

	c.index--
	c.direction = Backward
	c.invalidateScreensLocked()
	c.metrics.ObserveNavigation(Backward.String(), true)
	return nil
}

// SaveResponse records v for the current screen, replacing any earlier
// response. The index does not move.
func (c *Controller) SaveResponse(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady {
		return aferrors.NewNotReadyError("save response", c.state.String())
	}

	ref := c.def.ScreenRefs[c.index]
	_, overwrite := c.responses[ref]
	c.responses[ref] = v
	c.metrics.ObserveResponse(overwrite)
	return nil
}

// CurrentScreenModel builds the screen at the current index and prepares
// its prompt. If the index changes (or another activity loads) before the
// build finishes, the build is cancelled and ErrScreenSuperseded returned.
// Build failures are returned as-is and never move the index.
func (c *Controller) CurrentScreenModel(ctx context.Context) (*Screen, error) {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return nil, aferrors.NewNotReadyError("load screen", state.String())
	}

	gen, loadGen := c.screenGen, c.loadGen
	index, direction := c.index, c.direction
	ref := c.def.ScreenRefs[index]

	buildCtx, cancel := context.WithCancel(ctx)
	c.nextBuild++
	buildID := c.nextBuild
	c.builds[buildID] = cancel
	c.mu.Unlock()

	model, err := c.builder.Build(buildCtx, ref)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.builds, buildID)
	cancel()

	if gen != c.screenGen || loadGen != c.loadGen {
		c.metrics.ObserveSuperseded()
		c.logger.DebugContext(ctx, "discarding superseded screen", "screen", ref, "index", index)
		return nil, aferrors.ErrScreenSuperseded
	}
	if err != nil {
		c.logger.WithError(err).WarnContext(ctx, "screen build failed", "screen", ref, "index", index)
		return nil, err
	}

	c.current, c.previous = c.screenLocked(index, ref, model, direction), c.current
	return c.current, nil
}

// screenLocked pairs a model with a prompt prepared from the latest
// response. c.mu must be held.
func (c *Controller) screenLocked(index int, ref string, model *screen.Model, direction Direction) *Screen {
	prior, hasPrior := c.responses[ref]
	prompt := c.registry.Prompt(input.Input{
		Question:    model.Question,
		InputType:   model.InputType,
		Constraints: model.Constraints,
		Prior:       prior,
		HasPrior:    hasPrior,
	})
	if prompt.Err != nil {
		c.logger.WithError(prompt.Err).Warn("input degraded to fallback", "screen", ref, "input_type", model.InputType)
	}
	return &Screen{
		Index:     index,
		Ref:       ref,
		Model:     model,
		Prompt:    prompt,
		Prior:     prior,
		HasPrior:  hasPrior,
		Direction: direction,
	}
}

// CachedScreen returns the last built screen when it is still the current
// one, with its prompt refreshed against the latest response.
func (c *Controller) CachedScreen() (*Screen, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady || c.current == nil || c.current.Index != c.index {
		return nil, false
	}
	s := c.screenLocked(c.current.Index, c.current.Ref, c.current.Model, c.direction)
	c.current = s
	return s, true
}

// PreviousScreen returns the screen built before the current one, if any.
func (c *Controller) PreviousScreen() (*Screen, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previous, c.previous != nil
}

// Snapshot copies the navigation state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Ref:       c.requested,
		State:     c.state,
		Index:     c.index,
		Responses: maps.Clone(c.responses),
	}
	if c.def != nil {
		snap.Digest = c.def.Digest
		snap.ScreenRefs = slices.Clone(c.def.ScreenRefs)
	}
	return snap
}

// Restore loads the session's activity and reapplies its position and
// responses. When the activity document changed since the session was saved,
// the index is clamped to the new screen count and responses for screens that
// no longer exist are dropped.
func (c *Controller) Restore(ctx context.Context, sess session.Session) (err error) {
	ctx, span := telemetry.StartActivitySpan(ctx, "restore", sess.ActivityRef)
	defer func() { telemetry.End(span, err) }()

	if err := c.LoadActivity(ctx, sess.ActivityRef); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady || c.requested != sess.ActivityRef {
		return aferrors.ErrLoadSuperseded
	}

	known := uniqueRefs(c.def.ScreenRefs)
	responses := make(map[string]any, len(sess.Responses))
	var dropped []string
	for ref, v := range sess.Responses {
		if _, ok := known[ref]; ok {
			responses[ref] = v
		} else {
			dropped = append(dropped, ref)
		}
	}

	index := min(max(sess.Index, 0), len(c.def.ScreenRefs)-1)

	if sess.Digest != "" && sess.Digest != c.def.Digest {
		slices.Sort(dropped)
		c.logger.WarnContext(ctx, "activity changed since session was saved",
			"session", sess.ID,
			"ref", sess.ActivityRef,
			"saved_index", sess.Index,
			"index", index,
			"dropped_responses", dropped,
		)
	}

	c.index = index
	c.direction = Forward
	c.responses = responses
	c.invalidateScreensLocked()

	span.SetAttributes(attribute.Int("activity.index", index), attribute.Int("activity.dropped", len(dropped)))
	return nil
}

// Reset discards the activity and returns to Uninitialized. In-flight loads
// and screen builds are discarded when they return.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loadGen++
	c.invalidateScreensLocked()
	c.state = StateUninitialized
	c.err = nil
	c.requested = ""
	c.def = nil
	c.index = 0
	c.direction = Forward
	c.responses = make(map[string]any)
	c.current, c.previous = nil, nil
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the cause of the Errored state, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Ref returns the most recently requested activity reference.
func (c *Controller) Ref() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}

// Definition returns the loaded activity, or nil.
func (c *Controller) Definition() *Definition {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.def == nil {
		return nil
	}
	def := *c.def
	def.ScreenRefs = slices.Clone(c.def.ScreenRefs)
	return &def
}

// PreambleText returns the activity preamble, or "" when none was given.
func (c *Controller) PreambleText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.def == nil {
		return ""
	}
	return c.def.Preamble
}

// ScreenRefs returns a copy of the ordered screen references.
func (c *Controller) ScreenRefs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.def == nil {
		return nil
	}
	return slices.Clone(c.def.ScreenRefs)
}

// Index returns the current screen index.
func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Direction returns the last navigation direction.
func (c *Controller) Direction() Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.direction
}

// Responses returns a copy of all saved responses keyed by screen reference.
func (c *Controller) Responses() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.responses)
}

// Response returns the saved response for ref.
func (c *Controller) Response(ref string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.responses[ref]
	return v, ok
}

// IsFirstScreen reports whether a loaded activity is at its first screen.
func (c *Controller) IsFirstScreen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateReady && c.index == 0
}

// IsLastScreen reports whether a loaded activity is at its last screen.
func (c *Controller) IsLastScreen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateReady && c.index == len(c.def.ScreenRefs)-1
}

// ProgressFraction is index/(n-1). A single-screen activity reports 1 and a
// controller that is not Ready reports 0.
func (c *Controller) ProgressFraction() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady {
		return 0
	}
	n := len(c.def.ScreenRefs)
	if n == 1 {
		return 1.0
	}
	return float64(c.index) / float64(n-1)
}
