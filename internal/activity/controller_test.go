package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/input"
	"github.com/felixgeelhaar/activityflow/internal/ld"
	"github.com/felixgeelhaar/activityflow/internal/screen"
	"github.com/felixgeelhaar/activityflow/internal/session"
)

// fakeResolver serves prebuilt nodes. Refs with a gate block until the gate
// is closed or the context is cancelled.
type fakeResolver struct {
	mu      sync.Mutex
	nodes   map[string]ld.Node
	digests map[string]string
	gates   map[string]chan struct{}
	entered chan string
}

func newFakeResolver(nodes map[string]ld.Node) *fakeResolver {
	return &fakeResolver{
		nodes:   nodes,
		digests: make(map[string]string),
		gates:   make(map[string]chan struct{}),
		entered: make(chan string, 16),
	}
}

func (f *fakeResolver) gate(ref string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[ref] = ch
	return ch
}

func (f *fakeResolver) set(ref string, n ld.Node, digest string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[ref] = n
	f.digests[ref] = digest
}

func (f *fakeResolver) Resolve(ctx context.Context, ref string) (*ld.Document, error) {
	f.mu.Lock()
	gate := f.gates[ref]
	f.mu.Unlock()

	if gate != nil {
		f.entered <- ref
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[ref]
	if !ok {
		return nil, aferrors.NewFetchError(ref, fmt.Errorf("not found"))
	}
	return &ld.Document{Ref: ref, Node: n, Nodes: []ld.Node{n}, Digest: f.digests[ref]}, nil
}

func value(v any) []any { return []any{map[string]any{"@value": v}} }
func id(ref string) []any { return []any{map[string]any{"@id": ref}} }

func order(refs ...string) []any {
	items := make([]any, 0, len(refs))
	for _, r := range refs {
		items = append(items, map[string]any{"@id": r})
	}
	return []any{map[string]any{"@list": items}}
}

func yesNo() ld.Node {
	return ld.Node{
		input.KeyItemListElement: []any{map[string]any{"@list": []any{
			map[string]any{input.KeyName: value("Yes"), input.KeyValue: value(float64(1))},
			map[string]any{input.KeyName: value("No"), input.KeyValue: value(float64(0))},
		}}},
	}
}

func radioScreen(question string) ld.Node {
	return ld.Node{
		screen.KeyQuestion:         value(question),
		screen.KeyInputType:        value("radio"),
		screen.KeyValueConstraints: id("yn"),
	}
}

// abcFixture is a three-screen activity with a preamble.
func abcFixture() *fakeResolver {
	return newFakeResolver(map[string]ld.Node{
		"act": {
			KeyPreamble:  value("Welcome"),
			KeyPrefLabel: value("Sleep"),
			KeyOrder:     order("A", "B", "C"),
		},
		"A":  radioScreen("Question A"),
		"B":  radioScreen("Question B"),
		"C":  radioScreen("Question C"),
		"yn": yesNo(),
	})
}

func loaded(t *testing.T, r *fakeResolver) *Controller {
	t.Helper()
	c := NewController(r)
	if err := c.LoadActivity(context.Background(), "act"); err != nil {
		t.Fatalf("LoadActivity failed: %v", err)
	}
	return c
}

func TestLoadActivity(t *testing.T) {
	c := loaded(t, abcFixture())

	if c.State() != StateReady {
		t.Fatalf("state = %s, want ready", c.State())
	}
	if c.Index() != 0 || !c.IsFirstScreen() || c.IsLastScreen() {
		t.Errorf("expected to start at the first screen, index = %d", c.Index())
	}
	if got := c.PreambleText(); got != "Welcome" {
		t.Errorf("preamble = %q, want Welcome", got)
	}
	if got := c.ScreenRefs(); len(got) != 3 || got[0] != "A" || got[2] != "C" {
		t.Errorf("screen refs = %v", got)
	}
	if def := c.Definition(); def == nil || def.Title != "Sleep" {
		t.Errorf("definition = %+v", def)
	}
	if got := c.ProgressFraction(); got != 0 {
		t.Errorf("progress = %v, want 0", got)
	}
}

func TestNavigationScenario(t *testing.T) {
	c := loaded(t, abcFixture())

	if err := c.GoNext(); err != nil {
		t.Fatal(err)
	}
	if c.Index() != 1 || c.Direction() != Forward {
		t.Errorf("after next: index = %d, direction = %s", c.Index(), c.Direction())
	}
	if got := c.ProgressFraction(); got != 0.5 {
		t.Errorf("progress = %v, want 0.5", got)
	}

	if err := c.GoBack(); err != nil {
		t.Fatal(err)
	}
	if c.Index() != 0 || c.Direction() != Backward {
		t.Errorf("after back: index = %d, direction = %s", c.Index(), c.Direction())
	}
	if got := c.Direction().Transition(); got != "fadeInDown" {
		t.Errorf("transition = %q, want fadeInDown", got)
	}
}

func TestNextThenBackIsIdentity(t *testing.T) {
	c := loaded(t, abcFixture())

	for start := 0; start < 2; start++ {
		for c.Index() < start {
			_ = c.GoNext()
		}
		if err := c.GoNext(); err != nil {
			t.Fatal(err)
		}
		if err := c.GoBack(); err != nil {
			t.Fatal(err)
		}
		if c.Index() != start {
			t.Errorf("next then back from %d landed on %d", start, c.Index())
		}
	}
}

func TestNavigationClamps(t *testing.T) {
	c := loaded(t, abcFixture())

	if err := c.GoBack(); err != nil {
		t.Fatal(err)
	}
	if c.Index() != 0 {
		t.Errorf("back at first screen moved to %d", c.Index())
	}

	for i := 0; i < 5; i++ {
		if err := c.GoNext(); err != nil {
			t.Fatal(err)
		}
	}
	if c.Index() != 2 || !c.IsLastScreen() {
		t.Errorf("index = %d, want clamped at 2", c.Index())
	}
	if got := c.ProgressFraction(); got != 1 {
		t.Errorf("progress = %v, want 1", got)
	}
}

func TestNotReady(t *testing.T) {
	c := NewController(abcFixture())

	checks := map[string]error{
		"next":     c.GoNext(),
		"back":     c.GoBack(),
		"response": c.SaveResponse(1),
		"reload":   c.Reload(context.Background()),
	}
	_, screenErr := c.CurrentScreenModel(context.Background())
	checks["screen"] = screenErr

	for name, err := range checks {
		if !aferrors.HasCode(err, aferrors.ErrCodeActivityNotReady) {
			t.Errorf("%s: expected ACTIVITY-001, got %v", name, err)
		}
	}
	if c.ProgressFraction() != 0 || c.IsFirstScreen() {
		t.Error("an uninitialized controller reports no progress and no position")
	}
	if c.PreambleText() != "" || c.ScreenRefs() != nil {
		t.Error("an uninitialized controller has no activity data")
	}
}

func TestResponsePersistsAcrossNavigation(t *testing.T) {
	c := loaded(t, abcFixture())
	ctx := context.Background()

	if err := c.SaveResponse(float64(0)); err != nil {
		t.Fatal(err)
	}
	if err := c.GoNext(); err != nil {
		t.Fatal(err)
	}
	if err := c.GoBack(); err != nil {
		t.Fatal(err)
	}

	s, err := c.CurrentScreenModel(ctx)
	if err != nil {
		t.Fatalf("CurrentScreenModel failed: %v", err)
	}
	if !s.HasPrior || s.Prior != float64(0) {
		t.Errorf("prior = %v (%v), want 0", s.Prior, s.HasPrior)
	}
	if s.Prompt.Kind != input.KindRadio || s.Prompt.Selected != 1 {
		t.Errorf("prompt = %+v, want radio with No selected", s.Prompt)
	}

	// Overwrite keeps one response per screen.
	if err := c.SaveResponse(float64(1)); err != nil {
		t.Fatal(err)
	}
	if got := c.Responses(); len(got) != 1 || got["A"] != float64(1) {
		t.Errorf("responses = %v", got)
	}

	cached, ok := c.CachedScreen()
	if !ok || cached.Prompt.Selected != 0 {
		t.Errorf("cached screen should reflect the latest response, got %+v", cached)
	}
}

func TestSupersededScreenIsDiscarded(t *testing.T) {
	r := abcFixture()
	c := loaded(t, r)
	ctx := context.Background()

	if err := c.GoNext(); err != nil {
		t.Fatal(err)
	}
	release := r.gate("B")

	type result struct {
		s   *Screen
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := c.CurrentScreenModel(ctx)
		done <- result{s, err}
	}()

	select {
	case <-r.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("screen build never started")
	}

	if err := c.GoNext(); err != nil {
		t.Fatal(err)
	}
	close(release)

	res := <-done
	if !errors.Is(res.err, aferrors.ErrScreenSuperseded) {
		t.Fatalf("expected ErrScreenSuperseded, got %v (screen %+v)", res.err, res.s)
	}

	s, err := c.CurrentScreenModel(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Ref != "C" || s.Index != 2 {
		t.Errorf("current screen = %s at %d, want C at 2", s.Ref, s.Index)
	}
	if prev, ok := c.PreviousScreen(); ok {
		t.Errorf("superseded build must not become the previous screen, got %s", prev.Ref)
	}
}

func TestScreenBuildFailureKeepsPosition(t *testing.T) {
	r := abcFixture()
	r.set("B", ld.Node{screen.KeyQuestion: value("No type")}, "")
	c := loaded(t, r)

	_ = c.GoNext()
	_, err := c.CurrentScreenModel(context.Background())
	if !aferrors.HasCode(err, aferrors.ErrCodeScreenMalformed) {
		t.Fatalf("expected SCREEN-001, got %v", err)
	}
	if c.Index() != 1 || c.State() != StateReady {
		t.Errorf("build failure moved the controller: index %d, state %s", c.Index(), c.State())
	}
}

func TestUnknownInputTypeDegrades(t *testing.T) {
	r := abcFixture()
	r.set("A", ld.Node{screen.KeyQuestion: value("How much?"), screen.KeyInputType: value("slider")}, "")
	c := loaded(t, r)

	s, err := c.CurrentScreenModel(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !s.Prompt.Degraded() {
		t.Fatalf("slider should degrade, got %+v", s.Prompt)
	}
	if want := input.UnknownDiagnostic("slider"); s.Prompt.Diagnostic != want {
		t.Errorf("diagnostic = %q, want %q", s.Prompt.Diagnostic, want)
	}
	if err := c.GoNext(); err != nil || c.Index() != 1 {
		t.Errorf("navigation should continue past an unknown screen: %v", err)
	}
}

func TestSingleScreenProgress(t *testing.T) {
	r := newFakeResolver(map[string]ld.Node{
		"act": {KeyOrder: order("only")},
	})
	c := loaded(t, r)

	if got := c.ProgressFraction(); got != 1.0 {
		t.Errorf("progress = %v, want 1", got)
	}
	if !c.IsFirstScreen() || !c.IsLastScreen() {
		t.Error("the only screen is both first and last")
	}
	if c.PreambleText() != "" {
		t.Errorf("missing preamble should read as empty, got %q", c.PreambleText())
	}
}

func TestLoadFailures(t *testing.T) {
	tests := []struct {
		name string
		node ld.Node
		code aferrors.ErrorCode
	}{
		{"missing document", nil, aferrors.ErrCodeResolveFetch},
		{"no order", ld.Node{KeyPreamble: value("Hi")}, aferrors.ErrCodeActivityMalformed},
		{"empty order", ld.Node{KeyOrder: order()}, aferrors.ErrCodeActivityMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeResolver(map[string]ld.Node{})
			if tt.node != nil {
				r.set("act", tt.node, "")
			}
			c := NewController(r)

			err := c.LoadActivity(context.Background(), "act")
			if !aferrors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if c.State() != StateErrored || c.Err() == nil {
				t.Errorf("state = %s, err = %v", c.State(), c.Err())
			}
			if c.Ref() != "act" {
				t.Errorf("failed load should remember the ref, got %q", c.Ref())
			}
		})
	}
}

func TestReloadRecovers(t *testing.T) {
	r := newFakeResolver(map[string]ld.Node{"A": radioScreen("A"), "yn": yesNo()})
	c := NewController(r)
	ctx := context.Background()

	if err := c.LoadActivity(ctx, "act"); err == nil {
		t.Fatal("expected load to fail")
	}
	r.set("act", ld.Node{KeyOrder: order("A")}, "")

	if err := c.Reload(ctx); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if c.State() != StateReady || c.Err() != nil {
		t.Errorf("state = %s, err = %v", c.State(), c.Err())
	}
}

func TestSupersededLoad(t *testing.T) {
	r := abcFixture()
	r.set("other", ld.Node{KeyOrder: order("C")}, "")
	release := r.gate("act")
	c := NewController(r)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.LoadActivity(ctx, "act") }()
	<-r.entered

	if err := c.LoadActivity(ctx, "other"); err != nil {
		t.Fatal(err)
	}
	close(release)

	if err := <-done; !errors.Is(err, aferrors.ErrLoadSuperseded) {
		t.Fatalf("expected ErrLoadSuperseded, got %v", err)
	}
	if c.Ref() != "other" || len(c.ScreenRefs()) != 1 {
		t.Errorf("the newer load should win, got %s %v", c.Ref(), c.ScreenRefs())
	}
}

func TestSnapshotAndRestore(t *testing.T) {
	r := abcFixture()
	r.set("act", ld.Node{KeyOrder: order("A", "B", "C")}, "d1")
	c := loaded(t, r)

	_ = c.SaveResponse(float64(1))
	_ = c.GoNext()
	_ = c.SaveResponse(float64(0))
	_ = c.GoNext()

	snap := c.Snapshot()
	if snap.Index != 2 || snap.Digest != "d1" || snap.Answered() != 2 || snap.Complete() {
		t.Fatalf("snapshot = %+v", snap)
	}

	sess := session.Session{
		ID:          "s1",
		ActivityRef: "act",
		Digest:      snap.Digest,
		Index:       snap.Index,
		Responses:   snap.Responses,
	}

	restored := NewController(r)
	if err := restored.Restore(context.Background(), sess); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Index() != 2 || len(restored.Responses()) != 2 {
		t.Errorf("restored index %d responses %v", restored.Index(), restored.Responses())
	}
}

func TestRestoreAfterDrift(t *testing.T) {
	r := abcFixture()
	r.set("act", ld.Node{KeyOrder: order("A", "C")}, "d2")
	c := NewController(r)

	sess := session.Session{
		ID:          "s1",
		ActivityRef: "act",
		Digest:      "d1",
		Index:       2,
		Responses:   map[string]any{"A": float64(1), "B": float64(0)},
	}
	if err := c.Restore(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	if c.Index() != 1 {
		t.Errorf("index = %d, want clamped to 1", c.Index())
	}
	if _, ok := c.Response("B"); ok {
		t.Error("response for a removed screen should be dropped")
	}
	if v, ok := c.Response("A"); !ok || v != float64(1) {
		t.Errorf("response for A = %v, %v", v, ok)
	}
}

func TestReset(t *testing.T) {
	c := loaded(t, abcFixture())
	_ = c.SaveResponse(float64(1))
	_ = c.GoNext()

	c.Reset()

	if c.State() != StateUninitialized || c.Index() != 0 || len(c.Responses()) != 0 || c.Ref() != "" {
		t.Errorf("reset left state behind: %+v", c.Snapshot())
	}
	if _, ok := c.CachedScreen(); ok {
		t.Error("reset should drop the cached screen")
	}
}

func TestDuplicateScreenRefsShareResponse(t *testing.T) {
	r := abcFixture()
	r.set("act", ld.Node{KeyOrder: order("A", "B", "A")}, "")
	c := loaded(t, r)

	_ = c.SaveResponse(float64(1))
	_ = c.GoNext()
	_ = c.GoNext()

	if v, ok := c.Response("A"); !ok || v != float64(1) {
		t.Errorf("repeated screen should see the earlier response, got %v", v)
	}
	snap := c.Snapshot()
	if snap.Answered() != 1 {
		t.Errorf("answered = %d, want 1", snap.Answered())
	}
}

func TestSnapshotApplyTo(t *testing.T) {
	c := loaded(t, abcFixture())
	sess := session.New("act")

	_ = c.SaveResponse(float64(1))
	c.Snapshot().ApplyTo(sess)
	if sess.Index != 0 || sess.Responses["A"] != float64(1) || sess.Status != session.StatusInProgress {
		t.Errorf("partial session = %+v", sess)
	}

	for i := 0; i < 2; i++ {
		_ = c.GoNext()
		_ = c.SaveResponse(float64(0))
	}
	c.Snapshot().ApplyTo(sess)
	if sess.Index != 2 || sess.Status != session.StatusCompleted {
		t.Errorf("complete session = %+v", sess)
	}
}
