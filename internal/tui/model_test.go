package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/activityflow/internal/activity"
	"github.com/felixgeelhaar/activityflow/internal/applet"
	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/input"
	"github.com/felixgeelhaar/activityflow/internal/ld"
	"github.com/felixgeelhaar/activityflow/internal/screen"
	"github.com/felixgeelhaar/activityflow/internal/session"
)

type stubResolver struct {
	mu    sync.Mutex
	nodes map[string]ld.Node
}

func (s *stubResolver) set(ref string, n ld.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[ref] = n
}

func (s *stubResolver) Resolve(_ context.Context, ref string) (*ld.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[ref]
	if !ok {
		return nil, aferrors.NewFetchError(ref, fmt.Errorf("not found"))
	}
	return &ld.Document{Ref: ref, Node: n, Nodes: []ld.Node{n}}, nil
}

func value(v any) []any { return []any{map[string]any{"@value": v}} }

func activityNode() ld.Node {
	return ld.Node{
		activity.KeyPreamble:  value("Welcome"),
		activity.KeyPrefLabel: value("Sleep"),
		activity.KeyOrder: []any{map[string]any{"@list": []any{
			map[string]any{"@id": "A"},
			map[string]any{"@id": "B"},
		}}},
	}
}

func newStubResolver() *stubResolver {
	option := func(label string, v float64) map[string]any {
		return map[string]any{input.KeyName: value(label), input.KeyValue: value(v)}
	}
	radio := func(q string) ld.Node {
		return ld.Node{
			screen.KeyQuestion:         value(q),
			screen.KeyInputType:        value("radio"),
			screen.KeyValueConstraints: []any{map[string]any{"@id": "yn"}},
		}
	}
	return &stubResolver{nodes: map[string]ld.Node{
		"act": activityNode(),
		"A":   radio("Slept well?"),
		"B":   radio("Rested?"),
		"yn":  {input.KeyItemListElement: []any{map[string]any{"@list": []any{option("Yes", 1), option("No", 0)}}}},
	}}
}

func newTestModel(t *testing.T, r *stubResolver, opts Options) (Model, session.Store) {
	t.Helper()
	store := session.NewFileStore(t.TempDir())
	opts.Controller = activity.NewController(r)
	opts.Resolver = r
	opts.Store = store
	m := NewModel(context.Background(), opts)
	return update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24}), store
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func press(t *testing.T, m Model, k tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(k)
	return next.(Model), cmd
}

var (
	keyNext  = tea.KeyMsg{Type: tea.KeyCtrlN}
	keyBack  = tea.KeyMsg{Type: tea.KeyCtrlB}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
	keyRetry = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}}
)

// opened returns a model showing the first screen of "act".
func opened(t *testing.T, r *stubResolver, opts Options) (Model, session.Store) {
	t.Helper()
	opts.Ref = "act"
	m, store := newTestModel(t, r, opts)
	m = update(t, m, m.openActivity("act", nil)())
	if m.mode != modeActivity {
		t.Fatalf("mode = %v after load, want modeActivity (err %v)", m.mode, m.err)
	}
	return update(t, m, m.buildScreen(m.gen)()), store
}

func TestNewModelModes(t *testing.T) {
	r := newStubResolver()

	tests := []struct {
		name string
		opts Options
		want mode
	}{
		{"ref", Options{Ref: "act"}, modeLoading},
		{"session", Options{Session: session.New("act")}, modeLoading},
		{"catalog", Options{Catalog: &applet.Catalog{Name: "Study"}}, modeCatalog},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestModel(t, r, tt.opts)
			if m.mode != tt.want {
				t.Errorf("mode = %v, want %v", m.mode, tt.want)
			}
			if m.Init() == nil {
				t.Error("Init() should start a load")
			}
		})
	}
}

func TestOpenActivityShowsFirstScreen(t *testing.T) {
	m, _ := opened(t, newStubResolver(), Options{})

	if m.screen == nil || m.screen.Ref != "A" {
		t.Fatalf("screen = %+v, want A", m.screen)
	}
	if m.session == nil || m.session.ActivityRef != "act" {
		t.Fatalf("session = %+v, want one for act", m.session)
	}

	view := m.View()
	for _, want := range []string{"Sleep", "Welcome", "Slept well?", "Yes", "No", "1/2"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestStaleScreenIsIgnored(t *testing.T) {
	m, _ := opened(t, newStubResolver(), Options{})

	stale := screenLoadedMsg{gen: m.gen - 1, screen: &activity.Screen{Ref: "stale"}}
	m = update(t, m, stale)
	if m.screen.Ref != "A" {
		t.Errorf("screen = %s after stale message, want A", m.screen.Ref)
	}

	m = update(t, m, screenLoadedMsg{gen: m.gen, err: aferrors.ErrScreenSuperseded})
	if m.screenErr != nil {
		t.Errorf("superseded build should not surface, got %v", m.screenErr)
	}
}

func TestNavigationKeys(t *testing.T) {
	m, _ := opened(t, newStubResolver(), Options{})
	gen := m.gen

	m, cmd := press(t, m, keyNext)
	if cmd == nil {
		t.Fatal("ctrl+n should issue a screen load")
	}
	if m.ctrl.Index() != 1 || m.gen != gen+1 {
		t.Fatalf("index = %d gen = %d, want 1 and %d", m.ctrl.Index(), m.gen, gen+1)
	}
	if m.screen != nil || !strings.Contains(m.View(), "Loading screen") {
		t.Errorf("screen should be loading after navigation:\n%s", m.View())
	}

	m = update(t, m, m.buildScreen(m.gen)())
	if !strings.Contains(m.View(), "Rested?") {
		t.Errorf("View() missing second question:\n%s", m.View())
	}

	m, cmd = press(t, m, keyNext)
	if cmd != nil || m.ctrl.Index() != 1 {
		t.Errorf("ctrl+n on the last screen should do nothing, index %d", m.ctrl.Index())
	}

	m, _ = press(t, m, keyBack)
	if m.ctrl.Index() != 0 {
		t.Errorf("index = %d after ctrl+b, want 0", m.ctrl.Index())
	}
	if m.ctrl.Direction() != activity.Backward {
		t.Errorf("direction = %v, want backward", m.ctrl.Direction())
	}
}

func TestAnswerSavesSession(t *testing.T) {
	m, store := opened(t, newStubResolver(), Options{})

	m, _ = press(t, m, keyDown)
	if m.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", m.cursor)
	}
	m, cmd := press(t, m, keyEnter)
	if cmd == nil {
		t.Fatal("answering should save the session")
	}

	if got, ok := m.ctrl.Response("A"); !ok || got != float64(0) {
		t.Errorf("Response(A) = %v, %v; want 0", got, ok)
	}
	if m.screen.Prompt.Selected != 1 {
		t.Errorf("Selected = %d, want 1", m.screen.Prompt.Selected)
	}

	saved, ok := cmd().(sessionSavedMsg)
	if !ok || saved.err != nil {
		t.Fatalf("save returned %+v", saved)
	}
	stored, err := store.Load(context.Background(), m.session.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if stored.Responses["A"] != float64(0) {
		t.Errorf("stored response = %v, want 0", stored.Responses["A"])
	}
}

func TestResumeSession(t *testing.T) {
	sess := session.New("act")
	sess.Index = 1
	sess.Responses["B"] = float64(1)

	m, _ := newTestModel(t, newStubResolver(), Options{Session: sess})
	m = update(t, m, m.openActivity(m.ref, m.session)())
	m = update(t, m, m.buildScreen(m.gen)())

	if m.session.ID != sess.ID {
		t.Errorf("session ID = %s, want the resumed %s", m.session.ID, sess.ID)
	}
	if m.screen == nil || m.screen.Ref != "B" {
		t.Fatalf("screen = %+v, want B", m.screen)
	}
	if m.cursor != 0 || m.screen.Prompt.Selected != 0 {
		t.Errorf("cursor = %d selected = %d, want the prior answer preselected", m.cursor, m.screen.Prompt.Selected)
	}
}

func TestErroredLoadRetries(t *testing.T) {
	r := newStubResolver()
	m, _ := newTestModel(t, r, Options{Ref: "later"})

	m = update(t, m, m.openActivity("later", nil)())
	if m.mode != modeErrored {
		t.Fatalf("mode = %v, want modeErrored", m.mode)
	}
	if !strings.Contains(m.View(), "RESOLVE-001") {
		t.Errorf("errored view should show the error:\n%s", m.View())
	}

	m, cmd := press(t, m, keyRetry)
	if cmd == nil || m.mode != modeLoading {
		t.Fatalf("r should reload, mode %v", m.mode)
	}

	r.set("later", activityNode())
	m = update(t, m, m.openActivity(m.ref, m.session)())
	if m.mode != modeActivity {
		t.Errorf("mode = %v after retry, want modeActivity", m.mode)
	}
}

func TestScreenFailureRetries(t *testing.T) {
	r := newStubResolver()
	r.set("A", ld.Node{screen.KeyQuestion: value("no type")})
	m, _ := opened(t, r, Options{})

	if m.screenErr == nil || !strings.Contains(m.View(), "SCREEN-001") {
		t.Fatalf("screen error should be shown:\n%s", m.View())
	}

	m, cmd := press(t, m, keyRetry)
	if cmd == nil || m.screenErr != nil {
		t.Fatal("r should rebuild the screen")
	}
}

func TestCloseReturnsToCatalog(t *testing.T) {
	catalog := &applet.Catalog{Name: "Study", Activities: []string{"act"}}
	m, _ := opened(t, newStubResolver(), Options{Catalog: catalog})

	m, _ = press(t, m, keyEsc)
	if m.mode != modeCatalog || m.quitting {
		t.Errorf("esc should return to the catalog, mode %v quitting %v", m.mode, m.quitting)
	}
	if m.ctrl.State() != activity.StateUninitialized {
		t.Errorf("controller state = %v after close, want uninitialized", m.ctrl.State())
	}
}

func TestCloseWithoutCatalogQuits(t *testing.T) {
	m, _ := opened(t, newStubResolver(), Options{})

	m, cmd := press(t, m, keyEsc)
	if !m.quitting || cmd == nil {
		t.Error("esc without a catalog should quit")
	}
}

func TestCatalogOpensSelectedActivity(t *testing.T) {
	catalog := &applet.Catalog{Name: "Study", Activities: []string{"act", "missing"}}
	m, _ := newTestModel(t, newStubResolver(), Options{Catalog: catalog})

	m = update(t, m, m.summarize()())
	if got := len(m.list.Items()); got != 2 {
		t.Fatalf("list has %d items, want 2", got)
	}
	if !strings.Contains(m.View(), "Sleep") {
		t.Errorf("catalog view should list titles:\n%s", m.View())
	}

	m, cmd := press(t, m, keyEnter)
	if cmd == nil || m.mode != modeLoading || m.ref != "act" {
		t.Errorf("enter should open act, mode %v ref %q", m.mode, m.ref)
	}
}

func TestQuitKey(t *testing.T) {
	m, _ := opened(t, newStubResolver(), Options{})

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if !m.quitting || cmd == nil {
		t.Error("ctrl+c should quit")
	}
	if m.View() != "" {
		t.Errorf("View() after quit = %q, want empty", m.View())
	}
}
