package screen

import (
	"context"
	"fmt"
	"testing"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/ld"
)

// fakeResolver serves prebuilt nodes and counts resolutions.
type fakeResolver struct {
	nodes map[string]ld.Node
	calls map[string]int
}

func newFakeResolver(nodes map[string]ld.Node) *fakeResolver {
	return &fakeResolver{nodes: nodes, calls: make(map[string]int)}
}

func (f *fakeResolver) Resolve(_ context.Context, ref string) (*ld.Document, error) {
	f.calls[ref]++
	n, ok := f.nodes[ref]
	if !ok {
		return nil, aferrors.NewFetchError(ref, fmt.Errorf("not found"))
	}
	return &ld.Document{Ref: ref, Node: n, Nodes: []ld.Node{n}}, nil
}

func value(v any) []any { return []any{map[string]any{"@value": v}} }
func id(ref string) []any { return []any{map[string]any{"@id": ref}} }

func options() ld.Node {
	return ld.Node{
		"http://schema.org/itemListElement": []any{map[string]any{"@list": []any{
			map[string]any{"http://schema.org/name": value("Yes"), "http://schema.org/value": value(float64(1))},
			map[string]any{"http://schema.org/name": value("No"), "http://schema.org/value": value(float64(0))},
		}}},
	}
}

func TestBuild(t *testing.T) {
	r := newFakeResolver(map[string]ld.Node{
		"q1": {KeyQuestion: value("Sleeping well?"), KeyInputType: value("radio"), KeyValueConstraints: id("yn")},
		"yn": options(),
	})
	b := NewBuilder(r)

	m, err := b.Build(context.Background(), "q1")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if m.Ref != "q1" || m.Question != "Sleeping well?" || m.InputType != "radio" {
		t.Errorf("unexpected model: %+v", m)
	}
	if m.ConstraintsRef != "yn" {
		t.Errorf("ConstraintsRef = %q, want yn", m.ConstraintsRef)
	}
	if !m.HasConstraints() || !m.Constraints.Has("http://schema.org/itemListElement") {
		t.Error("constraints should carry the option list")
	}
}

func TestBuildIsNotMemoized(t *testing.T) {
	r := newFakeResolver(map[string]ld.Node{
		"q1": {KeyQuestion: value("Q"), KeyInputType: value("radio"), KeyValueConstraints: id("yn")},
		"yn": options(),
	})
	b := NewBuilder(r)

	first, err := b.Build(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Build(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}

	if r.calls["q1"] != 2 || r.calls["yn"] != 2 {
		t.Errorf("expected two resolutions of each document, got %v", r.calls)
	}
	if first == second {
		t.Error("each build should produce a fresh model")
	}
	if first.Question != second.Question || first.InputType != second.InputType {
		t.Error("equal documents should give equal content")
	}
}

func TestBuildMalformed(t *testing.T) {
	tests := []struct {
		name     string
		node     ld.Node
		property string
	}{
		{"missing inputType", ld.Node{KeyQuestion: value("Q")}, "inputType"},
		{"missing question", ld.Node{KeyInputType: value("radio")}, "question"},
		{"empty document", ld.Node{}, "question"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeResolver(map[string]ld.Node{"q": tt.node})
			m, err := NewBuilder(r).Build(context.Background(), "q")
			if m != nil {
				t.Errorf("expected no partial model, got %+v", m)
			}
			if !aferrors.HasCode(err, aferrors.ErrCodeScreenMalformed) {
				t.Fatalf("expected SCREEN-001, got %v", err)
			}
			if r.calls["q"] != 1 {
				t.Errorf("expected one resolution, got %d", r.calls["q"])
			}
		})
	}
}

func TestBuildWithoutConstraints(t *testing.T) {
	r := newFakeResolver(map[string]ld.Node{
		"q": {KeyQuestion: value("Describe your day"), KeyInputType: value("text")},
	})

	m, err := NewBuilder(r).Build(context.Background(), "q")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.HasConstraints() {
		t.Error("expected nil constraints")
	}
}

func TestBuildEmbeddedConstraints(t *testing.T) {
	r := newFakeResolver(map[string]ld.Node{
		"q": {
			KeyQuestion:         value("Q"),
			KeyInputType:        value("radio"),
			KeyValueConstraints: []any{map[string]any(options())},
		},
	})

	m, err := NewBuilder(r).Build(context.Background(), "q")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !m.HasConstraints() {
		t.Fatal("embedded constraints should be used directly")
	}
	if m.ConstraintsRef != "" {
		t.Errorf("ConstraintsRef = %q, want empty", m.ConstraintsRef)
	}
	if len(r.calls) != 1 {
		t.Errorf("embedded constraints should not be resolved, calls = %v", r.calls)
	}
}

func TestBuildConstraintsResolutionFails(t *testing.T) {
	r := newFakeResolver(map[string]ld.Node{
		"q": {KeyQuestion: value("Q"), KeyInputType: value("radio"), KeyValueConstraints: id("gone")},
	})

	m, err := NewBuilder(r).Build(context.Background(), "q")
	if m != nil {
		t.Errorf("expected no model, got %+v", m)
	}
	if !aferrors.HasCode(err, aferrors.ErrCodeResolveFetch) {
		t.Fatalf("expected RESOLVE-001, got %v", err)
	}
}

func TestBuildScreenResolutionFails(t *testing.T) {
	_, err := NewBuilder(newFakeResolver(nil)).Build(context.Background(), "missing")
	if !aferrors.HasCode(err, aferrors.ErrCodeResolveFetch) {
		t.Fatalf("expected RESOLVE-001, got %v", err)
	}
}

func TestBuildUnknownInputTypeSucceeds(t *testing.T) {
	r := newFakeResolver(map[string]ld.Node{
		"q":     {KeyQuestion: value("How much?"), KeyInputType: value("slider"), KeyValueConstraints: id("range")},
		"range": {"http://schema.org/minValue": value(float64(0))},
	})

	m, err := NewBuilder(r).Build(context.Background(), "q")
	if err != nil {
		t.Fatalf("unregistered input types must still build: %v", err)
	}
	if m.InputType != "slider" || !m.HasConstraints() {
		t.Errorf("unexpected model %+v", m)
	}
}
