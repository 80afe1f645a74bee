// Package activity drives navigation through a questionnaire described by
// linked-data documents: it loads the activity, tracks position and
// direction, builds the current screen and keeps one response per screen.
package activity

import (
	"maps"

	"github.com/felixgeelhaar/activityflow/internal/input"
	"github.com/felixgeelhaar/activityflow/internal/ld"
	"github.com/felixgeelhaar/activityflow/internal/screen"
	"github.com/felixgeelhaar/activityflow/internal/session"
)

// Property keys read from activity documents.
const (
	KeyPreamble    = "http://schema.repronim.org/preamble"
	KeyOrder       = "https://schema.repronim.org/order"
	KeyPrefLabel   = "http://www.w3.org/2004/02/skos/core#prefLabel"
	KeyDescription = "http://schema.org/description"
)

// State is the controller lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Direction is the last navigation direction. Renderers may use it to pick
// a transition; the controller never interprets it.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Transition names the animation associated with the direction.
func (d Direction) Transition() string {
	if d == Backward {
		return "fadeInDown"
	}
	return "fadeInUp"
}

// Definition is what a loaded activity document provides.
type Definition struct {
	Ref         string
	Title       string
	Description string
	Preamble    string
	ScreenRefs  []string
	Digest      string
}

// ParseDefinition reads the activity properties from a resolved document.
// A missing or empty order list is ACTIVITY-002; every other property is
// optional.
func ParseDefinition(doc *ld.Document) (*Definition, error) {
	node := doc.Node

	refs, ok := node.ListIDs(KeyOrder)
	if !ok || len(refs) == 0 {
		return nil, malformedActivity(doc.Ref, ok)
	}

	def := &Definition{
		Ref:        doc.Ref,
		ScreenRefs: refs,
		Digest:     doc.Digest,
	}
	def.Preamble, _ = node.String(KeyPreamble)
	def.Title, _ = node.String(KeyPrefLabel)
	def.Description, _ = node.String(KeyDescription)
	return def, nil
}

// Screen is one built screen, ready for a renderer.
type Screen struct {
	Index     int
	Ref       string
	Model     *screen.Model
	Prompt    *input.Prompt
	Prior     any
	HasPrior  bool
	Direction Direction
}

// Snapshot is a copy of the controller's navigation state.
type Snapshot struct {
	Ref        string
	Digest     string
	State      State
	Index      int
	ScreenRefs []string
	Responses  map[string]any
}

// Answered counts distinct screens of the activity that have a response.
func (s Snapshot) Answered() int {
	n := 0
	for ref := range uniqueRefs(s.ScreenRefs) {
		if _, ok := s.Responses[ref]; ok {
			n++
		}
	}
	return n
}

// Complete reports whether every screen has a response.
func (s Snapshot) Complete() bool {
	return len(s.ScreenRefs) > 0 && s.Answered() == len(uniqueRefs(s.ScreenRefs))
}

// ApplyTo copies position and responses into sess. A session whose every
// screen is answered is marked completed.
func (s Snapshot) ApplyTo(sess *session.Session) {
	sess.Index = s.Index
	sess.Responses = maps.Clone(s.Responses)
	if sess.Responses == nil {
		sess.Responses = make(map[string]any)
	}
	if s.Digest != "" {
		sess.Digest = s.Digest
	}
	if s.Complete() {
		sess.Complete()
	}
}

func uniqueRefs(refs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		set[r] = struct{}{}
	}
	return set
}
