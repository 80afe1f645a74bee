// Package input maps a screen's declared input type to the strategy that
// prepares it for rendering.
package input

import (
	"fmt"

	"github.com/felixgeelhaar/activityflow/internal/ld"
)

// Kind names the renderer a Prompt is meant for.
type Kind string

const (
	KindRadio   Kind = "radio"
	KindUnknown Kind = "unknown"
)

// Input is what the controller hands a strategy for one screen.
type Input struct {
	Question    string
	InputType   string
	Constraints ld.Node
	Prior       any
	HasPrior    bool
}

// Option is one selectable answer.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// Prompt is renderer-ready data for one screen.
type Prompt struct {
	Kind      Kind     `json:"kind" yaml:"kind"`
	InputType string   `json:"input_type" yaml:"input_type"`
	Question  string   `json:"question" yaml:"question"`
	Options   []Option `json:"options,omitempty" yaml:"options,omitempty"`
	// Selected is the index of the option matching the prior response, or -1.
	Selected   int    `json:"selected" yaml:"selected"`
	Diagnostic string `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`
	// Err is the preparation error that caused a fallback, if any.
	Err error `json:"-" yaml:"-"`
}

// Degraded reports whether the prompt fell back to the unknown renderer.
func (p *Prompt) Degraded() bool {
	return p.Kind == KindUnknown
}

// Strategy prepares screens of one input type.
type Strategy interface {
	Name() string
	Prepare(in Input) (*Prompt, error)
}

// UnknownStrategy renders a diagnostic placeholder for input types nobody
// registered. It never fails.
type UnknownStrategy struct{}

// Name returns "unknown".
func (UnknownStrategy) Name() string { return string(KindUnknown) }

// Prepare returns the placeholder prompt.
func (UnknownStrategy) Prepare(in Input) (*Prompt, error) {
	return &Prompt{
		Kind:       KindUnknown,
		InputType:  in.InputType,
		Question:   in.Question,
		Selected:   -1,
		Diagnostic: UnknownDiagnostic(in.InputType),
	}, nil
}

// UnknownDiagnostic is the message shown in place of an unrenderable input.
func UnknownDiagnostic(inputType string) string {
	return fmt.Sprintf("We do not know how to render this UI component: %s", inputType)
}
