package input

import (
	"fmt"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/ld"
)

// Keys read from radio constraints documents.
const (
	KeyItemListElement = "http://schema.org/itemListElement"
	KeyName            = "http://schema.org/name"
	KeyValue           = "http://schema.org/value"
)

// RadioStrategy prepares single-choice screens from an ordered option list.
type RadioStrategy struct{}

// Name returns "radio".
func (RadioStrategy) Name() string { return string(KindRadio) }

// Prepare parses the options and preselects the prior response.
func (s RadioStrategy) Prepare(in Input) (*Prompt, error) {
	opts, err := s.ParseOptions(in.Constraints)
	if err != nil {
		return nil, err
	}

	selected := -1
	if in.HasPrior {
		for i, o := range opts {
			if ld.EqualValues(o.Value, in.Prior) {
				selected = i
				break
			}
		}
	}

	return &Prompt{
		Kind:      KindRadio,
		InputType: in.InputType,
		Question:  in.Question,
		Options:   opts,
		Selected:  selected,
	}, nil
}

// ParseOptions reads itemListElement → @list and maps each entry's name and
// value to an Option, keeping list order. A list without options is
// malformed.
func (RadioStrategy) ParseOptions(constraints ld.Node) ([]Option, error) {
	if constraints == nil {
		return nil, aferrors.NewMalformedConstraintsError("radio", "no constraints document")
	}

	items, ok := constraints.List(KeyItemListElement)
	if !ok {
		return nil, aferrors.NewMalformedConstraintsError("radio", "missing itemListElement list")
	}
	if len(items) == 0 {
		return nil, aferrors.NewMalformedConstraintsError("radio", "itemListElement list has no options")
	}

	opts := make([]Option, 0, len(items))
	for i, item := range items {
		label, ok := item.String(KeyName)
		if !ok {
			return nil, aferrors.NewMalformedConstraintsError("radio", fmt.Sprintf("option %d has no name", i))
		}
		value, ok := item.Value(KeyValue)
		if !ok {
			return nil, aferrors.NewMalformedConstraintsError("radio", fmt.Sprintf("option %d has no value", i))
		}
		opts = append(opts, Option{Label: label, Value: value})
	}
	return opts, nil
}
