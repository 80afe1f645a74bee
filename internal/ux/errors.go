package ux

import (
	"fmt"
	"strings"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
)

// ErrorWithSuggestion is an error followed by a hint on how to recover.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v\n\n💡 Suggestion: %s", e.Err, e.Suggestion)
}

func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion attaches suggestion to err. A nil err stays nil.
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{Err: err, Suggestion: suggestion}
}

// hint matches when every fragment of one of its alternatives appears in
// the error text.
type hint struct {
	any        [][]string
	suggestion string
}

func (h hint) matches(msg string) bool {
	for _, all := range h.any {
		ok := true
		for _, frag := range all {
			if !strings.Contains(msg, frag) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// hints are tried in order; the first match wins.
var hints = []hint{
	{
		any:        [][]string{{"no such file or directory", "config.yaml"}},
		suggestion: "Create one with 'activityflow config set catalog <path>' or pass --config",
	},
	{
		any:        [][]string{{"no such file or directory", ".json"}},
		suggestion: "Check the activity reference; relative paths resolve against the working directory",
	},
	{
		any:        [][]string{{"permission denied"}},
		suggestion: "Check permissions on ~/.activityflow and the configured store.dsn",
	},
	{
		any:        [][]string{{"database is locked"}},
		suggestion: "Another activityflow process holds the sqlite store; close it or use a separate store.dsn",
	},
	{
		any:        [][]string{{"address already in use"}},
		suggestion: "Pick another port with --address or set server.address in the configuration",
	},
	{
		any:        [][]string{{"connection refused"}, {"no route to host"}},
		suggestion: "Check your network connection and firewall settings",
	},
	{
		any:        [][]string{{"could not open a new TTY"}, {"not a terminal"}},
		suggestion: "Use 'activityflow take <ref>' when no terminal is attached",
	},
}

// EnhanceError adds a suggestion to errors that do not carry one. Coded
// errors already list their own suggestions and are returned unchanged.
func EnhanceError(err error) error {
	if err == nil || aferrors.CodeOf(err) != "" {
		return err
	}
	msg := err.Error()
	for _, h := range hints {
		if h.matches(msg) {
			return NewErrorWithSuggestion(err, h.suggestion)
		}
	}
	return err
}

// FormatError enhances err and prefixes it with what was being attempted.
func FormatError(err error, context string) error {
	if err == nil {
		return nil
	}
	enhanced := EnhanceError(err)
	if context == "" {
		return enhanced
	}
	return fmt.Errorf("%s: %w", context, enhanced)
}
