package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Resolution errors (RESOLVE-001 to RESOLVE-099)
	ErrCodeResolveFetch  ErrorCode = "RESOLVE-001"
	ErrCodeResolveExpand ErrorCode = "RESOLVE-002"

	// Screen errors (SCREEN-001 to SCREEN-099)
	ErrCodeScreenMalformed ErrorCode = "SCREEN-001"

	// Input errors (INPUT-001 to INPUT-099)
	ErrCodeConstraintsMalformed ErrorCode = "INPUT-001"
	ErrCodeStrategyInvalid      ErrorCode = "INPUT-002"

	// Activity errors (ACTIVITY-001 to ACTIVITY-099)
	ErrCodeActivityNotReady  ErrorCode = "ACTIVITY-001"
	ErrCodeActivityMalformed ErrorCode = "ACTIVITY-002"
	ErrCodeScreenSuperseded  ErrorCode = "ACTIVITY-003"

	// Session errors (SESSION-001 to SESSION-099)
	ErrCodeSessionNotFound ErrorCode = "SESSION-001"
	ErrCodeSessionStore    ErrorCode = "SESSION-002"

	// Catalog errors (CATALOG-001 to CATALOG-099)
	ErrCodeCatalogNotFound ErrorCode = "CATALOG-001"
	ErrCodeCatalogInvalid  ErrorCode = "CATALOG-002"

	// Config errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"

	// Request errors (REQUEST-001 to REQUEST-099)
	ErrCodeRequestInvalid ErrorCode = "REQUEST-001"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
)

const docsBase = "https://github.com/felixgeelhaar/activityflow"

// Error is an error with a stable code, recovery suggestions and an optional docs link.
type Error struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error carrying the same code.
// This lets sentinel values such as ErrScreenSuperseded match wrapped copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new Error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new Error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *Error) WithDocs(url string) *Error {
	e.DocsURL = url
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Category returns the prefix of a code, e.g. "RESOLVE" for RESOLVE-001.
func (c ErrorCode) Category() string {
	s := string(c)
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}

// ErrScreenSuperseded is returned when a screen build finished after the
// controller had already moved to a different screen.
var ErrScreenSuperseded = New(ErrCodeScreenSuperseded, "screen load superseded by newer navigation")

// ErrLoadSuperseded is returned by an activity load that a newer load or a
// reset overtook. It carries the same code as ErrScreenSuperseded.
var ErrLoadSuperseded = New(ErrCodeScreenSuperseded, "activity load superseded by a newer load")

// NewFetchError creates a document fetch failure
func NewFetchError(ref string, cause error) *Error {
	return Wrap(ErrCodeResolveFetch, fmt.Sprintf("failed to fetch document: %s", ref), cause).
		WithSuggestion("Check that the reference is reachable from this machine").
		WithSuggestion("Increase resolver.retries or resolver.timeout in the configuration").
		WithDocs(docsBase + "#document-references")
}

// NewExpandError creates a JSON-LD parse or expansion failure
func NewExpandError(ref string, cause error) *Error {
	return Wrap(ErrCodeResolveExpand, fmt.Sprintf("failed to expand linked-data document: %s", ref), cause).
		WithSuggestion("Validate the document with a JSON-LD playground").
		WithSuggestion("Check that every @context it references can be fetched")
}

// NewMalformedScreenError creates an error for a screen missing a required property
func NewMalformedScreenError(ref, property string) *Error {
	return New(ErrCodeScreenMalformed, fmt.Sprintf("screen %s is missing required property %s", ref, property)).
		WithSuggestion("Every screen document needs both a question and an inputType").
		WithDocs(docsBase + "#screen-documents")
}

// NewMalformedConstraintsError creates an error for option data that does not have the expected shape
func NewMalformedConstraintsError(inputType, details string) *Error {
	return New(ErrCodeConstraintsMalformed, fmt.Sprintf("malformed %s constraints: %s", inputType, details)).
		WithSuggestion("Constraints need an itemListElement list whose entries carry name and value")
}

// NewNotReadyError creates an error for navigation attempted outside the Ready state
func NewNotReadyError(operation, state string) *Error {
	return New(ErrCodeActivityNotReady, fmt.Sprintf("cannot %s: activity is %s", operation, state)).
		WithSuggestion("Wait for the activity to finish loading").
		WithSuggestion("Reload the activity if it failed to load")
}

// NewMalformedActivityError creates an error for an activity document without usable screens
func NewMalformedActivityError(ref, details string) *Error {
	return New(ErrCodeActivityMalformed, fmt.Sprintf("malformed activity %s: %s", ref, details)).
		WithSuggestion("The activity document needs a non-empty order list of screen references").
		WithDocs(docsBase + "#activity-documents")
}

// NewSessionNotFoundError creates a session lookup failure
func NewSessionNotFoundError(id string) *Error {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session not found: %s", id)).
		WithSuggestion("Run 'activityflow sessions list' to see saved sessions")
}

// NewCatalogNotFoundError creates a missing catalog error
func NewCatalogNotFoundError(path string) *Error {
	return New(ErrCodeCatalogNotFound, fmt.Sprintf("activity catalog not found: %s", path)).
		WithSuggestion("Pass --catalog or set catalog in ~/.activityflow/config.yaml").
		WithSuggestion("Pass an activity reference directly instead of using a catalog")
}

// NewCatalogInvalidError creates a catalog parse failure
func NewCatalogInvalidError(path string, cause error) *Error {
	return Wrap(ErrCodeCatalogInvalid, fmt.Sprintf("invalid activity catalog: %s", path), cause).
		WithSuggestion("A catalog is a JSON array of references or a YAML document with an activities list")
}

// NewInvalidRequestError creates an error for an API request that does not match the API contract
func NewInvalidRequestError(cause error) *Error {
	return Wrap(ErrCodeRequestInvalid, "request does not match the API contract", cause).
		WithSuggestion("See GET /api/v1/openapi.yaml for the request schemas")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *Error {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *Error {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
