package exitcode

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/activityflow/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// DocumentError indicates an activity, screen or catalog document with the wrong shape
	DocumentError = 3

	// NotFound indicates a missing session, catalog or file
	NotFound = 4

	// NetworkError indicates a document could not be fetched
	NetworkError = 6

	// Interrupted indicates the user cancelled the operation
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code.
// Coded errors are mapped by category; anything else falls back to message matching.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	switch code := errors.CodeOf(err); code {
	case errors.ErrCodeResolveFetch:
		return NetworkError
	case errors.ErrCodeResolveExpand, errors.ErrCodeScreenMalformed,
		errors.ErrCodeConstraintsMalformed, errors.ErrCodeActivityMalformed,
		errors.ErrCodeCatalogInvalid, errors.ErrCodeFileUnmarshal:
		return DocumentError
	case errors.ErrCodeSessionNotFound, errors.ErrCodeCatalogNotFound, errors.ErrCodeFileNotFound:
		return NotFound
	case errors.ErrCodeConfigInvalid:
		return UsageError
	case "":
	default:
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "network") || strings.Contains(errMsg, "connection") {
		return NetworkError
	}
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "unreachable") {
		return NetworkError
	}

	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "missing argument") {
		return UsageError
	}
	if strings.Contains(errMsg, "accepts") && strings.Contains(errMsg, "arg(s)") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or configuration)"
	case DocumentError:
		return "Malformed activity document"
	case NotFound:
		return "Not found"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
