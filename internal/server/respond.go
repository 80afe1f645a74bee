package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/log"
)

// errorBody is the JSON form of every API error.
type errorBody struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func newErrorBody(err error) *errorBody {
	var coded *aferrors.Error
	if stderrors.As(err, &coded) {
		msg := coded.Message
		if coded.Cause != nil {
			msg += ": " + coded.Cause.Error()
		}
		return &errorBody{Code: string(coded.Code), Message: msg, Suggestions: coded.Suggestions}
	}
	return &errorBody{Code: "INTERNAL", Message: err.Error()}
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch aferrors.CodeOf(err) {
	case aferrors.ErrCodeRequestInvalid:
		return http.StatusBadRequest
	case aferrors.ErrCodeSessionNotFound, aferrors.ErrCodeCatalogNotFound:
		return http.StatusNotFound
	case aferrors.ErrCodeActivityNotReady, aferrors.ErrCodeScreenSuperseded:
		return http.StatusConflict
	case aferrors.ErrCodeActivityMalformed, aferrors.ErrCodeScreenMalformed, aferrors.ErrCodeConstraintsMalformed:
		return http.StatusUnprocessableEntity
	case aferrors.ErrCodeResolveFetch, aferrors.ErrCodeResolveExpand:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.DefaultLogger().Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.DefaultLogger().WithContext(r.Context()).WithError(err).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "status", status)
	}
	writeJSON(w, status, newErrorBody(err))
}
