package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/gfgkiit/trapped/internal/apperr"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

type errorBody struct {
	Error  string              `json:"error"`
	Field  string              `json:"field,omitempty"`
	Reason string              `json:"reason,omitempty"`
	Errors []apperr.FieldError `json:"errors,omitempty"`
}

// conflictStatus selects the status used for uniqueness rejections. The
// applicant form reports them as 400, the team form as 409.
type conflictStatus int

const (
	conflictAsBadRequest conflictStatus = http.StatusBadRequest
	conflictAsConflict   conflictStatus = http.StatusConflict
)

// statusFor maps a classified error onto an HTTP status.
func statusFor(err error, conflict conflictStatus) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return int(conflict)
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError renders err for the client. Upstream and unclassified errors
// are logged with their cause and reported generically.
func (r *Router) writeAppError(w http.ResponseWriter, req *http.Request, err error, conflict conflictStatus) {
	status := statusFor(err, conflict)
	appErr, ok := apperr.As(err)
	if !ok || status == http.StatusInternalServerError {
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, status, errorBody{
		Error:  appErr.Message,
		Field:  appErr.Field,
		Reason: appErr.Reason,
		Errors: appErr.Fields,
	})
}
