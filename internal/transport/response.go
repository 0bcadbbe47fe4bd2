package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wuhu-labs/wuhu/pkg/types"
)

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable error code alongside a human-readable
// message (spec §7's error taxonomy surfaced over the wire).
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// writeCoreError maps the core's error taxonomy (spec §7) onto an HTTP
// status and code. Anything unrecognized is an internal error.
func writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, types.ErrSessionCorrupt):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, types.ErrCancellation):
		writeError(w, http.StatusRequestTimeout, ErrCodeInvalidRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
