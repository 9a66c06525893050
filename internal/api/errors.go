package api

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes. Clients switch on Code, not on Message.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeValidation    = "validation_error"
	ErrCodeQueueFull     = "queue_full"
	ErrCodeUnavailable   = "unavailable"
	ErrCodeCommandFailed = "command_failed"
	ErrCodeInternal      = "internal_error"
)

// defaultCodes gives the code used by writeStatus for each status.
var defaultCodes = map[int]string{
	http.StatusBadRequest:          ErrCodeBadRequest,
	http.StatusNotFound:            ErrCodeNotFound,
	http.StatusServiceUnavailable:  ErrCodeUnavailable,
	http.StatusInternalServerError: ErrCodeInternal,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeStatus writes an error with the default code for status.
func writeStatus(w http.ResponseWriter, status int, message string) {
	code, ok := defaultCodes[status]
	if !ok {
		code = ErrCodeInternal
	}
	writeError(w, status, code, message)
}
