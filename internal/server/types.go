// Package server defines shared wire helpers that are reused across client
// and handler logic.
package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

var (
	errRateLimited = &chat.Error{Kind: chat.KindValidation, Message: "rate limit exceeded"}
	errClosed      = &chat.Error{Kind: chat.KindTransport, Message: "channel closed"}
	errSlowClient  = &chat.Error{Kind: chat.KindTransport, Message: "send buffer full"}
)

// errorResponse is the body of every failed HTTP call.
type errorResponse struct {
	Message string `json:"message"`
}

// statusFor maps a chat error to the HTTP status reported to the caller.
func statusFor(err error) int {
	switch chat.KindOf(err) {
	case chat.KindValidation:
		return http.StatusBadRequest
	case chat.KindUnauthorized:
		return http.StatusUnauthorized
	case chat.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
