// Package respond writes API responses in the envelope shape every handler
// shares: a status code echo, a human-readable message, and an optional data
// payload.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope wraps every response body.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON writes status with a message and payload wrapped in the envelope.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, Envelope{Code: status, Message: message, Data: data})
}

// Error writes a failure envelope carrying only the status and message.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, Envelope{Code: status, Message: message})
}

func write(w http.ResponseWriter, e Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		// The status line is already gone; all we can do is record it.
		slog.Error("encode response envelope", "error", err)
	}
}
