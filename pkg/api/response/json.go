// Package response writes the JSON bodies of the ved API, including the
// shared error envelope.
package response

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// JSON encodes data and writes it with status. Encoding happens before
// the header is sent, so an unencodable value becomes a 500 envelope
// instead of a truncated body.
func JSON(w http.ResponseWriter, status int, data any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")

	if data == nil {
		w.WriteHeader(status)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(ErrorResponse{Error: ErrorDetail{
			Code:    ErrCodeInternalServer,
			Message: MsgInternalServer,
		}})
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// Error writes the error envelope.
func Error(w http.ResponseWriter, status int, code, message, requestID string) {
	ErrorWithDetails(w, status, code, message, nil, requestID)
}

// ErrorWithDetails writes the error envelope with per-field details.
func ErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}, requestID string) {
	JSON(w, status, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
	}})
}
