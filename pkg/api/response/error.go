package response

import (
	"errors"
	"net/http"

	"github.com/vedmemory/ved/pkg/auth"
	"github.com/vedmemory/ved/pkg/memory"
	"github.com/vedmemory/ved/pkg/storage"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id"`
}

// Common error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// Messages for errors whose text is part of the API contract.
const (
	MsgEmptyQuery         = "Query cannot be empty"
	MsgProjectNotFound    = "Project not found"
	MsgNoConversations    = "No conversations found"
	MsgInvalidMode        = "Invalid mode"
	MsgInvalidCredentials = "Invalid credentials"
	MsgEmailRegistered    = "Email already registered"
	MsgInternalServer     = "Internal server error"
)

// HTTPStatusFromError maps domain errors to HTTP status codes. Anything
// unrecognised is an internal error.
func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, memory.ErrEmptyQuery), errors.Is(err, memory.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrProjectNotFound), errors.Is(err, memory.ErrNoConversations),
		storage.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMismatchedPassword):
		return http.StatusUnauthorized
	case storage.IsDuplicateKey(err):
		return http.StatusConflict
	case storage.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MessageFromError returns the client-facing message for err. Internal
// errors never leak their text.
func MessageFromError(err error) string {
	switch {
	case errors.Is(err, memory.ErrEmptyQuery):
		return MsgEmptyQuery
	case errors.Is(err, memory.ErrInvalidMode):
		return MsgInvalidMode
	case errors.Is(err, memory.ErrProjectNotFound):
		return MsgProjectNotFound
	case errors.Is(err, memory.ErrNoConversations):
		return MsgNoConversations
	case errors.Is(err, auth.ErrInvalidToken):
		return "Could not validate credentials"
	case errors.Is(err, auth.ErrMismatchedPassword):
		return MsgInvalidCredentials
	}

	var nf *storage.NotFoundError
	if errors.As(err, &nf) {
		return capitalize(nf.EntityType) + " not found"
	}
	var dk *storage.DuplicateKeyError
	if errors.As(err, &dk) {
		return capitalize(dk.EntityType) + " already exists"
	}
	if storage.IsUnavailable(err) {
		return "Storage unavailable"
	}
	return MsgInternalServer
}

func capitalize(s string) string {
	if s == "" {
		return "Resource"
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}

// ErrorCodeFromStatus returns an error code for the given HTTP status.
func ErrorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return ErrCodeMethodNotAllowed
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrCodeGatewayTimeout
	default:
		return ErrCodeInternalServer
	}
}

// HandleError writes the response matching err.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	status := HTTPStatusFromError(err)
	Error(w, status, ErrorCodeFromStatus(status), MessageFromError(err), requestID)
}
