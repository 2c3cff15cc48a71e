package errors

import "errors"

const (
	HttpInternalError      = "internal_error"
	HttpInvalidJsonError   = "invalid_json"
	HttpValidationError    = "validation_failed"
	HttpNotFoundError      = "not_found"
	HttpServiceUnavailable = "service_unavailable"
	HttpInvalidQueryError  = "invalid_query"
	HttpDuplicateError     = "duplicate"
)

// Sentinel errors shared across packages. Wrap with fmt.Errorf("...: %w", err).
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRule       = errors.New("invalid rule")
	ErrCircularReference = errors.New("circular reference")
	ErrQueueFull         = errors.New("queue full")
)

// ErrorResponse is the error response body for API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
