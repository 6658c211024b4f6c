package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodePlanning          = "PLANNING_ERROR"
	ErrCodeSynthesis         = "SYNTHESIS_ERROR"
	ErrCodeTransport         = "TRANSPORT_ERROR"
	ErrCodeAnimation         = "ANIMATION_ERROR"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeStore             = "STORE_ERROR"
)

// ForgeError is the structured error type for all engine operations.
type ForgeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ForgeError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ForgeError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error code is worth another attempt.
// Only transport and store failures are transient; everything else is a
// hard outcome of the call that produced it.
func (e *ForgeError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeTransport, ErrCodeStore:
		return true
	default:
		return false
	}
}

// NewError creates a new ForgeError.
func NewError(code, message string) *ForgeError {
	return &ForgeError{Code: code, Message: message}
}

// NewErrorf creates a new ForgeError with a formatted message.
func NewErrorf(code, format string, args ...any) *ForgeError {
	return &ForgeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *ForgeError) WithNode(nodeID string) *ForgeError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *ForgeError) WithCause(err error) *ForgeError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ForgeError) WithDetails(details map[string]any) *ForgeError {
	e.Details = details
	return e
}
