package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"    // Transport failure, no response received
	ErrorTypeHTTP       ErrorType = "http"       // Non-2xx response from a backend
	ErrorTypeValidation ErrorType = "validation" // Bad input or rejected cloud credentials
	ErrorTypePartial    ErrorType = "partial"    // Batch finished with per-item failures
	ErrorTypeDecode     ErrorType = "decode"     // Response body could not be decoded
	ErrorTypeAuth       ErrorType = "auth"       // Missing or expired session
)

// APIError is the error returned by every remote operation
type APIError struct {
	Type       ErrorType              `json:"type"`
	Operation  string                 `json:"operation,omitempty"`
	StatusCode int                    `json:"status_code,omitempty"`
	Message    string                 `json:"message"`
	Resource   string                 `json:"resource,omitempty"`
	Provider   string                 `json:"provider,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Wrapped    error                  `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	var parts []string

	parts = append(parts, e.Message)

	if e.Resource != "" {
		parts = append(parts, fmt.Sprintf("(resource: %s)", e.Resource))
	}

	if e.Wrapped != nil {
		parts = append(parts, fmt.Sprintf("caused by: %v", e.Wrapped))
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the wrapped error
func (e *APIError) Unwrap() error {
	return e.Wrapped
}

// Is matches on type and, when the target sets one, status code
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	if t.StatusCode != 0 && t.StatusCode != e.StatusCode {
		return false
	}
	return e.Type == t.Type
}

// WithDetails adds additional context details
func (e *APIError) WithDetails(key string, value interface{}) *APIError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON serializes error to JSON
func (e *APIError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// ErrorBuilder provides fluent API for building errors
type ErrorBuilder struct {
	err *APIError
}

// NewError creates a new error builder
func NewError(errType ErrorType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		err: &APIError{
			Type:      errType,
			Message:   message,
			Timestamp: time.Now(),
		},
	}
}

// WithOperation sets the operation that failed
func (b *ErrorBuilder) WithOperation(operation string) *ErrorBuilder {
	b.err.Operation = operation
	return b
}

// WithStatus sets the HTTP status code
func (b *ErrorBuilder) WithStatus(code int) *ErrorBuilder {
	b.err.StatusCode = code
	return b
}

// WithResource sets the affected resource
func (b *ErrorBuilder) WithResource(resource string) *ErrorBuilder {
	b.err.Resource = resource
	return b
}

// WithProvider sets the cloud provider
func (b *ErrorBuilder) WithProvider(provider string) *ErrorBuilder {
	b.err.Provider = provider
	return b
}

// WithRequestID records the request id sent to the backend
func (b *ErrorBuilder) WithRequestID(id string) *ErrorBuilder {
	b.err.RequestID = id
	return b
}

// WithDetails adds context details
func (b *ErrorBuilder) WithDetails(key string, value interface{}) *ErrorBuilder {
	b.err.WithDetails(key, value)
	return b
}

// WithWrapped wraps another error
func (b *ErrorBuilder) WithWrapped(err error) *ErrorBuilder {
	b.err.Wrapped = err
	return b
}

// Build returns the built error
func (b *ErrorBuilder) Build() *APIError {
	return b.err
}

// Common error constructors

// NewNetworkError creates an error for a request that never got a response
func NewNetworkError(operation string, cause error) *APIError {
	return NewError(ErrorTypeNetwork, fmt.Sprintf("%s: network error", operation)).
		WithOperation(operation).
		WithWrapped(cause).
		Build()
}

// NewHTTPError creates an error for a non-2xx response. An empty server
// message falls back to fallback.
func NewHTTPError(operation string, status int, serverMessage, fallback string) *APIError {
	msg := serverMessage
	if msg == "" {
		msg = fallback
	}
	return NewError(ErrorTypeHTTP, msg).
		WithOperation(operation).
		WithStatus(status).
		Build()
}

// NewValidationError creates a validation error
func NewValidationError(resource string, message string) *APIError {
	return NewError(ErrorTypeValidation, message).
		WithResource(resource).
		Build()
}

// NewAuthError reports a missing or expired session
func NewAuthError(message string) *APIError {
	return NewError(ErrorTypeAuth, message).
		WithStatus(http.StatusUnauthorized).
		Build()
}

// IsType reports whether err is an *APIError of the given type
func IsType(err error, errType ErrorType) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Type == errType
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// UserMessage returns the text suitable for an alert or inline error
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// ItemFailure records one failed element of a best-effort batch
type ItemFailure struct {
	Item      string `json:"item"`
	Operation string `json:"operation"`
	Err       error  `json:"-" yaml:"-"`
}

func (f ItemFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Operation, f.Item, f.Err)
}

func (f ItemFailure) Unwrap() error {
	return f.Err
}

// PartialError summarises a batch that completed with item failures
func PartialError(operation string, failures []ItemFailure) error {
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, f)
	}
	return NewError(ErrorTypePartial, fmt.Sprintf("%s: %d item(s) failed", operation, len(failures))).
		WithOperation(operation).
		WithDetails("failed", len(failures)).
		WithWrapped(stderrors.Join(errs...)).
		Build()
}
