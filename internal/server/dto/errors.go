// Package dto defines API request/response types and error handling.
//
// The dto package is the API contract layer:
//   - Request types with path/query/json struct tags for parameter binding
//   - Response types with string IDs and RFC3339 timestamps
//   - Structured error types with HTTP status codes and error codes
//
// It does not import the storage packages; conversion happens in the
// handlers package.
package dto

import (
	"errors"
	"net/http"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input data fails validation.
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeMissingField is returned when a required field is missing.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrorCodeInvalidFormat is returned when the request body cannot be decoded.
	ErrorCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	// ErrorCodePayloadTooLarge is returned when the request body exceeds the quota.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"

	// ErrorCodeNotFound is returned when a resource is not found.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeStorageError is returned when the item store fails.
	ErrorCodeStorageError ErrorCode = "STORAGE_ERROR"
	// ErrorCodeInternal is returned when an unexpected server error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"

	// ErrorCodeUnauthorized is returned when authentication is missing or invalid.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeRateLimitExceeded is returned when a client sends too many requests.
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrorCodeInvalidProvider is returned when an OAuth provider is unknown.
	ErrorCodeInvalidProvider ErrorCode = "INVALID_PROVIDER"
	// ErrorCodeOAuthError is returned when an OAuth operation fails.
	ErrorCodeOAuthError ErrorCode = "OAUTH_ERROR"
)

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// AsError returns err as an ErrorWithStatus. Errors that carry no status
// become INTERNAL_ERROR.
func AsError(err error) ErrorWithStatus {
	var ews ErrorWithStatus
	if errors.As(err, &ews) {
		return ews
	}
	return InternalWithError("internal error", err)
}

// NewErrorResponse builds the response body for err.
func NewErrorResponse(err ErrorWithStatus) *ErrorResponse {
	return &ErrorResponse{
		Error:   ErrorDetails{Code: err.Code(), Message: err.Error()},
		Details: err.Details(),
	}
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// Status returns the HTTP status code normally sent with c.
func (c ErrorCode) Status() int {
	switch c {
	case ErrorCodeValidationFailed, ErrorCodeMissingField, ErrorCodeInvalidFormat:
		return http.StatusBadRequest
	case ErrorCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorCodeNotFound, ErrorCodeInvalidProvider:
		return http.StatusNotFound
	case ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrorCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// APIError is the error returned by handlers. The zero value is not usable;
// create one with NewAPIError or a helper below.
type APIError struct {
	status  int
	code    ErrorCode
	message string
	details map[string]any
	cause   error
}

// NewAPIError returns an error with code's usual status.
func NewAPIError(code ErrorCode, message string) *APIError {
	return &APIError{status: code.Status(), code: code, message: message}
}

// WithStatus overrides the HTTP status code.
func (e *APIError) WithStatus(status int) *APIError {
	e.status = status
	return e
}

// WithDetail sets a key of the response's details object.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = map[string]any{}
	}
	e.details[key] = value
	return e
}

// Wrap records err as the cause. It is reported by Error and Unwrap.
func (e *APIError) Wrap(err error) *APIError {
	e.cause = err
	return e
}

func (e *APIError) Error() string {
	if e.cause == nil {
		return e.message
	}
	return e.message + ": " + e.cause.Error()
}

func (e *APIError) StatusCode() int { return e.status }

func (e *APIError) Code() ErrorCode { return e.code }

// Details returns the extra response fields, nil when there are none.
func (e *APIError) Details() map[string]any { return e.details }

func (e *APIError) Unwrap() error { return e.cause }

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(ErrorCodeNotFound, resource+" not found")
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(ErrorCodeValidationFailed, message)
}

// InvalidField creates a 400 error naming the offending field.
func InvalidField(fieldName, message string) *APIError {
	return BadRequest(message).WithDetail("field", fieldName)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(ErrorCodeMissingField, "Missing required field: "+fieldName).
		WithDetail("field", fieldName)
}

// InvalidFormat creates a 400 error for an undecodable request body.
func InvalidFormat(message string) *APIError {
	return NewAPIError(ErrorCodeInvalidFormat, message)
}

// PayloadTooLarge creates a 413 error for a request body over limit bytes.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(ErrorCodePayloadTooLarge, "Request body too large").
		WithDetail("max_bytes", limit)
}

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized() *APIError {
	return NewAPIError(ErrorCodeUnauthorized, "Unauthorized")
}

// RateLimitExceeded creates a 429 error. retryAfter is in seconds.
func RateLimitExceeded(retryAfter int) *APIError {
	return NewAPIError(ErrorCodeRateLimitExceeded, "Rate limit exceeded").
		WithDetail("retry_after", retryAfter)
}

// StorageError creates a 500 error for a failed store operation.
func StorageError(err error) *APIError {
	return NewAPIError(ErrorCodeStorageError, "storage error").Wrap(err)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(ErrorCodeInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}

// InvalidProvider creates a 404 error for unknown OAuth providers.
func InvalidProvider() *APIError {
	return NewAPIError(ErrorCodeInvalidProvider, "unknown provider")
}

// OAuthError creates a 500 error for OAuth operation failures.
func OAuthError(operation string) *APIError {
	return NewAPIError(ErrorCodeOAuthError, operation)
}
