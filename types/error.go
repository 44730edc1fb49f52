package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Job submission and polling error codes
const (
	ErrTransport      ErrorCode = "TRANSPORT"
	ErrRejected       ErrorCode = "REJECTED"
	ErrAuthentication ErrorCode = "AUTHENTICATION"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrTimedOut       ErrorCode = "TIMED_OUT"
	ErrDecode         ErrorCode = "DECODE"
)

// Stage and pipeline error codes
const (
	ErrAllCandidatesExhausted ErrorCode = "ALL_CANDIDATES_EXHAUSTED"
	ErrPipelineFailed         ErrorCode = "PIPELINE_FAILED"
	ErrInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrUploadFailed           ErrorCode = "UPLOAD_FAILED"
	ErrStorage                ErrorCode = "STORAGE"
)

// CandidateFailure records why one candidate model was rejected
// during fallback selection.
type CandidateFailure struct {
	Model  string `json:"model"`
	Reason string `json:"reason"`
}

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode          `json:"code"`
	Message    string             `json:"message"`
	HTTPStatus int                `json:"http_status,omitempty"`
	Retryable  bool               `json:"retryable"`
	Provider   string             `json:"provider,omitempty"`
	Model      string             `json:"model,omitempty"`
	Stage      int                `json:"stage,omitempty"`
	Attempts   []CandidateFailure `json:"attempts,omitempty"`
	Cause      error              `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if len(e.Attempts) > 0 {
		b.WriteString(" (")
		for i, a := range e.Attempts {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s: %s", a.Model, a.Reason)
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as recoverable by trying the next candidate.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithModel sets the candidate model identifier.
func (e *Error) WithModel(model string) *Error {
	e.Model = model
	return e
}

// WithStage sets the pipeline stage number (1-based).
func (e *Error) WithStage(stage int) *Error {
	e.Stage = stage
	return e
}

// WithAttempts attaches the per-candidate failure reasons.
func (e *Error) WithAttempts(attempts []CandidateFailure) *Error {
	e.Attempts = attempts
	return e
}

// IsRetryable checks if an error is recoverable by fallback.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
