package errors

import (
	"errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
)

// Kind classifies an AppError. The set is closed: the mapper knows a status
// and code for every value.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindBusinessLogic
	KindThrottled
	KindPayloadTooLarge
	KindUnavailable
	KindTimeout
	KindMalformedBody
)

var kindNames = map[Kind]string{
	KindInternal:        "InternalError",
	KindValidation:      "ValidationError",
	KindNotFound:        "NotFoundError",
	KindConflict:        "ConflictError",
	KindUnauthorized:    "UnauthorizedError",
	KindForbidden:       "ForbiddenError",
	KindBusinessLogic:   "BusinessLogicError",
	KindThrottled:       "ThrottledError",
	KindPayloadTooLarge: "PayloadTooLargeError",
	KindUnavailable:     "UnavailableError",
	KindTimeout:         "TimeoutError",
	KindMalformedBody:   "MalformedBodyError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// AppError represents an application-specific error
type AppError struct {
	Kind          Kind           `json:"kind"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details,omitempty"`
	Cause         error          `json:"-"`
	CorrelationID string         `json:"-"`
	StackTrace    string         `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails merges details into the error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// WithCorrelationID tags the error with the request's correlation id.
func (e *AppError) WithCorrelationID(id string) *AppError {
	e.CorrelationID = id
	return e
}

func newError(kind Kind, message string) *AppError {
	return &AppError{
		Kind:       kind,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(4, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return b.String()
}

// NewValidationError creates a validation error
func NewValidationError(message string, details ...map[string]any) *AppError {
	e := newError(KindValidation, message)
	for _, d := range details {
		e.WithDetails(d)
	}
	return e
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return newError(KindNotFound, fmt.Sprintf("%s not found", resource))
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return newError(KindConflict, message)
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "Unauthorized"
	}
	return newError(KindUnauthorized, message)
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "Forbidden"
	}
	return newError(KindForbidden, message)
}

// NewBusinessLogicError reports a request that is well-formed but violates a domain rule.
func NewBusinessLogicError(message string) *AppError {
	return newError(KindBusinessLogic, message)
}

// NewThrottledError reports a dependency refusing work due to load.
func NewThrottledError(message string) *AppError {
	return newError(KindThrottled, message)
}

// NewPayloadTooLargeError creates a payload too large error
func NewPayloadTooLargeError(message string) *AppError {
	return newError(KindPayloadTooLarge, message)
}

// NewUnavailableError creates a service unavailable error
func NewUnavailableError(service string) *AppError {
	return newError(KindUnavailable, fmt.Sprintf("service '%s' is unavailable", service))
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string) *AppError {
	return newError(KindTimeout, fmt.Sprintf("operation '%s' timed out", operation))
}

// NewMalformedBodyError reports a request body that could not be decoded.
func NewMalformedBodyError(message string) *AppError {
	return newError(KindMalformedBody, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return newError(KindInternal, message)
}

// As extracts the outermost AppError from an error chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of the error chain's AppError, or KindInternal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind checks if an error is of a specific kind
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsKind(err, KindValidation)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return IsKind(err, KindConflict)
}

// IsUnauthorized checks if an error is an unauthorized error
func IsUnauthorized(err error) bool {
	return IsKind(err, KindUnauthorized)
}

// IsForbidden checks if an error is a forbidden error
func IsForbidden(err error) bool {
	return IsKind(err, KindForbidden)
}

// Wrap wraps an error with additional context. An AppError is copied, so
// shared sentinel errors keep their message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		wrapped := *appErr
		wrapped.Details = maps.Clone(appErr.Details)
		wrapped.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return &wrapped
	}
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...any) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
