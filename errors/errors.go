// Package errors provides standardized error handling for the provisioning
// backend. It includes error classification, the remote-call error taxonomy
// used by the engine client's endpoint-fallback logic, and helper functions
// for consistent error wrapping across the system.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Remote engine errors
	ErrEngineNotConfigured = errors.New("engine API key not configured")
	ErrWorkflowNotFound    = errors.New("workflow not found")
	ErrCredentialNotFound  = errors.New("credential not found")

	// Document patch errors
	ErrStructuralNotFound = errors.New("no compatible node found in workflow document")

	// Provisioning errors
	ErrPartialProvisioning = errors.New("provisioning failed after remote side effects were committed")

	// Local mirror errors
	ErrLocalTransaction = errors.New("local mirror transaction failed")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// RemoteKind discriminates remote-call failures so that endpoint-fallback
// logic can branch on data instead of matching error-message substrings.
type RemoteKind int

const (
	// KindRemoteUnavailable is a network/timeout failure reaching the remote
	KindRemoteUnavailable RemoteKind = iota
	// KindRemoteRejected is a structured remote error (bad auth, validation, conflict)
	KindRemoteRejected
	// KindVersionMismatch is a 404/405 on the current API path, suggesting an
	// older remote version; callers retry once against the legacy path
	KindVersionMismatch
)

// String returns the string representation of RemoteKind
func (k RemoteKind) String() string {
	switch k {
	case KindRemoteUnavailable:
		return "remote_unavailable"
	case KindRemoteRejected:
		return "remote_rejected"
	case KindVersionMismatch:
		return "version_mismatch"
	default:
		return "unknown"
	}
}

// RemoteCallError describes a failed HTTP call to the remote Workflow Engine.
// StatusCode is zero when the request never produced a response.
type RemoteCallError struct {
	Kind       RemoteKind
	StatusCode int
	Operation  string // e.g. "createCredential"
	Path       string // request path, for diagnostics
	Message    string // remote-supplied message, if any
	Err        error  // underlying transport error, if any
}

// Error implements the error interface
func (e *RemoteCallError) Error() string {
	if e.StatusCode > 0 {
		status := http.StatusText(e.StatusCode)
		if e.Message != "" {
			return fmt.Sprintf("engine %s: [%d] %s - %s", e.Operation, e.StatusCode, status, e.Message)
		}
		return fmt.Sprintf("engine %s: [%d] %s", e.Operation, e.StatusCode, status)
	}
	if e.Err != nil {
		return fmt.Sprintf("engine %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("engine %s: %s", e.Operation, e.Kind)
}

// Unwrap returns the underlying error
func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

// RemoteKindOf extracts the RemoteKind from an error chain. The second return
// is false when the error is not a remote-call error.
func RemoteKindOf(err error) (RemoteKind, bool) {
	var rce *RemoteCallError
	if errors.As(err, &rce) {
		return rce.Kind, true
	}
	return 0, false
}

// IsVersionMismatch reports whether the error should trigger the legacy-path
// fallback (primary path answered 404 or 405).
func IsVersionMismatch(err error) bool {
	kind, ok := RemoteKindOf(err)
	return ok && kind == KindVersionMismatch
}

// IsRemoteUnavailable reports whether the error is a transport-level failure
// (connection refused, timeout) rather than a remote rejection.
func IsRemoteUnavailable(err error) bool {
	kind, ok := RemoteKindOf(err)
	return ok && kind == KindRemoteUnavailable
}

// RemoteStatus returns the HTTP status carried by a remote-call error, or 0.
func RemoteStatus(err error) int {
	var rce *RemoteCallError
	if errors.As(err, &rce) {
		return rce.StatusCode
	}
	return 0
}

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and may be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if IsRemoteUnavailable(err) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrMissingConfig)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrStructuralNotFound)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	switch {
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		// Default to transient for unknown errors to allow retry
		return ErrorTransient
	}
}

// newClassified creates a new classified error.
// Internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Re-exported stdlib helpers so callers don't need a second errors import.

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error that formats as the given text
func New(text string) error { return errors.New(text) }
