package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorType represents the different ways a harvest can fail
type ErrorType string

const (
	ErrorTypeNavigation        ErrorType = "navigation"
	ErrorTypeReadinessTimeout  ErrorType = "readiness_timeout"
	ErrorTypeHeightMeasurement ErrorType = "height_measurement"
	ErrorTypeExtraction        ErrorType = "extraction"
	ErrorTypeInconclusive      ErrorType = "inconclusive"
	ErrorTypeSession           ErrorType = "session"
	ErrorTypeCancelled         ErrorType = "cancelled"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// Phase names used when attaching context to an Error
const (
	PhaseOpen       = "open"
	PhaseNavigate   = "navigate"
	PhaseScroll     = "scroll"
	PhaseReadiness  = "readiness"
	PhaseCapture    = "capture"
	PhaseExtraction = "extraction"
)

// Error is a harvesting failure for a single source
type Error struct {
	Type   ErrorType
	Source string
	Phase  string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Type)
	if e.Source != "" {
		msg += fmt.Sprintf(" (source %s", e.Source)
		if e.Phase != "" {
			msg += ", phase " + e.Phase
		}
		msg += ")"
	} else if e.Phase != "" {
		msg += fmt.Sprintf(" (phase %s)", e.Phase)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given type wrapping err
func New(errorType ErrorType, phase string, err error) *Error {
	return &Error{Type: errorType, Phase: phase, Err: err}
}

// WithSource returns err with the source attached. Errors that are not an
// *Error are classified as unknown first.
func WithSource(err error, source string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		copied := *e
		copied.Source = source
		return &copied
	}
	return &Error{Type: classify(err), Source: source, Err: err}
}

// TypeOf returns the ErrorType carried by err, or a best-effort classification
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return classify(err)
}

// Is reports whether err carries the given ErrorType
func Is(err error, errorType ErrorType) bool {
	return TypeOf(err) == errorType
}

func classify(err error) ErrorType {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeCancelled
	}
	return ErrorTypeUnknown
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNavigation, ErrorTypeSession:
		return true
	default:
		return false
	}
}
