// Package errs provides the unified error type used across all of askdb.
//
// Every subsystem (database drivers, model backends, the synthesis loop,
// the chat handler, …) wraps its native errors into *errs.Error before
// returning them to callers. Callers use the Is* predicates or KindOf to
// decide what to show the user without importing driver-specific packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindQueryFailed, "query failed", pgErr)
//
//	// In a handler, check the error kind:
//	if errs.IsNotConnected(err) {
//	    return "Please connect to a database first."
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown            ErrKind = iota
	ErrKindNotFound                   // no rows, no object, no bucket
	ErrKindConnectionFailed           // cannot reach the backend
	ErrKindTimeout                    // context deadline / cancellation
	ErrKindQueryFailed                // SQL syntax, missing table/column, runtime error
	ErrKindInvalidInput               // bad arguments from the caller
	ErrKindPermissionDenied           // access denied, write attempted on read-only session
	ErrKindNotConnected               // no active database session
	ErrKindGenerationFailed           // model backend unreachable or unknown model
	ErrKindExtractionFailed           // model output contained no usable SQL
	ErrKindSynthesisExhausted         // every attempt of the repair loop failed
	ErrKindCompositionFailed          // answer generation failed after a valid query
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindNotConnected:
		return "not_connected"
	case ErrKindGenerationFailed:
		return "generation_failed"
	case ErrKindExtractionFailed:
		return "extraction_failed"
	case ErrKindSynthesisExhausted:
		return "synthesis_exhausted"
	case ErrKindCompositionFailed:
		return "composition_failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name in JSON and YAML.
func (k ErrKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is the single error type returned by all askdb subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Reason returns the most specific human-readable text for err: the
// innermost cause's message when there is one. It is what the repair
// prompt shows the model.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return Reason(e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a SQL execution failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsNotConnected reports whether err means no database session is active.
func IsNotConnected(err error) bool {
	return KindOf(err) == ErrKindNotConnected
}

// IsGenerationFailed reports whether the model backend failed.
func IsGenerationFailed(err error) bool {
	return KindOf(err) == ErrKindGenerationFailed
}

// IsSynthesisExhausted reports whether the repair loop ran out of attempts.
func IsSynthesisExhausted(err error) bool {
	return KindOf(err) == ErrKindSynthesisExhausted
}

// IsCompositionFailed reports whether answer generation failed.
func IsCompositionFailed(err error) bool {
	return KindOf(err) == ErrKindCompositionFailed
}

// KindOf extracts the ErrKind of the outermost *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
