package pipeline

import (
	"errors"
	"fmt"
)

// Error kinds. A FAILED outcome always carries a *Error whose Kind is one of
// these, so callers can match with errors.Is.
var (
	// ErrValidationFailed marks malformed input: merge artifacts with bad
	// timestamps, undecodable notification bodies, unsupported languages.
	ErrValidationFailed = errors.New("validation failed")
	// ErrDependencyFailed marks an error from the document store, the
	// dispatcher or object storage.
	ErrDependencyFailed = errors.New("dependency failed")
	// ErrFatal marks an internal invariant violation, such as a store that
	// reports success without returning the document.
	ErrFatal = errors.New("internal invariant violated")
)

// Error is a failed processing step.
type Error struct {
	Kind       error
	Op         string
	DocumentID string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.DocumentID != "" {
		msg = fmt.Sprintf("%s (document %s)", msg, e.DocumentID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func validationError(op, documentID string, err error) *Error {
	return &Error{Kind: ErrValidationFailed, Op: op, DocumentID: documentID, Err: err}
}

func dependencyError(op, documentID string, err error) *Error {
	return &Error{Kind: ErrDependencyFailed, Op: op, DocumentID: documentID, Err: err}
}

func fatalError(op, documentID string) *Error {
	return &Error{Kind: ErrFatal, Op: op, DocumentID: documentID}
}
