// Package apperrors defines the error kinds every scoring operation can fail with.
// The kinds are what the HTTP layer (and the CLI) switch on to decide how to
// present a failure, so each rejected operation surfaces exactly one of them.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindValidation covers malformed or incomplete input: an arrow value outside
	// the allowed set, a duplicate arrow number, finalizing an incomplete session.
	KindValidation Kind = "validation"
	// KindNoMatchingCategory means an archer could not be bucketed into a category.
	KindNoMatchingCategory Kind = "no_matching_category"
	// KindPermissionDenied is an access-control gate rejection.
	KindPermissionDenied Kind = "permission_denied"
	// KindNotFound means a referenced entity is absent.
	KindNotFound Kind = "not_found"
	// KindStorage wraps connectivity or transaction failures from the database.
	KindStorage Kind = "storage"
)

// Error is a classified error. Cause is optional and is what errors.Unwrap returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns an error of the given kind.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with fmt-style formatting.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors report KindStorage: anything the core did not classify
// came from below it.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// HasKind reports whether err is classified as kind.
func HasKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Convenience constructors for the common kinds.

func Validation(format string, args ...any) error {
	return Newf(KindValidation, format, args...)
}

func NotFound(format string, args ...any) error {
	return Newf(KindNotFound, format, args...)
}

func PermissionDenied(format string, args ...any) error {
	return Newf(KindPermissionDenied, format, args...)
}

func Storage(err error, message string) error {
	return Wrap(err, KindStorage, message)
}
