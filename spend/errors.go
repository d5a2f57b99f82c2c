package spend

import (
	"errors"
	"fmt"
)

// ErrorKind partitions plan failures so batch callers can tell bad requests
// from astronomically unlikely cryptographic degeneracies.
type ErrorKind uint8

const (
	// ErrorKindInputValidation marks malformed request data: wrong key or
	// signature encodings, out of range indices. Rejected before any
	// hashing happens.
	ErrorKindInputValidation ErrorKind = iota

	// ErrorKindPrecondition marks requests whose spend conditions are not
	// met: lock height not reached, wrong signature count or ordering.
	// Rejected before any witness is assembled.
	ErrorKindPrecondition

	// ErrorKindCrypto marks failures reported by the signing or hashing
	// collaborators. These are terminal and surfaced verbatim, never
	// retried: signing again with different randomness would change
	// which key authorizes the spend.
	ErrorKindCrypto
)

// String returns a human readable name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindInputValidation:
		return "input validation"

	case ErrorKindPrecondition:
		return "precondition failure"

	case ErrorKindCrypto:
		return "crypto failure"

	default:
		return fmt.Sprintf("unknown error kind (%d)", k)
	}
}

// Error is the typed failure a rejected plan reports.
type Error struct {
	// Kind is the failure class.
	Kind ErrorKind

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKindOf extracts the failure class of an error returned by the
// planner, defaulting to input validation for untyped errors.
func ErrorKindOf(err error) ErrorKind {
	var planErr *Error
	if errors.As(err, &planErr) {
		return planErr.Kind
	}

	return ErrorKindInputValidation
}

var (
	// ErrWrongSigCount is returned when the threshold leaf is not given
	// exactly the number of signatures its script demands.
	ErrWrongSigCount = errors.New("threshold leaf requires exactly the " +
		"demanded number of signatures")

	// ErrSigLength is returned for signatures that are not 64 byte
	// Schnorr signatures.
	ErrSigLength = errors.New("signature must be a 64 byte Schnorr " +
		"signature")

	// ErrSignatureMismatch is returned when a supplied signature does not
	// verify for the key at its slot. Signatures must be supplied in key
	// index order; a shifted or swapped ordering would only surface as a
	// failed script at validation time, so it is caught here instead.
	ErrSignatureMismatch = errors.New("signature does not verify for " +
		"the key at its position")

	// ErrLockHeightNotReached is returned when the chain has not yet
	// reached the height the timelock leaf matures at.
	ErrLockHeightNotReached = errors.New("timelock height not reached")

	// ErrWrongKey is returned when a supplied private key does not match
	// the public key the spend path requires.
	ErrWrongKey = errors.New("private key does not match the spend " +
		"path key")

	// ErrMissingKey is returned when a spend path that signs internally
	// is not given the private key it needs.
	ErrMissingKey = errors.New("spend path requires a private key")
)

// inputErr wraps a cause as an input validation failure.
func inputErr(err error) *Error {
	return &Error{Kind: ErrorKindInputValidation, Err: err}
}

// preconditionErr wraps a cause as a precondition failure.
func preconditionErr(err error) *Error {
	return &Error{Kind: ErrorKindPrecondition, Err: err}
}

// cryptoErr wraps a cause as a terminal cryptographic failure.
func cryptoErr(err error) *Error {
	return &Error{Kind: ErrorKindCrypto, Err: err}
}
