package ussd

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how it is reported to the subscriber.
type Kind int

const (
	// KindValidation is malformed input; states recover from it by re-prompting.
	KindValidation Kind = iota + 1
	// KindAuth is a PIN that does not derive the session's wallet.
	KindAuth
	// KindCollaborator is a failed or timed out call to persistence, the chain or the payment rail.
	KindCollaborator
	// KindInternal is anything unexpected, including panics.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindCollaborator:
		return "collaborator"
	default:
		return "internal"
	}
}

// Message is the fixed subscriber-facing text for kind. Causes are never shown.
func Message(kind Kind) string {
	switch kind {
	case KindValidation:
		return "Invalid input. Please try again."
	case KindAuth:
		return "Incorrect PIN. Please try again."
	case KindCollaborator:
		return "An error occurred. Please try again."
	default:
		return "An error occurred. Please try again later."
	}
}

// Error carries a Kind and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err, treating unclassified errors as internal.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindInternal
}
