// Package fault defines the error taxonomy shared by the settlement core.
// Handlers translate these into HTTP responses; everything else just wraps
// them with pkg/errors so the kind survives to the edge.
package fault

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure for callers that need to act on it.
type Kind int

const (
	// KindUnknown is any error that did not originate from this package.
	KindUnknown Kind = iota

	// KindValidation is malformed or out of range input.
	KindValidation

	// KindNotFound is an unknown wallet, approval, escrow, invoice or user.
	KindNotFound

	// KindForbidden is an actor lacking the role for the action.
	KindForbidden

	// KindConflict is a duplicate vote, address, signer or active invoice.
	KindConflict

	// KindState is an action invalid for the entity's current lifecycle state.
	KindState

	// KindExternal is a failure from an external collaborator. Retryable by
	// the caller.
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindExternal:
		return "external"
	}
	return "unknown"
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(kind Kind, format string, args []interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newError(KindValidation, format, args)
}

func NotFound(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args)
}

func Forbidden(format string, args ...interface{}) error {
	return newError(KindForbidden, format, args)
}

func Conflict(format string, args ...interface{}) error {
	return newError(KindConflict, format, args)
}

func State(format string, args ...interface{}) error {
	return newError(KindState, format, args)
}

func External(format string, args ...interface{}) error {
	return newError(KindExternal, format, args)
}

// KindOf returns the kind of an error, unwrapping any pkg/errors wrapping
// applied on the way up.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	fe, ok := errors.Cause(err).(*Error)
	if !ok {
		return KindUnknown
	}

	return fe.Kind
}

// IsKind returns true if the error's cause carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
