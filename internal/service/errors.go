package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kinds classify service failures; handlers map them onto HTTP statuses.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	// ErrMirror reports that the relational write succeeded and the
	// realtime mirror write did not.
	ErrMirror = errors.New("realtime mirror write failed")
)

// Error carries a client-facing message next to its kind.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind error, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func wrapError(kind error, cause error, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause})
}
