package types

import (
	"errors"
	"fmt"
)

// Error is the typed error produced by the control-plane core. It carries a
// Code plus a human readable message with the identifiers involved, so the
// API layer can map it to a status without string matching.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// NewErrorf builds an Error with a formatted message.
func NewErrorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf unwraps err looking for an Error and returns its code. Errors
// produced outside the core report InternalInconsistency so that nothing
// surfaces as an unclassified failure.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return InternalInconsistency
}

// KindOf classifies err per the propagation policy.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}

// IsCode reports whether err carries the given code.
func IsCode(err error, c Code) bool {
	return CodeOf(err) == c
}
