/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package battle

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrLimitExceeded = errors.New("limit exceeded")
	ErrUnauthorized  = errors.New("not authorized")
	ErrInvalidState  = errors.New("invalid state")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyVoted  = errors.New("already voted")
)

// Error is returned by every lobby operation. Kind is one of the sentinel
// errors above and Message is safe to show to the player who caused it.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}
