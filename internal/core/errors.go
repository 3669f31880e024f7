package core

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the caller. NotFound deliberately covers
// both missing rows and rows outside the requester's scope.
type Kind int

const (
	KindOperationFailed Kind = iota
	KindValidationFailed
	KindUnauthorized
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidationFailed:
		return "validation_failed"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	default:
		return "operation_failed"
	}
}

// Sentinels returned by stores and wrapped with context.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Invalid reports a ValidationFailed error whose message is err's text.
func Invalid(err error) error {
	return &Error{Kind: KindValidationFailed, Message: err.Error()}
}

func Invalidf(format string, args ...any) error {
	return &Error{Kind: KindValidationFailed, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func NotFound(entity string) error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

func OperationFailed(op string, err error) error {
	return &Error{Kind: KindOperationFailed, Op: op, Message: "operation failed", Err: err}
}

// KindOf classifies err. Bare ErrNotFound maps to NotFound; anything
// unclassified is an OperationFailed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindOperationFailed
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindOperationFailed {
		return e.Message
	}
	if errors.Is(err, ErrNotFound) {
		return "not found"
	}
	return "internal error"
}
