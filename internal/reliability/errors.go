package reliability

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to callers.
type Kind string

const (
	KindBadRequest      Kind = "bad_request"
	KindUnsupportedKind Kind = "unsupported_kind"
	KindTransient       Kind = "transient"
	KindTimeout         Kind = "timeout"
	KindNotOpen         Kind = "not_open"
	KindInternal        Kind = "internal_error"
)

// Error is a failure with a kind and a human readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so errors.Is(err, &Error{Kind: KindNotOpen}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err. Context deadlines map to KindTimeout and
// anything unclassified is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsRetryable reports whether an operator (or auto-retry) may try again.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTransient, KindTimeout, KindInternal:
		return true
	default:
		return false
	}
}
