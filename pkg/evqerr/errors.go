// Package evqerr defines the error taxonomy shared by the storage and
// transport layers: a small set of abstract kinds wrapping the
// underlying cause, so callers can branch with errors.Is/As instead of
// string matching.
package evqerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error without tying callers to its source.
type Kind int

const (
	// KindInvalidArgument covers unsupported format versions and malformed frames.
	KindInvalidArgument Kind = iota
	// KindIOError covers short reads/writes and positional I/O/socket errors.
	KindIOError
	// KindTimeout covers a Connection's read or write deadline being exceeded.
	KindTimeout
	// KindProtocol covers an unexpected opcode mid-exchange.
	KindProtocol
	// KindNotFound covers a table or namespace lookup failing in a query op.
	KindNotFound
	// KindAuthRejected covers a HELLO_ACK never being received.
	KindAuthRejected
	// KindCorrupt covers a MetaBlock or page-index failing validation on read.
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindIOError:
		return "IOError"
	case KindTimeout:
		return "Timeout"
	case KindProtocol:
		return "Protocol"
	case KindNotFound:
		return "NotFound"
	case KindAuthRejected:
		return "AuthRejected"
	case KindCorrupt:
		return "Corrupt"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type used throughout evqlite.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, evqerr.New(kind, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err's kind equals kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
