package fault

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error.
type Kind int

// error kinds - keep in alphabetic order after KindUnknown
const (
	KindUnknown Kind = iota
	KindDegenerate
	KindExhausted
	KindFormat
	KindInvalid
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindDegenerate:
		return "degenerate input"
	case KindExhausted:
		return "exhausted iterator"
	case KindFormat:
		return "format"
	case KindInvalid:
		return "invalid argument"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the operation that failed and
// Path the file involved, if any.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap allows errors.Is and errors.As to see the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Cause matches the github.com/pkg/errors causer interface.
func (e *Error) Cause() error { return e.Err }

// IO reports a missing, unreadable or truncated file.
func IO(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// Format reports an unrecognised file type or a malformed array or record.
func Format(op, path string, err error) error {
	return &Error{Kind: KindFormat, Op: op, Path: path, Err: err}
}

// Formatf is Format with a formatted message.
func Formatf(op, path, format string, args ...interface{}) error {
	return Format(op, path, errors.Errorf(format, args...))
}

// Degenerate reports input that cannot be normalised, e.g. a cloud whose
// coordinates are all equal.
func Degenerate(op string, err error) error {
	return &Error{Kind: KindDegenerate, Op: op, Err: err}
}

// Exhausted reports a batch requested after the end of an epoch.
func Exhausted(op string, cursor, batches int) error {
	return &Error{Kind: KindExhausted, Op: op, Err: errors.Errorf("batch %d requested, epoch has %d", cursor, batches)}
}

// Invalid reports a bad argument such as an out of range index.
func Invalid(op string, err error) error {
	return &Error{Kind: KindInvalid, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in the chain of err, or
// KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// determine the class of an error
func IsDegenerate(err error) bool { return KindOf(err) == KindDegenerate }
func IsExhausted(err error) bool  { return KindOf(err) == KindExhausted }
func IsFormat(err error) bool     { return KindOf(err) == KindFormat }
func IsInvalid(err error) bool    { return KindOf(err) == KindInvalid }
func IsIO(err error) bool         { return KindOf(err) == KindIO }
