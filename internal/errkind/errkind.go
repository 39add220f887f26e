// Package errkind defines the error taxonomy shared by the bitmap engine,
// event interceptor, and backup coordinator.
package errkind

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an error the way the plugin ABI expects: as a small
// fixed enum rather than an arbitrary error chain.
type Kind int

const (
	Success Kind = iota
	InvalidParam
	InitFailed
	NotInitialized
	MemoryAlloc
	FileIO
	Network
	Timeout
	DataCorruption
	PermissionDenied
	DiskFull
	ConnectionLost
	RetryExhausted
	InvalidStateTransition
	BlockNotFound
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "Success"
	case InvalidParam:
		return "InvalidParam"
	case InitFailed:
		return "InitFailed"
	case NotInitialized:
		return "NotInitialized"
	case MemoryAlloc:
		return "MemoryAlloc"
	case FileIO:
		return "FileIO"
	case Network:
		return "Network"
	case Timeout:
		return "Timeout"
	case DataCorruption:
		return "DataCorruption"
	case PermissionDenied:
		return "PermissionDenied"
	case DiskFull:
		return "DiskFull"
	case ConnectionLost:
		return "ConnectionLost"
	case RetryExhausted:
		return "RetryExhausted"
	case InvalidStateTransition:
		return "InvalidStateTransition"
	case BlockNotFound:
		return "BlockNotFound"
	default:
		return "Unknown"
	}
}

// Retryable reports whether the coordinator's retry policy should attempt
// the operation again after this kind of failure.
func (k Kind) Retryable() bool {
	switch k {
	case Network, Timeout, ConnectionLost, FileIO:
		return true
	default:
		return false
	}
}

// Error is a Kind-tagged error wrapping an optional underlying cause. New
// and Wrap capture a pkg/errors stack trace at the point of construction
// so the coordinator's last-error slot can report where a failure actually
// originated, not just its message.
type Error struct {
	Kind  Kind
	Msg   string
	Err   error
	stack error // pkg/errors-annotated for StackTrace()
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, stack: pkgerrors.New(msg)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err, stack: pkgerrors.WithMessage(pkgerrors.WithStack(err), msg)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// StackTrace returns the pkg/errors frames captured when this error was
// built, formatted one frame per line, deepest call first.
func (e *Error) StackTrace() string {
	if e.stack == nil {
		return ""
	}
	type stackTracer interface {
		StackTrace() pkgerrors.StackTrace
	}
	var st stackTracer
	if !errors.As(e.stack, &st) {
		return ""
	}
	return fmt.Sprintf("%+v", st.StackTrace())
}

// Of extracts the Kind from any error, returning Unknown if err isn't one
// of ours (or Success if err is nil).
func Of(err error) Kind {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
