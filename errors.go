package kern

import (
	"errors"
	"fmt"

	"github.com/ehrlich-b/go-kern/internal/kernel"
)

// Error represents a structured kernel error with operation context
type Error struct {
	Op    string        // Operation that failed (e.g., "SPAWN", "READ")
	Pid   int           // Task id (-1 if not applicable)
	Fd    int           // Descriptor (-1 if not applicable)
	Code  KernErrorCode // High-level error category
	Msg   string        // Human-readable message
	Inner error         // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	ctx := ""
	if e.Op != "" {
		ctx = fmt.Sprintf(" (op=%s", e.Op)
		if e.Pid >= 0 {
			ctx += fmt.Sprintf(" pid=%d", e.Pid)
		}
		if e.Fd >= 0 {
			ctx += fmt.Sprintf(" fd=%d", e.Fd)
		}
		ctx += ")"
	}
	return fmt.Sprintf("kern: %s%s", msg, ctx)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support against other structured errors
func (e *Error) Is(target error) bool {
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// KernErrorCode represents high-level error categories, matching the
// failure kinds the core distinguishes.
type KernErrorCode string

const (
	ErrCodeBadArgument   KernErrorCode = "bad argument"
	ErrCodeBadDescriptor KernErrorCode = "bad file descriptor"
	ErrCodeBadAddress    KernErrorCode = "bad user address"
	ErrCodeExhausted     KernErrorCode = "resource exhausted"
	ErrCodeBrokenPipe    KernErrorCode = "broken pipe"
	ErrCodeNoSuchTask    KernErrorCode = "no such task"
	ErrCodeNoChild       KernErrorCode = "no child to wait for"
	ErrCodeNotSeekable   KernErrorCode = "descriptor not seekable"
	ErrCodeNotFound      KernErrorCode = "not found"
)

// Error constructors

// NewError creates a new structured error
func NewError(op string, code KernErrorCode, msg string) *Error {
	return &Error{Op: op, Pid: -1, Fd: -1, Code: code, Msg: msg}
}

// WrapError wraps an internal error with operation context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ke, ok := inner.(*Error); ok {
		return &Error{Op: op, Pid: ke.Pid, Fd: ke.Fd, Code: ke.Code, Msg: ke.Msg, Inner: ke.Inner}
	}
	return &Error{
		Op:    op,
		Pid:   -1,
		Fd:    -1,
		Code:  mapSentinelToCode(inner),
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// WrapFdError wraps an error that concerns a specific descriptor
func WrapFdError(op string, fd int, inner error) *Error {
	e := WrapError(op, inner)
	if e != nil {
		e.Fd = fd
	}
	return e
}

// WrapPidError wraps an error that concerns a specific task
func WrapPidError(op string, pid int, inner error) *Error {
	e := WrapError(op, inner)
	if e != nil {
		e.Pid = pid
	}
	return e
}

// mapSentinelToCode maps kernel sentinel errors to error codes
func mapSentinelToCode(err error) KernErrorCode {
	switch {
	case errors.Is(err, kernel.ErrBadDescriptor):
		return ErrCodeBadDescriptor
	case errors.Is(err, kernel.ErrBadArgument):
		return ErrCodeBadArgument
	case errors.Is(err, kernel.ErrBadAddress):
		return ErrCodeBadAddress
	case errors.Is(err, kernel.ErrNoProcSlot),
		errors.Is(err, kernel.ErrNoFDSlot),
		errors.Is(err, kernel.ErrNoFileSlot):
		return ErrCodeExhausted
	case errors.Is(err, kernel.ErrBrokenPipe):
		return ErrCodeBrokenPipe
	case errors.Is(err, kernel.ErrNoSuchTask):
		return ErrCodeNoSuchTask
	case errors.Is(err, kernel.ErrNoChild):
		return ErrCodeNoChild
	case errors.Is(err, kernel.ErrNotSeekable):
		return ErrCodeNotSeekable
	default:
		return ErrCodeNotFound
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code KernErrorCode) bool {
	var kernErr *Error
	if errors.As(err, &kernErr) {
		return kernErr.Code == code
	}
	return false
}
