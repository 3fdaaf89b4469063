package kernel

import "errors"

// Sentinel errors for the §7 failure kinds. The public package wraps
// these with operation context; the syscall ABI flattens them to -1.
var (
	ErrBadDescriptor = errors.New("bad file descriptor")
	ErrBadArgument   = errors.New("bad argument")
	ErrBadAddress    = errors.New("bad user address")
	ErrNoProcSlot    = errors.New("process table full")
	ErrNoFDSlot      = errors.New("descriptor table full")
	ErrNoFileSlot    = errors.New("open-file table full")
	ErrBrokenPipe    = errors.New("broken pipe")
	ErrNoSuchTask    = errors.New("no such task")
	ErrNoChild       = errors.New("no child to wait for")
	ErrNoFilesystem  = errors.New("no filesystem mounted")
	ErrNotSeekable   = errors.New("descriptor not seekable")
)
