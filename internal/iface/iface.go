// Package iface provides internal interface definitions for go-kern.
// These are separate from the public interfaces to avoid circular
// imports between the main package and internal packages.
package iface

// Logger interface for optional logging.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer interface for metrics collection. Implementations must be
// thread-safe; methods are called from the scheduler and device paths.
type Observer interface {
	ObserveTick()
	ObserveSwitch(wakeLatencyNs uint64)
	ObservePreempt()
	ObserveBlock()
	ObserveWakeup(count int)
	ObserveSpawn()
	ObserveExit()
	ObservePipeRead(bytes uint64)
	ObservePipeWrite(bytes uint64)
	ObserveSyscall(num uint32)
}

// InodeType distinguishes the objects a filesystem inode can name.
type InodeType int

const (
	InodeFile InodeType = iota
	InodeDir
)

// Filesystem is the collaborator interface the descriptor layer
// delegates byte-stream slots to.
type Filesystem interface {
	// Resolve returns the inode named by path, or an error if it does
	// not exist.
	Resolve(path string) (int, error)

	// Create makes a new empty file inode at path, returning the
	// existing inode if path already names one.
	Create(path string) (int, error)

	// Truncate discards a file inode's contents.
	Truncate(ino int) error

	ReadAt(ino int, p []byte, off int64) (int, error)
	WriteAt(ino int, p []byte, off int64) (int, error)

	// Size returns the current byte length of a file inode.
	Size(ino int) (int64, error)

	// TypeOf reports whether ino names a file or a directory.
	TypeOf(ino int) (InodeType, error)
}
