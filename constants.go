package kern

import (
	"github.com/ehrlich-b/go-kern/internal/kernel"
	"github.com/ehrlich-b/go-kern/internal/mm"
	"github.com/ehrlich-b/go-kern/internal/trap"
)

// Re-export capacities for public API
const (
	MaxProcs    = kernel.DefaultMaxProcs
	MaxFDs      = kernel.DefaultMaxFDs
	OpenFiles   = kernel.DefaultOpenFiles
	PipeBufSize = kernel.DefaultPipeBuf
	ClockHz     = 100
	ArenaPages  = mm.DefaultArenaPages
	PageSize    = mm.PageSize
	MaxVMAs     = mm.MaxVMAs
)

// Open flags
const (
	ORdOnly = kernel.ORdOnly
	OWrOnly = kernel.OWrOnly
	ORdWr   = kernel.ORdWr
	OCreate = kernel.OCreate
	OTrunc  = kernel.OTrunc
	OAppend = kernel.OAppend
)

// Seek whence values
const (
	SeekSet = kernel.SeekSet
	SeekCur = kernel.SeekCur
	SeekEnd = kernel.SeekEnd
)

// System call numbers; part of the user ABI, append-only
const (
	SysExit  = trap.SysExit
	SysWrite = trap.SysWrite
)

// Signal numbers; all fatal, none catchable
const (
	SIGKILL = trap.SIGKILL
	SIGSEGV = trap.SIGSEGV
	SIGPIPE = trap.SIGPIPE
)
