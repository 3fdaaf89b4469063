// Package kern provides the main API for booting and driving a
// simulated single-CPU kernel: a fixed process table under a
// round-robin preemptive scheduler, wait-queue-based blocking
// primitives, pipes, and a per-task descriptor layer.
package kern

import (
	"context"
	"io"

	"github.com/ehrlich-b/go-kern/internal/dev"
	"github.com/ehrlich-b/go-kern/internal/fs"
	"github.com/ehrlich-b/go-kern/internal/iface"
	"github.com/ehrlich-b/go-kern/internal/kernel"
	"github.com/ehrlich-b/go-kern/internal/logging"
	"github.com/ehrlich-b/go-kern/internal/mm"
)

// Task is one process-table record; blocking operations take the
// calling task explicitly, the way the machine's implicit current-task
// register would.
type Task = kernel.Task

// State is a task's lifecycle state.
type State = kernel.State

// Lifecycle states.
const (
	StateFree    = kernel.StateFree
	StateNew     = kernel.StateNew
	StateReady   = kernel.StateReady
	StateRunning = kernel.StateRunning
	StateBlocked = kernel.StateBlocked
	StateZombie  = kernel.StateZombie
)

// Blocking primitives, all built on wait queues.
type (
	Mutex     = kernel.Mutex
	Semaphore = kernel.Semaphore
	Cond      = kernel.Cond
	RWLock    = kernel.RWLock
	WaitQueue = kernel.WaitQueue
)

// Console input events.
type (
	KeyEvent = dev.KeyEvent
	KeyKind  = dev.KeyKind
)

const (
	KeyChar      = dev.KeyChar
	KeyEnter     = dev.KeyEnter
	KeyBackspace = dev.KeyBackspace
	KeyOther     = dev.KeyOther
)

// Filesystem is the collaborator interface byte-stream descriptors
// delegate to; the default is the in-memory store.
type Filesystem = iface.Filesystem

// Logger interface for optional logging.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Params contains the capacities of a kernel instance.
type Params struct {
	MaxProcs   int // process-table slots, idle task included
	MaxFDs     int // descriptor-table entries per task
	OpenFiles  int // shared open-file table slots
	PipeBuf    int // pipe ring capacity in bytes
	ClockHz    int // periodic tick rate for StartClock
	ArenaPages int // physical frames backing kernel stacks
}

// DefaultParams returns the default capacities.
func DefaultParams() Params {
	return Params{
		MaxProcs:   MaxProcs,
		MaxFDs:     MaxFDs,
		OpenFiles:  OpenFiles,
		PipeBuf:    PipeBufSize,
		ClockHz:    ClockHz,
		ArenaPages: ArenaPages,
	}
}

// Options contains additional wiring for Boot.
type Options struct {
	// Logger for debug/info messages (if nil, the package default)
	Logger Logger

	// Observer for metrics collection (if nil, the built-in Metrics)
	Observer Observer

	// Terminal receives console writes (if nil, they are discarded)
	Terminal io.Writer

	// Filesystem backs byte-stream descriptors (if nil, a fresh
	// in-memory store)
	Filesystem Filesystem
}

// Kernel is one booted machine.
type Kernel struct {
	core    *kernel.Kernel
	clock   *dev.Clock
	spaces  *mm.SpaceTable
	metrics *Metrics
	fsys    Filesystem
}

// Boot constructs a kernel: process table with the idle task current,
// interrupt gate wired for the timer and system-call vectors, console
// and filesystem collaborators attached.
//
// Example:
//
//	k, err := kern.Boot(kern.DefaultParams(), nil)
//	t, _ := k.SpawnKernelThread(func(t *kern.Task) { ... })
func Boot(params Params, options *Options) (*Kernel, error) {
	if options == nil {
		options = &Options{}
	}

	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if options.Observer != nil {
		observer = options.Observer
		metrics = nil
	}

	fsys := options.Filesystem
	if fsys == nil {
		fsys = fs.NewStore()
	}

	var logger iface.Logger
	if options.Logger != nil {
		logger = options.Logger
	} else {
		logger = logging.Default().With("kern")
	}

	spaces := mm.NewSpaceTable()
	core, err := kernel.New(kernel.Config{
		MaxProcs:  params.MaxProcs,
		MaxFDs:    params.MaxFDs,
		OpenFiles: params.OpenFiles,
		PipeBuf:   params.PipeBuf,
		Frames:    mm.NewFrameAllocator(params.ArenaPages),
		Spaces:    spaces,
		FS:        fsys,
		Term:      dev.WriterTerminal{W: options.Terminal},
		Logger:    logger,
		Observer:  observer,
	})
	if err != nil {
		return nil, WrapError("BOOT", err)
	}

	k := &Kernel{
		core:    core,
		spaces:  spaces,
		metrics: metrics,
		fsys:    fsys,
	}
	k.clock = &dev.Clock{Hz: params.ClockHz, Fire: core.Tick}
	return k, nil
}

// Tick raises one timer interrupt synchronously. Tests drive the
// scheduler with it; StartClock does the same from a ticker.
func (k *Kernel) Tick() {
	k.core.Tick()
}

// StartClock begins periodic ticking at the configured rate until the
// context is cancelled or StopClock is called.
func (k *Kernel) StartClock(ctx context.Context) {
	k.clock.Start(ctx)
}

// StopClock halts the periodic tick.
func (k *Kernel) StopClock() {
	k.clock.Stop()
}

// Current returns the task the scheduler is running right now.
func (k *Kernel) Current() *Task {
	return k.core.Current()
}

// StateOf reports a task's lifecycle state under the interrupt gate.
func (k *Kernel) StateOf(t *Task) State {
	return k.core.StateOf(t)
}

// NumTasks counts live process-table slots, the idle task included.
func (k *Kernel) NumTasks() int {
	return k.core.NumTasks()
}

// Validate checks the core's interrupt-safe invariants; see the
// package tests for the full set.
func (k *Kernel) Validate() error {
	return k.core.Validate()
}

// Metrics returns the kernel's built-in metrics, nil if a custom
// observer displaced them.
func (k *Kernel) Metrics() *Metrics {
	return k.metrics
}

// SpawnKernelThread creates a Ready kernel thread that shares the
// kernel address space. The entry function runs on the thread's own
// goroutine once the scheduler first grants it the CPU; returning from
// entry exits with status 0.
func (k *Kernel) SpawnKernelThread(entry func(*Task)) (*Task, error) {
	t, err := k.core.SpawnKernelThread(nil, entry)
	if err != nil {
		return nil, WrapError("SPAWN", err)
	}
	return t, nil
}

// SpawnChild is SpawnKernelThread with the caller recorded as parent,
// so the child is reaped through the parent's Waitpid.
func (k *Kernel) SpawnChild(parent *Task, entry func(*Task)) (*Task, error) {
	t, err := k.core.SpawnKernelThread(parent, entry)
	if err != nil {
		return nil, WrapError("SPAWN", err)
	}
	return t, nil
}

// NewAddressSpace prepares a user page directory for SpawnUserProcess.
func (k *Kernel) NewAddressSpace() uint32 {
	return k.spaces.NewSpace()
}

// SpawnUserProcess creates a ring-3 process: a synthetic user-mode
// trap frame at eip/esp under the page directory pd, descriptors 0/1/2
// bound to the console, and a page of user memory at UserBase. The
// entry function stands in for the user text.
func (k *Kernel) SpawnUserProcess(pd uint32, eip, esp uint32, entry func(*Task)) (*Task, error) {
	t, err := k.core.SpawnUserProcess(nil, pd, eip, esp, entry)
	if err != nil {
		return nil, WrapError("SPAWN", err)
	}
	return t, nil
}

// Exit terminates the calling task with status; control never returns.
func (k *Kernel) Exit(t *Task, status int) {
	k.core.Exit(t, status)
}

// Kill terminates another task by id.
func (k *Kernel) Kill(pid int) error {
	if err := k.core.Kill(pid); err != nil {
		return WrapPidError("KILL", pid, err)
	}
	return nil
}

// Signal delivers sig to pid. Every signal the kernel knows is fatal.
func (k *Kernel) Signal(pid int, sig uint32) error {
	if err := k.core.Signal(pid, sig); err != nil {
		return WrapPidError("SIGNAL", pid, err)
	}
	return nil
}

// Waitpid blocks the calling task until the named child (any child
// when pid < 0) is a Zombie, reaps it, and returns its id and status.
func (k *Kernel) Waitpid(t *Task, pid int) (int, int, error) {
	id, status, err := k.core.Waitpid(t, pid)
	if err != nil {
		return 0, 0, WrapPidError("WAITPID", pid, err)
	}
	return id, status, nil
}

// Reap collects one exited task whose parent of record is the idle
// task (one spawned without a parent); the join point for tasks
// spawned from outside the machine.
func (k *Kernel) Reap() (int, int, error) {
	id, status, err := k.core.Reap()
	if err != nil {
		return 0, 0, WrapError("REAP", err)
	}
	return id, status, nil
}

// Yield enters the scheduler synchronously, running the next Ready
// peer in round-robin order if one exists.
func (k *Kernel) Yield(t *Task) {
	k.core.Yield(t)
}

// Lock constructors.
func (k *Kernel) NewMutex() *Mutex              { return k.core.NewMutex() }
func (k *Kernel) NewSemaphore(n int) *Semaphore { return k.core.NewSemaphore(n) }
func (k *Kernel) NewCond() *Cond                { return k.core.NewCond() }
func (k *Kernel) NewRWLock() *RWLock            { return k.core.NewRWLock() }

// Pipe allocates a pipe and installs its read and write endpoints at
// the caller's two lowest free descriptors.
func (k *Kernel) Pipe(t *Task) (rfd, wfd int, err error) {
	rfd, wfd, err = k.core.Pipe(t)
	if err != nil {
		return 0, 0, WrapError("PIPE", err)
	}
	return rfd, wfd, nil
}

// Open installs a byte-stream descriptor for path.
func (k *Kernel) Open(t *Task, path string, flags int) (int, error) {
	fd, err := k.core.Open(t, path, flags)
	if err != nil {
		return -1, WrapError("OPEN", err)
	}
	return fd, nil
}

// Close releases a descriptor.
func (k *Kernel) Close(t *Task, fd int) error {
	if err := k.core.Close(t, fd); err != nil {
		return WrapFdError("CLOSE", fd, err)
	}
	return nil
}

// Read transfers up to len(b) bytes from the descriptor. A return of
// 0 with a nil error is end-of-file.
func (k *Kernel) Read(t *Task, fd int, b []byte) (int, error) {
	n, err := k.core.Read(t, fd, b)
	if err != nil {
		return n, WrapFdError("READ", fd, err)
	}
	return n, nil
}

// Write transfers up to len(b) bytes to the descriptor. A pipe write
// with no reader returns -1 and a broken-pipe error with nothing
// buffered.
func (k *Kernel) Write(t *Task, fd int, b []byte) (int, error) {
	n, err := k.core.Write(t, fd, b)
	if err != nil {
		return n, WrapFdError("WRITE", fd, err)
	}
	return n, nil
}

// Dup installs a second descriptor for fd's open-file slot.
func (k *Kernel) Dup(t *Task, fd int) (int, error) {
	nfd, err := k.core.Dup(t, fd)
	if err != nil {
		return -1, WrapFdError("DUP", fd, err)
	}
	return nfd, nil
}

// SendFD shares one of from's descriptors with another task. Children
// spawned with SpawnChild inherit the parent's whole table instead.
func (k *Kernel) SendFD(from, to *Task, fd int) (int, error) {
	nfd, err := k.core.SendFD(from, to, fd)
	if err != nil {
		return -1, WrapFdError("SENDFD", fd, err)
	}
	return nfd, nil
}

// Seek repositions a byte-stream descriptor.
func (k *Kernel) Seek(t *Task, fd int, off int64, whence int) (int64, error) {
	pos, err := k.core.Seek(t, fd, off, whence)
	if err != nil {
		return 0, WrapFdError("SEEK", fd, err)
	}
	return pos, nil
}

// Syscall enters the kernel through the system-call vector with the
// number in EAX and arguments in EBX/CX/DX, returning the EAX result.
func (k *Kernel) Syscall(t *Task, num, a1, a2, a3 uint32) uint32 {
	return k.core.Syscall(t, num, a1, a2, a3)
}

// CopyToUser stages bytes into a user process's memory.
func (k *Kernel) CopyToUser(t *Task, addr uint32, b []byte) error {
	if err := k.core.CopyToUser(t, addr, b); err != nil {
		return WrapError("COPYOUT", err)
	}
	return nil
}

// PostKey delivers one keyboard event from the keyboard driver.
func (k *Kernel) PostKey(ev KeyEvent) {
	k.core.PostKey(ev)
}

// TypeString decodes s byte by byte and posts the resulting key
// events, as if typed on the keyboard.
func (k *Kernel) TypeString(s string) {
	for i := 0; i < len(s); i++ {
		k.core.PostKey(dev.DecodeKey(s[i]))
	}
}

// SleepOn parks the calling task on q until another task wakes it.
func (k *Kernel) SleepOn(q *WaitQueue, t *Task) {
	k.core.SleepOn(q, t)
}

// WakeOne wakes the oldest sleeper on q, returning 1, or 0 when empty.
func (k *Kernel) WakeOne(q *WaitQueue) int {
	return k.core.WakeOne(q)
}

// WakeAll drains q, returning the number of tasks woken.
func (k *Kernel) WakeAll(q *WaitQueue) int {
	return k.core.WakeAll(q)
}

// UserBase returns the base address of the simulated user mapping.
func UserBase() uint32 {
	return kernel.UserBase()
}
