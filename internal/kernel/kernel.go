// Package kernel implements the process and synchronization core: the
// process table, the round-robin preemptive scheduler, wait queues and
// the blocking primitives built on them, pipes, and the descriptor
// layer.
//
// The package models a single-CPU machine. The intr mutex stands in
// for the processor's interrupt flag: holding it is the only mutual
// exclusion, exactly as save-interrupts/restore-interrupts is on the
// real machine. Every state transition described below happens under
// one hold of that gate.
//
// Schedulable entities are backed by goroutines, but only the task the
// scheduler bookkeeping marks Running holds the CPU grant; all other
// task goroutines are parked on their grant gate at a kernel crossing.
// A task demoted by a timer tick keeps executing non-kernel code until
// its next crossing, where it parks — kernel crossings are the
// simulator's suspension points.
package kernel

import (
	"fmt"
	"sync"
	"time"

	"github.com/ehrlich-b/go-kern/internal/dev"
	"github.com/ehrlich-b/go-kern/internal/iface"
	"github.com/ehrlich-b/go-kern/internal/logging"
	"github.com/ehrlich-b/go-kern/internal/mm"
	"github.com/ehrlich-b/go-kern/internal/trap"
)

// Default capacities.
const (
	DefaultMaxProcs  = 32
	DefaultMaxFDs    = 16
	DefaultOpenFiles = 64
	DefaultPipeBuf   = 4096
)

// Simulated layout of kernel stacks and kernel-thread entry points.
// The addresses only have to be distinct and stable; nothing
// dereferences them.
const (
	kstackBase = 0xFF400000
	ktextBase  = 0x00100000
)

// Config parameterizes a kernel instance.
type Config struct {
	MaxProcs  int
	MaxFDs    int
	OpenFiles int
	PipeBuf   int

	Frames *mm.FrameAllocator
	Spaces *mm.SpaceTable
	FS     iface.Filesystem
	Term   dev.Terminal

	Logger   iface.Logger
	Observer iface.Observer
}

// Kernel is one simulated machine's process and synchronization core.
type Kernel struct {
	cfg Config

	// intr is the interrupt gate. Everything below it is mutated only
	// while it is held.
	intr sync.Mutex

	tasks  []*Task
	cur    *Task
	cursor int
	nextID int

	// trapStack is the kernel-stack pointer the CPU would load on the
	// next trap from ring 3 (the TSS esp0 slot).
	trapStack uint32

	files []OpenFile

	// consoleSlots are the three boot-time console endpoints every
	// new task's descriptors 0/1/2 bind to (read, write, write). The
	// kernel itself holds one base reference on each so they survive
	// all tasks closing them.
	consoleSlots [3]int

	// Console state: buffered key events plus the queue console
	// readers sleep on.
	keys []dev.KeyEvent
	keyq WaitQueue

	// trapFrom maps an in-flight syscall frame to the task whose
	// kernel stack it sits on.
	trapFrom map[*trap.Frame]*Task

	gate   *trap.Gate
	frames *mm.FrameAllocator
	spaces *mm.SpaceTable
	fsys   iface.Filesystem
	term   dev.Terminal

	logger   iface.Logger
	observer iface.Observer
}

// New boots a kernel: builds the process table, installs the idle task
// as current, and wires the interrupt gate.
func New(cfg Config) (*Kernel, error) {
	if cfg.MaxProcs <= 0 {
		cfg.MaxProcs = DefaultMaxProcs
	}
	if cfg.MaxFDs <= 0 {
		cfg.MaxFDs = DefaultMaxFDs
	}
	if cfg.OpenFiles <= 0 {
		cfg.OpenFiles = DefaultOpenFiles
	}
	if cfg.PipeBuf <= 0 {
		cfg.PipeBuf = DefaultPipeBuf
	}
	if cfg.Frames == nil {
		cfg.Frames = mm.NewFrameAllocator(0)
	}
	if cfg.Spaces == nil {
		cfg.Spaces = mm.NewSpaceTable()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default().With("kern")
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}

	k := &Kernel{
		cfg:      cfg,
		tasks:    make([]*Task, cfg.MaxProcs),
		files:    make([]OpenFile, cfg.OpenFiles),
		gate:     trap.NewGate(),
		frames:   cfg.Frames,
		spaces:   cfg.Spaces,
		fsys:     cfg.FS,
		term:     cfg.Term,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}

	idle, err := k.newTask(0, 0)
	if err != nil {
		return nil, fmt.Errorf("boot: idle stack: %w", err)
	}
	idle.state = StateRunning
	idle.frame = trap.NewKernelFrame(ktextBase)
	k.tasks[0] = idle
	k.cur = idle
	k.trapStack = idle.stackTop
	k.nextID = 1

	for i, flags := range []int{ORdOnly, OWrOnly, OWrOnly} {
		slot, err := k.allocFileLocked()
		if err != nil {
			return nil, fmt.Errorf("boot: console slots: %w", err)
		}
		k.files[slot] = OpenFile{tag: TagConsole, refs: 1, flags: flags}
		k.consoleSlots[i] = slot
	}

	k.gate.Register(trap.VecTimer, k.timerHandler)
	k.gate.Register(trap.VecSyscall, k.syscallHandler)
	return k, nil
}

// Gate exposes the interrupt dispatch table so device drivers can
// deliver frames.
func (k *Kernel) Gate() *trap.Gate {
	return k.gate
}

// Current returns the task the scheduler currently runs.
func (k *Kernel) Current() *Task {
	k.intr.Lock()
	defer k.intr.Unlock()
	return k.cur
}

// TrapStackTop returns the kernel-stack pointer exposed to the CPU for
// the next ring-3 trap.
func (k *Kernel) TrapStackTop() uint32 {
	k.intr.Lock()
	defer k.intr.Unlock()
	return k.trapStack
}

// PostKey delivers one keyboard event from the keyboard driver and
// wakes console readers. Safe to call from any goroutine.
func (k *Kernel) PostKey(ev dev.KeyEvent) {
	k.intr.Lock()
	defer k.intr.Unlock()
	k.keys = append(k.keys, ev)
	k.wakeAllLocked(&k.keyq)
}

// taskByID finds a live task by id; O(n) over the fixed table.
func (k *Kernel) taskByID(pid int) *Task {
	for _, t := range k.tasks {
		if t != nil && t.id == pid && t.state != StateFree {
			return t
		}
	}
	return nil
}

// fatalf is the invariant-violation funnel: the simulator analog of
// logging and halting the CPU with interrupts disabled. It does not
// return.
func (k *Kernel) fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	k.logger.Printf("fatal: %s", msg)
	panic("kern: " + msg)
}

// now is the monotonic stamp used for wake-to-run latency accounting.
func now() int64 {
	return time.Now().UnixNano()
}

// noopObserver discards all observations.
type noopObserver struct{}

func (noopObserver) ObserveTick()            {}
func (noopObserver) ObserveSwitch(uint64)    {}
func (noopObserver) ObservePreempt()         {}
func (noopObserver) ObserveBlock()           {}
func (noopObserver) ObserveWakeup(int)       {}
func (noopObserver) ObserveSpawn()           {}
func (noopObserver) ObserveExit()            {}
func (noopObserver) ObservePipeRead(uint64)  {}
func (noopObserver) ObservePipeWrite(uint64) {}
func (noopObserver) ObserveSyscall(uint32)   {}

var _ iface.Observer = noopObserver{}
