package kernel

import (
	"fmt"
	"runtime"

	"github.com/ehrlich-b/go-kern/internal/mm"
	"github.com/ehrlich-b/go-kern/internal/trap"
)

// State is a task's lifecycle state.
type State int

const (
	StateFree State = iota
	StateNew
	StateReady
	StateRunning
	StateBlocked
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateZombie:
		return "zombie"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Task is one process-table record. Apart from the gate and done
// channels, its fields are mutated only under the kernel's intr gate.
type Task struct {
	id   int
	slot int

	state State

	// Kernel stack: one page, plus its simulated top-of-stack address.
	kstack   []byte
	kstackFN uint32
	stackTop uint32

	// Saved register context while descheduled.
	savedSP uint32
	savedBP uint32

	// Last interrupt frame placed on the kernel stack.
	frame *trap.Frame

	// Address-space identifier; mm.KernelSpace means the task shares
	// the kernel's mappings.
	pageDir uint32

	// Simulated user memory backing syscall-argument access for user
	// processes. Nil for kernel threads.
	userMem   []byte
	userMemFN uint32

	// Descriptor table: open-file slot index or fdFree.
	fds []int

	parent     int
	exitStatus int

	// Queue the parent sleeps on in child-wait.
	waitChildren WaitQueue

	cwd        string
	sigPending uint32
	brk        uint32
	vmas       []mm.VMA

	// readyAt stamps the Blocked->Ready transition for wake-to-run
	// latency accounting.
	readyAt int64

	// gate is the CPU grant: the scheduler deposits one token when it
	// switches to the task; the task's goroutine consumes it when
	// parked at a kernel crossing.
	gate chan struct{}

	// done is closed when the task goroutine ends.
	done chan struct{}

	entry func(*Task)
}

const fdFree = -1

// ID returns the task id.
func (t *Task) ID() int { return t.id }

// Parent returns the parent task id.
func (t *Task) Parent() int { return t.parent }

// PageDir returns the task's address-space identifier.
func (t *Task) PageDir() uint32 { return t.pageDir }

// Frame returns the task's saved interrupt frame.
func (t *Task) Frame() *trap.Frame { return t.frame }

// StackTop returns the simulated top-of-stack address of the task's
// kernel stack.
func (t *Task) StackTop() uint32 { return t.stackTop }

// CWD returns the task's working-directory handle. Immutable until a
// path layer grows a chdir.
func (t *Task) CWD() string { return t.cwd }

// Brk returns the end-of-user-heap marker; zero for kernel threads.
func (t *Task) Brk() uint32 { return t.brk }

// Done is closed when the task's goroutine has ended. It is the
// join point for callers outside the simulated machine.
func (t *Task) Done() <-chan struct{} { return t.done }

// grant deposits the CPU token; at most one is ever outstanding.
func (t *Task) grant() {
	select {
	case t.gate <- struct{}{}:
	default:
	}
}

// waitGrant parks until the scheduler grants the CPU.
func (t *Task) waitGrant() {
	<-t.gate
}

// drainGrant removes a stale token left from a grant that raced a
// crossing where the task never parked.
func (t *Task) drainGrant() {
	select {
	case <-t.gate:
	default:
	}
}

// newTask builds a task record in slot with a freshly allocated kernel
// stack. The caller assigns id, frame, and state.
func (k *Kernel) newTask(id, slot int) (*Task, error) {
	page, pfn, err := k.frames.AllocPage()
	if err != nil {
		return nil, err
	}
	t := &Task{
		id:       id,
		slot:     slot,
		state:    StateNew,
		kstack:   page,
		kstackFN: pfn,
		stackTop: kstackBase + uint32(slot)*mm.PageSize + mm.PageSize,
		pageDir:  mm.KernelSpace,
		fds:      make([]int, k.cfg.MaxFDs),
		parent:   0,
		cwd:      "/",
		gate:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for i := range t.fds {
		t.fds[i] = fdFree
	}
	return t, nil
}

// run is the task goroutine body: wait for the first grant, execute
// the entry, and exit with status 0 if the entry returns normally.
// Exit and kill terminate the goroutine through runtime.Goexit, which
// still runs the deferred close of done.
func (k *Kernel) run(t *Task) {
	defer close(t.done)

	k.intr.Lock()
	k.waitRunnable(t)
	k.intr.Unlock()

	if t.entry != nil {
		t.entry(t)
	}
	k.Exit(t, 0)
}

// waitRunnable parks t until the scheduler has made it current again.
// Called with intr held; returns with intr held and t current. If t
// was terminated while parked, the goroutine ends here.
func (k *Kernel) waitRunnable(t *Task) {
	for {
		if t.state == StateZombie || t.state == StateFree {
			k.intr.Unlock()
			runtime.Goexit()
		}
		if k.cur == t {
			t.drainGrant()
			break
		}
		k.intr.Unlock()
		t.waitGrant()
		k.intr.Lock()
	}
	if t.sigPending != 0 {
		sig := lowestSignal(t.sigPending)
		k.exitLocked(t, 128+int(sig))
	}
}

// enter is the kernel crossing every public operation passes through:
// it disables interrupts, waits until the caller is the running task,
// and delivers any pending fatal signal. Returns with intr held.
func (k *Kernel) enter(t *Task) {
	k.intr.Lock()
	k.waitRunnable(t)
}

// lowestSignal returns the lowest set signal number in a pending mask.
func lowestSignal(mask uint32) uint32 {
	for s := uint32(1); s < 32; s++ {
		if mask&(1<<s) != 0 {
			return s
		}
	}
	return 0
}
