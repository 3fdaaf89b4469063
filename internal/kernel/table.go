package kernel

import (
	"github.com/ehrlich-b/go-kern/internal/mm"
	"github.com/ehrlich-b/go-kern/internal/trap"
)

// Simulated base of user mappings; user-process memory for syscall
// arguments lives here.
const userBase = 0x08048000

// freeSlotLocked returns the index of a free process-table slot, or -1.
// Slot 0 belongs to the idle task and is never handed out.
func (k *Kernel) freeSlotLocked() int {
	for i := 1; i < len(k.tasks); i++ {
		if k.tasks[i] == nil || k.tasks[i].state == StateFree {
			return i
		}
	}
	return -1
}

// SpawnKernelThread allocates a process-table slot for a kernel
// thread: a fresh kernel stack with a synthetic ring-0 frame at its
// top whose instruction pointer is the thread entry and whose flags
// have interrupts enabled. The task shares the kernel address space.
// parent may be nil, leaving the idle task as the reaper of record.
func (k *Kernel) SpawnKernelThread(parent *Task, entry func(*Task)) (*Task, error) {
	k.intr.Lock()
	defer k.intr.Unlock()

	slot := k.freeSlotLocked()
	if slot < 0 {
		return nil, ErrNoProcSlot
	}
	id := k.nextID
	t, err := k.newTask(id, slot)
	if err != nil {
		return nil, err
	}
	k.nextID++
	t.entry = entry
	if parent != nil {
		t.parent = parent.id
		k.inheritFDsLocked(t, parent)
	} else if err := k.bindConsoleLocked(t); err != nil {
		k.frames.FreePage(t.kstackFN)
		return nil, err
	}

	f := trap.NewKernelFrame(ktextBase + uint32(id)*0x10)
	f.Vector = trap.VecTimer
	f.EncodeAt(t.kstack)
	t.frame = f
	t.savedSP = t.stackTop - uint32(f.ImageBytes())
	t.savedBP = t.stackTop

	t.state = StateReady
	t.readyAt = now()
	k.tasks[slot] = t
	k.observer.ObserveSpawn()
	k.logger.Debugf("spawned kernel thread %d in slot %d", id, slot)

	go k.run(t)
	k.kickIdleLocked(t)
	return t, nil
}

// SpawnUserProcess allocates a slot for a ring-3 process: the trap
// frame describes a user-mode resume at eip/esp under the
// caller-prepared page directory pd, the descriptor table is inherited
// from parent (or, with no parent, 0/1/2 are bound to the console), and
// one page of user memory backs syscall arguments.
// entry stands in for the user text the machine would iret into.
func (k *Kernel) SpawnUserProcess(parent *Task, pd uint32, eip, esp uint32, entry func(*Task)) (*Task, error) {
	k.intr.Lock()
	defer k.intr.Unlock()

	if !k.spaces.Live(pd) || pd == mm.KernelSpace {
		return nil, ErrBadArgument
	}
	slot := k.freeSlotLocked()
	if slot < 0 {
		return nil, ErrNoProcSlot
	}
	id := k.nextID
	t, err := k.newTask(id, slot)
	if err != nil {
		return nil, err
	}
	k.nextID++
	t.entry = entry
	t.pageDir = pd
	if parent != nil {
		t.parent = parent.id
	}

	umem, upfn, err := k.frames.AllocPage()
	if err != nil {
		k.frames.FreePage(t.kstackFN)
		return nil, err
	}
	t.userMem = umem
	t.userMemFN = upfn
	t.brk = userBase + mm.PageSize
	t.vmas = append(t.vmas, mm.VMA{
		Start: userBase,
		End:   userBase + mm.PageSize,
		Prot:  mm.ProtRead | mm.ProtWrite,
	})

	if parent != nil {
		k.inheritFDsLocked(t, parent)
	} else if err := k.bindConsoleLocked(t); err != nil {
		k.frames.FreePage(t.kstackFN)
		k.frames.FreePage(upfn)
		return nil, err
	}

	f := trap.NewUserFrame(eip, esp)
	f.Vector = trap.VecTimer
	f.EncodeAt(t.kstack)
	t.frame = f
	t.savedSP = t.stackTop - uint32(f.ImageBytes())
	t.savedBP = t.stackTop

	t.state = StateReady
	t.readyAt = now()
	k.tasks[slot] = t
	k.observer.ObserveSpawn()
	k.logger.Debugf("spawned user process %d in slot %d pd %d", id, slot, pd)

	go k.run(t)
	k.kickIdleLocked(t)
	return t, nil
}

// NumTasks counts live (non-free) table slots, the idle task included.
func (k *Kernel) NumTasks() int {
	k.intr.Lock()
	defer k.intr.Unlock()
	n := 0
	for _, t := range k.tasks {
		if t != nil && t.state != StateFree {
			n++
		}
	}
	return n
}
