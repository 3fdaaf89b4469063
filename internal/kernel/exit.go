package kernel

import (
	"runtime"

	"github.com/ehrlich-b/go-kern/internal/mm"
	"github.com/ehrlich-b/go-kern/internal/trap"
)

// Exit terminates the calling task: every descriptor it owns is
// closed, its user address space is torn down after switching to the
// kernel's, its parent's child-wait queue is woken, and the scheduler
// runs something else. Control never returns.
func (k *Kernel) Exit(t *Task, status int) {
	k.enter(t)
	k.exitLocked(t, status)
}

// exitLocked is the terminal half of Exit. Pre-conditions: intr held,
// t is the current task. Never returns; the goroutine unwinds through
// runtime.Goexit after the switch away.
func (k *Kernel) exitLocked(t *Task, status int) {
	if t.slot == 0 {
		k.fatalf("idle task attempted to exit")
	}
	k.closeAllFDsLocked(t)
	if t.pageDir != mm.KernelSpace {
		if err := k.spaces.SetCurrent(mm.KernelSpace); err != nil {
			k.fatalf("exit: %v", err)
		}
		if err := k.spaces.Destroy(t.pageDir); err != nil {
			k.fatalf("exit: %v", err)
		}
		t.pageDir = mm.KernelSpace
	}
	k.releaseUserMemLocked(t)
	t.exitStatus = status
	t.state = StateZombie
	t.sigPending = 0
	k.observer.ObserveExit()
	k.logger.Debugf("task %d exited with status %d", t.id, status)
	if p := k.taskByID(t.parent); p != nil {
		k.wakeAllLocked(&p.waitChildren)
	}
	k.rescheduleLocked(t)
	k.intr.Unlock()
	runtime.Goexit()
}

// Kill terminates another task from the killer's perspective. If the
// victim is the running task, the teardown switches to the kernel
// address space before freeing the victim's, and the scheduler picks
// someone else; the victim's goroutine unwinds at its next crossing.
func (k *Kernel) Kill(pid int) error {
	k.intr.Lock()
	defer k.intr.Unlock()
	v := k.taskByID(pid)
	if v == nil || v.slot == 0 {
		return ErrNoSuchTask
	}
	if v.state == StateZombie {
		return nil
	}
	k.killLocked(v, 128+trap.SIGKILL)
	return nil
}

// killLocked tears down v without v's cooperation. Safe for Blocked,
// Ready, and Running victims; a Blocked victim's wait-queue entry is
// left behind and dropped lazily by the wake paths.
func (k *Kernel) killLocked(v *Task, status int) {
	k.closeAllFDsLocked(v)
	if v.pageDir != mm.KernelSpace {
		if k.spaces.Current() == v.pageDir {
			if err := k.spaces.SetCurrent(mm.KernelSpace); err != nil {
				k.fatalf("kill: %v", err)
			}
		}
		if err := k.spaces.Destroy(v.pageDir); err != nil {
			k.fatalf("kill: %v", err)
		}
		v.pageDir = mm.KernelSpace
	}
	k.releaseUserMemLocked(v)
	v.exitStatus = status
	v.state = StateZombie
	v.sigPending = 0
	k.observer.ObserveExit()
	k.logger.Debugf("task %d killed with status %d", v.id, status)
	if p := k.taskByID(v.parent); p != nil {
		k.wakeAllLocked(&p.waitChildren)
	}
	if v == k.cur {
		k.rescheduleLocked(v)
	}
	// Release a goroutine parked at a crossing so it can unwind.
	v.grant()
}

// Signal records sig as pending for pid. Every signal the kernel knows
// is fatal: a victim other than the running task is torn down on the
// spot; the running task dies at its next kernel crossing.
func (k *Kernel) Signal(pid int, sig uint32) error {
	switch sig {
	case trap.SIGKILL, trap.SIGSEGV, trap.SIGPIPE:
	default:
		return ErrBadArgument
	}
	k.intr.Lock()
	defer k.intr.Unlock()
	v := k.taskByID(pid)
	if v == nil || v.slot == 0 {
		return ErrNoSuchTask
	}
	if v.state == StateZombie {
		return nil
	}
	v.sigPending |= 1 << sig
	if v != k.cur {
		k.killLocked(v, 128+int(sig))
	}
	return nil
}

// Waitpid blocks the calling task until a child is a Zombie, reaps it
// (lowest id wins a tie), and returns its id and exit status. pid < 0
// waits for any child; otherwise only the named child qualifies.
func (k *Kernel) Waitpid(t *Task, pid int) (int, int, error) {
	k.enter(t)
	for {
		var z *Task
		haveChild := false
		for _, c := range k.tasks {
			if c == nil || c.state == StateFree || c.parent != t.id || c == t {
				continue
			}
			if pid >= 0 && c.id != pid {
				continue
			}
			haveChild = true
			if c.state == StateZombie && (z == nil || c.id < z.id) {
				z = c
			}
		}
		if z != nil {
			id, status := z.id, z.exitStatus
			k.reapLocked(z)
			k.intr.Unlock()
			return id, status, nil
		}
		if !haveChild {
			k.intr.Unlock()
			return 0, 0, ErrNoChild
		}
		k.sleepOn(&t.waitChildren, t)
	}
}

// Reap collects one Zombie whose parent is the idle task — the join
// point for tasks spawned from outside the machine. Returns ErrNoChild
// when no such Zombie exists.
func (k *Kernel) Reap() (int, int, error) {
	k.intr.Lock()
	defer k.intr.Unlock()
	var z *Task
	for _, c := range k.tasks {
		if c == nil || c.slot == 0 || c.state != StateZombie || c.parent != 0 {
			continue
		}
		if z == nil || c.id < z.id {
			z = c
		}
	}
	if z == nil {
		return 0, 0, ErrNoChild
	}
	id, status := z.id, z.exitStatus
	k.reapLocked(z)
	return id, status, nil
}

// reapLocked clears a Zombie's slot and frees its kernel stack.
func (k *Kernel) reapLocked(z *Task) {
	if z.state != StateZombie {
		k.fatalf("reaping task %d in state %s", z.id, z.state)
	}
	k.frames.FreePage(z.kstackFN)
	z.state = StateFree
	k.tasks[z.slot] = nil
}

// releaseUserMemLocked returns a user process's argument page.
func (k *Kernel) releaseUserMemLocked(t *Task) {
	if t.userMem != nil {
		k.frames.FreePage(t.userMemFN)
		t.userMem = nil
	}
}
