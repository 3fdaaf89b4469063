package kernel

import (
	"github.com/ehrlich-b/go-kern/internal/trap"
)

// timerHandler is the gate target for the timer vector.
func (k *Kernel) timerHandler(f *trap.Frame) *trap.Frame {
	return k.OnTimerTick(f)
}

// Tick raises one timer interrupt: it synthesizes the frame the entry
// stub would have saved for the interrupted task and pushes it through
// the gate. Called by the clock device and by tests.
func (k *Kernel) Tick() {
	k.intr.Lock()
	f := *k.cur.frame
	k.intr.Unlock()
	f.Vector = trap.VecTimer
	f.ErrCode = 0
	k.gate.Deliver(&f)
}

// OnTimerTick is the scheduler. It runs only from the timer interrupt:
// save the incoming frame for the outgoing task, demote it if it is
// still Running, scan round-robin from one past the cursor for a Ready
// task, and switch. Returns the frame the interrupt epilog should pop.
func (k *Kernel) OnTimerTick(f *trap.Frame) *trap.Frame {
	k.intr.Lock()
	defer k.intr.Unlock()

	k.observer.ObserveTick()

	if k.tasks[0].state == StateZombie {
		k.fatalf("idle task is a zombie")
	}

	prev := k.cur
	prev.frame = f
	prev.savedSP = prev.stackTop - uint32(f.ImageBytes())
	prev.savedBP = f.EBP

	if prev.slot != 0 && prev.state == StateRunning {
		prev.state = StateReady
		k.observer.ObservePreempt()
	}

	next := k.pickLocked()
	if next == nil {
		// Nothing else to run: resume prev, promoting it back if the
		// demotion above applied. A Blocked or Zombie prev falls
		// through to the idle task.
		if prev.state == StateReady || prev.state == StateRunning {
			prev.state = StateRunning
			return prev.frame
		}
		next = k.tasks[0]
		if next == prev {
			return prev.frame
		}
	}

	k.switchLocked(prev, next)
	return next.frame
}

// pickLocked scans the table starting one past the cursor, wrapping,
// for the first Ready task. Slot 0 (idle) is excluded; it is chosen
// only as the fallback when no Ready task exists. States other than
// Ready are skipped, whatever they are.
func (k *Kernel) pickLocked() *Task {
	n := len(k.tasks)
	for i := 1; i <= n; i++ {
		slot := (k.cursor + i) % n
		if slot == 0 {
			continue
		}
		t := k.tasks[slot]
		if t != nil && t.state == StateReady {
			return t
		}
	}
	return nil
}

// switchLocked performs the context switch bookkeeping: demote prev if
// it was still Running, promote next, expose next's kernel stack for
// the following ring-3 trap, install next's address space when it
// differs, move the cursor, and deposit next's CPU grant.
func (k *Kernel) switchLocked(prev, next *Task) {
	if prev == next {
		if prev.state == StateReady {
			prev.state = StateRunning
		}
		return
	}
	if prev.state == StateRunning {
		prev.state = StateReady
	}
	next.state = StateRunning
	k.trapStack = next.stackTop
	if next.pageDir != prev.pageDir {
		if err := k.spaces.SetCurrent(next.pageDir); err != nil {
			k.fatalf("switch to task %d: %v", next.id, err)
		}
	}
	k.cur = next
	k.cursor = next.slot

	var lat uint64
	if next.readyAt != 0 {
		if d := now() - next.readyAt; d > 0 {
			lat = uint64(d)
		}
		next.readyAt = 0
	}
	k.observer.ObserveSwitch(lat)

	if next.slot != 0 {
		next.grant()
	}
}

// rescheduleLocked switches away from prev, which has just left the
// Running state (blocked or exited). Falls back to the idle task when
// no one is Ready.
func (k *Kernel) rescheduleLocked(prev *Task) {
	next := k.pickLocked()
	if next == nil {
		next = k.tasks[0]
	}
	k.switchLocked(prev, next)
}

// Yield enters the scheduler synchronously: the calling task is
// demoted behind every Ready peer and the first of them runs. With no
// Ready peer the caller continues.
func (k *Kernel) Yield(t *Task) {
	k.enter(t)
	next := k.pickLocked()
	if next == nil {
		k.intr.Unlock()
		return
	}
	t.state = StateReady
	t.readyAt = now()
	k.switchLocked(t, next)
	k.waitRunnable(t)
	k.intr.Unlock()
}
