package kernel

import (
	"errors"
	"testing"
)

func TestExitStateAndTeardown(t *testing.T) {
	k := newTestKernel(t)

	e, err := k.SpawnKernelThread(nil, func(task *Task) {
		if _, _, err := k.Pipe(task); err != nil {
			t.Errorf("pipe: %v", err)
		}
		k.Exit(task, 3)
		t.Error("Exit returned")
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	join(t, e)

	if k.StateOf(e) != StateZombie {
		t.Fatalf("state after exit = %s, want zombie", k.StateOf(e))
	}

	// Every descriptor the task owned is free again.
	k.intr.Lock()
	for fd, slot := range e.fds {
		if slot != fdFree {
			t.Errorf("descriptor %d still bound after exit", fd)
		}
	}
	status := e.exitStatus
	k.intr.Unlock()
	if status != 3 {
		t.Errorf("exit status = %d, want 3", status)
	}

	// The zombie is never scheduled.
	for i := 0; i < 5; i++ {
		k.Tick()
		if k.Current() == e {
			t.Fatal("scheduler resumed a zombie")
		}
	}
	if err := k.Validate(); err != nil {
		t.Errorf("invariants broken after exit: %v", err)
	}

	if _, _, err := k.Reap(); err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if k.StateOf(e) != StateFree {
		t.Errorf("state after reap = %s, want free", k.StateOf(e))
	}
}

func TestWaitpidReapsLowestFirst(t *testing.T) {
	k := newTestKernel(t)

	type reaped struct {
		id, status int
		err        error
	}
	res := make(chan reaped, 2)

	parent, err := k.SpawnKernelThread(nil, func(p *Task) {
		c1, err := k.SpawnKernelThread(p, func(c *Task) { k.Exit(c, 11) })
		if err != nil {
			t.Errorf("spawn c1: %v", err)
			return
		}
		c2, err := k.SpawnKernelThread(p, func(c *Task) { k.Exit(c, 22) })
		if err != nil {
			t.Errorf("spawn c2: %v", err)
			return
		}
		_, _ = c1, c2

		for i := 0; i < 2; i++ {
			id, status, err := k.Waitpid(p, -1)
			res <- reaped{id, status, err}
		}
	})
	if err != nil {
		t.Fatalf("spawn parent: %v", err)
	}

	first := <-res
	second := <-res
	join(t, parent)

	if first.err != nil || second.err != nil {
		t.Fatalf("waitpid errors: %v, %v", first.err, second.err)
	}
	if first.id >= second.id {
		t.Errorf("reap order = %d then %d, want lowest id first", first.id, second.id)
	}
	if first.status != 11 || second.status != 22 {
		t.Errorf("statuses = %d, %d, want 11, 22", first.status, second.status)
	}
	// Both children are reaped; the exited parent stays a zombie until
	// something reaps it in turn.
	if k.NumTasks() != 2 {
		t.Errorf("NumTasks = %d, want 2 (idle plus the unreaped parent)", k.NumTasks())
	}
}

func TestWaitpidSpecificChild(t *testing.T) {
	k := newTestKernel(t)

	res := make(chan int, 1)
	parent, err := k.SpawnKernelThread(nil, func(p *Task) {
		c1, _ := k.SpawnKernelThread(p, func(c *Task) { k.Exit(c, 1) })
		c2, _ := k.SpawnKernelThread(p, func(c *Task) { k.Exit(c, 2) })

		// Waiting on the higher id leaves the lower zombie in place.
		id, status, err := k.Waitpid(p, c2.ID())
		if err != nil || id != c2.ID() || status != 2 {
			t.Errorf("Waitpid(c2) = (%d, %d, %v)", id, status, err)
		}
		id, status, err = k.Waitpid(p, c1.ID())
		if err != nil || id != c1.ID() || status != 1 {
			t.Errorf("Waitpid(c1) = (%d, %d, %v)", id, status, err)
		}
		res <- 0
	})
	if err != nil {
		t.Fatalf("spawn parent: %v", err)
	}
	<-res
	join(t, parent)
}

func TestWaitpidNoChildren(t *testing.T) {
	k := newTestKernel(t)

	inTask(t, k, func(task *Task) {
		if _, _, err := k.Waitpid(task, -1); !errors.Is(err, ErrNoChild) {
			t.Errorf("Waitpid with no children error = %v, want no-child", err)
		}
		if _, _, err := k.Waitpid(task, 999); !errors.Is(err, ErrNoChild) {
			t.Errorf("Waitpid on a stranger error = %v, want no-child", err)
		}
	})
}

func TestKillBlockedTask(t *testing.T) {
	k := newTestKernel(t)

	var q WaitQueue
	v, err := k.SpawnKernelThread(nil, func(task *Task) {
		k.SleepOn(&q, task)
		t.Error("killed task resumed")
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitState(t, k, v, StateBlocked)

	if err := k.Kill(v.ID()); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	join(t, v)
	if k.StateOf(v) != StateZombie {
		t.Errorf("state after kill = %s, want zombie", k.StateOf(v))
	}

	// Killing a zombie again is a no-op; killing a stranger errors.
	if err := k.Kill(v.ID()); err != nil {
		t.Errorf("Kill on zombie = %v, want nil", err)
	}
	if err := k.Kill(999); !errors.Is(err, ErrNoSuchTask) {
		t.Errorf("Kill(999) = %v, want no-such-task", err)
	}
	if err := k.Kill(0); !errors.Is(err, ErrNoSuchTask) {
		t.Errorf("Kill(idle) = %v, want rejection", err)
	}

	k.Reap()
}

func TestKillRunningTask(t *testing.T) {
	k := newTestKernel(t)
	release := make(chan struct{})

	v, err := k.SpawnKernelThread(nil, func(task *Task) {
		<-release
		// The next crossing observes the termination and never
		// returns.
		k.Yield(task)
		t.Error("killed task survived a kernel crossing")
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	if err := k.Kill(v.ID()); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if k.StateOf(v) != StateZombie {
		t.Errorf("state = %s, want zombie immediately", k.StateOf(v))
	}
	if k.Current() == v {
		t.Error("killed running task still current")
	}

	close(release)
	join(t, v)
}

func TestSignalValidation(t *testing.T) {
	k := newTestKernel(t)
	release := make(chan struct{})

	v, _ := k.SpawnKernelThread(nil, spinUntil(release))

	if err := k.Signal(v.ID(), 15); !errors.Is(err, ErrBadArgument) {
		t.Errorf("Signal(15) = %v, want bad argument (uncatchable set only)", err)
	}
	if err := k.Signal(999, 9); !errors.Is(err, ErrNoSuchTask) {
		t.Errorf("Signal to stranger = %v, want no-such-task", err)
	}

	close(release)
	join(t, v)
}

func TestSignalKillsBlockedVictim(t *testing.T) {
	k := newTestKernel(t)

	var q WaitQueue
	v, err := k.SpawnKernelThread(nil, func(task *Task) {
		k.SleepOn(&q, task)
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitState(t, k, v, StateBlocked)

	if err := k.Signal(v.ID(), 9); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	join(t, v)

	id, status, err := k.Reap()
	if err != nil || id != v.ID() {
		t.Fatalf("Reap = (%d, %d, %v)", id, status, err)
	}
	if status != 128+9 {
		t.Errorf("status = %d, want 128+SIGKILL", status)
	}
}

func TestSignalSelfDeliveredAtCrossing(t *testing.T) {
	k := newTestKernel(t)

	v, err := k.SpawnKernelThread(nil, func(task *Task) {
		if err := k.Signal(task.ID(), 13); err != nil {
			t.Errorf("Signal self: %v", err)
			return
		}
		// Still alive here; the pending signal lands at the next
		// kernel crossing.
		k.Yield(task)
		t.Error("survived a crossing with a fatal signal pending")
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	join(t, v)

	_, status, err := k.Reap()
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if status != 128+13 {
		t.Errorf("status = %d, want 128+SIGPIPE", status)
	}
}

func TestExitWakesWaitingParent(t *testing.T) {
	k := newTestKernel(t)

	res := make(chan int, 1)
	parent, err := k.SpawnKernelThread(nil, func(p *Task) {
		// The child blocks, so the parent waits first and is woken by
		// the child's exit.
		var childGate WaitQueue
		child, err := k.SpawnKernelThread(p, func(c *Task) {
			k.SleepOn(&childGate, c)
			k.Exit(c, 7)
		})
		if err != nil {
			t.Errorf("spawn child: %v", err)
			res <- -1
			return
		}
		yieldUntilBlocked(t, k, p, child)
		k.WakeOne(&childGate)

		_, status, err := k.Waitpid(p, child.ID())
		if err != nil {
			t.Errorf("Waitpid: %v", err)
		}
		res <- status
	})
	if err != nil {
		t.Fatalf("spawn parent: %v", err)
	}

	if status := <-res; status != 7 {
		t.Errorf("status = %d, want 7", status)
	}
	join(t, parent)
}
