package kernel

import (
	"testing"
	"time"
)

// spinUntil returns an entry that blocks the goroutine on a host
// channel while the scheduler still accounts the task as executing.
func spinUntil(release <-chan struct{}) func(*Task) {
	return func(*Task) { <-release }
}

func TestRoundRobinRotation(t *testing.T) {
	k := newTestKernel(t)
	release := make(chan struct{})

	a, err := k.SpawnKernelThread(nil, spinUntil(release))
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	b, _ := k.SpawnKernelThread(nil, spinUntil(release))

	if k.Current() != a {
		t.Fatalf("current = task %d, want first spawn", k.Current().ID())
	}
	if k.StateOf(b) != StateReady {
		t.Fatalf("second spawn state = %s, want ready", k.StateOf(b))
	}

	k.Tick()
	if k.Current() != b {
		t.Errorf("after tick current = task %d, want %d", k.Current().ID(), b.ID())
	}
	if k.StateOf(a) != StateReady || k.StateOf(b) != StateRunning {
		t.Errorf("states after tick: a=%s b=%s", k.StateOf(a), k.StateOf(b))
	}
	if err := k.Validate(); err != nil {
		t.Errorf("invariants broken after tick: %v", err)
	}

	k.Tick()
	if k.Current() != a {
		t.Errorf("after second tick current = task %d, want %d", k.Current().ID(), a.ID())
	}

	close(release)
	join(t, a)
	join(t, b)
}

func TestTickResumesSoleRunner(t *testing.T) {
	k := newTestKernel(t)
	release := make(chan struct{})

	a, err := k.SpawnKernelThread(nil, spinUntil(release))
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	for i := 0; i < 3; i++ {
		k.Tick()
		if k.Current() != a || k.StateOf(a) != StateRunning {
			t.Fatalf("tick %d demoted the only runnable task", i)
		}
	}

	close(release)
	join(t, a)
}

func TestTickWithBlockedCurrentFallsToIdle(t *testing.T) {
	k := newTestKernel(t)

	var q WaitQueue
	a, err := k.SpawnKernelThread(nil, func(task *Task) {
		k.SleepOn(&q, task)
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitState(t, k, a, StateBlocked)

	if k.Current().ID() != 0 {
		t.Fatalf("blocked task did not yield to idle, current = %d", k.Current().ID())
	}
	k.Tick()
	if k.Current().ID() != 0 {
		t.Errorf("tick with everyone blocked picked task %d", k.Current().ID())
	}

	// The wake lifts the machine out of idle immediately.
	k.WakeOne(&q)
	join(t, a)
}

func TestOnTimerTickReturnsResumeFrame(t *testing.T) {
	k := newTestKernel(t)
	release := make(chan struct{})

	a, _ := k.SpawnKernelThread(nil, spinUntil(release))
	b, _ := k.SpawnKernelThread(nil, spinUntil(release))
	_ = a

	k.intr.Lock()
	in := *k.cur.frame
	k.intr.Unlock()

	resume := k.OnTimerTick(&in)

	k.intr.Lock()
	wantFrame := b.frame
	wantStack := b.stackTop
	k.intr.Unlock()

	if resume != wantFrame {
		t.Error("OnTimerTick did not return the chosen task's saved frame")
	}
	if k.TrapStackTop() != wantStack {
		t.Error("trap stack not updated to the chosen task's kernel stack")
	}

	close(release)
	join(t, a)
	join(t, b)
}

func TestSchedulerNeverPicksZombie(t *testing.T) {
	k := newTestKernel(t)
	release := make(chan struct{})

	a, _ := k.SpawnKernelThread(nil, spinUntil(release))
	_ = a
	z, _ := k.SpawnKernelThread(nil, func(*Task) {})

	// Tick until the scheduler has run z to its exit.
	deadline := time.Now().Add(testTimeout)
	for k.StateOf(z) != StateZombie {
		if time.Now().After(deadline) {
			t.Fatal("z never ran to exit")
		}
		k.Tick()
		time.Sleep(time.Millisecond)
	}
	join(t, z)
	for i := 0; i < 2*DefaultMaxProcs; i++ {
		k.Tick()
		if k.Current() == z {
			t.Fatal("scheduler picked a zombie")
		}
	}

	close(release)
	join(t, a)
}

func TestYield(t *testing.T) {
	k := newTestKernel(t)

	var order []int
	done := make(chan struct{})

	a, err := k.SpawnKernelThread(nil, func(task *Task) {
		order = append(order, 1)
		k.Yield(task) // hands the CPU to b
		order = append(order, 3)
		close(done)
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	b, _ := k.SpawnKernelThread(nil, func(task *Task) {
		order = append(order, 2)
	})

	<-done
	join(t, a)
	join(t, b)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("execution order = %v, want [1 2 3]", order)
	}
}

func TestYieldWithNoPeerContinues(t *testing.T) {
	k := newTestKernel(t)

	ran := false
	a, err := k.SpawnKernelThread(nil, func(task *Task) {
		k.Yield(task)
		ran = true
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	join(t, a)
	if !ran {
		t.Error("yield with an empty run queue never resumed the caller")
	}
}
