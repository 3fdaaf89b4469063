package kernel

// waitEntry is one node of a wait queue. On the real machine these
// live in the sleeper's stack frame; here they are heap nodes whose
// lifetime is the block, released when the sleeper is popped or
// dropped.
type waitEntry struct {
	task *Task
	next *waitEntry
}

// WaitQueue is a FIFO list of suspended tasks. All linkage is mutated
// under the kernel's intr gate.
type WaitQueue struct {
	head *waitEntry
	tail *waitEntry
}

// Empty reports whether no task is queued.
func (q *WaitQueue) Empty() bool {
	return q.head == nil
}

// Len counts queued entries; used by tests.
func (q *WaitQueue) Len() int {
	n := 0
	for e := q.head; e != nil; e = e.next {
		n++
	}
	return n
}

func (q *WaitQueue) enqueue(t *Task) {
	e := &waitEntry{task: t}
	if q.tail == nil {
		q.head, q.tail = e, e
		return
	}
	q.tail.next = e
	q.tail = e
}

func (q *WaitQueue) pop() *Task {
	e := q.head
	if e == nil {
		return nil
	}
	q.head = e.next
	if q.head == nil {
		q.tail = nil
	}
	e.next = nil
	return e.task
}

// sleepOn blocks the current task on q. Pre-condition: intr held, t is
// the current running task. The enqueue, the Blocked transition, and
// the switch away all happen under the same interrupt-disabled region,
// so a waker can never slip between the predicate test and the
// enqueue. Returns with intr held and t running again; a task
// terminated while blocked does not return.
func (k *Kernel) sleepOn(q *WaitQueue, t *Task) {
	if k.cur != t {
		k.fatalf("sleep by non-current task %d (state %s)", t.id, t.state)
	}
	q.enqueue(t)
	t.state = StateBlocked
	k.observer.ObserveBlock()
	k.rescheduleLocked(t)
	// sti; hlt until granted.
	k.waitRunnable(t)
}

// wakeOneLocked removes the oldest sleeper, marks it Ready, and
// returns 1; returns 0 when the queue is empty. Entries whose task was
// terminated while blocked are dropped in passing — the lazy unlink of
// killed sleepers. A nil task pointer in an entry is a corrupted queue.
func (k *Kernel) wakeOneLocked(q *WaitQueue) int {
	for {
		e := q.head
		if e == nil {
			return 0
		}
		if e.task == nil {
			k.fatalf("wait-queue entry with nil task")
		}
		t := q.pop()
		if t.state == StateZombie || t.state == StateFree {
			continue
		}
		if t.state == StateBlocked {
			t.state = StateReady
			t.readyAt = now()
		}
		// A task already Ready is left Ready: waking is idempotent.
		k.observer.ObserveWakeup(1)
		k.kickIdleLocked(t)
		return 1
	}
}

// wakeAllLocked drains the queue, returning the number of tasks woken.
func (k *Kernel) wakeAllLocked(q *WaitQueue) int {
	n := 0
	for k.wakeOneLocked(q) == 1 {
		n++
	}
	return n
}

// WakeOne and WakeAll expose the waking side for device paths that run
// outside any task (e.g. interrupt handlers in tests).
func (k *Kernel) WakeOne(q *WaitQueue) int {
	k.intr.Lock()
	defer k.intr.Unlock()
	return k.wakeOneLocked(q)
}

func (k *Kernel) WakeAll(q *WaitQueue) int {
	k.intr.Lock()
	defer k.intr.Unlock()
	return k.wakeAllLocked(q)
}

// SleepOn parks the calling task on q until woken. Public entry for
// code layered on raw wait queues.
func (k *Kernel) SleepOn(q *WaitQueue, t *Task) {
	k.enter(t)
	k.sleepOn(q, t)
	k.intr.Unlock()
}

// kickIdleLocked switches straight to a freshly woken task when the
// machine is idling, the way a hardware interrupt lifts the CPU out of
// hlt.
func (k *Kernel) kickIdleLocked(t *Task) {
	if k.cur == k.tasks[0] && t.state == StateReady {
		k.switchLocked(k.cur, t)
	}
}
