package kernel

// The four blocking primitives are all built the same way: a short
// predicate test under the intr gate, a sleep on a wait queue when it
// fails, and a retest after every wake. Being woken never implies the
// predicate holds — between a release and the corresponding wake a
// third task can slip in and take the resource, so every waiter loops.

// Mutex is a non-recursive sleeping lock.
type Mutex struct {
	k      *Kernel
	locked bool
	owner  *Task
	q      WaitQueue
}

// NewMutex returns an unlocked mutex.
func (k *Kernel) NewMutex() *Mutex {
	return &Mutex{k: k}
}

// Lock acquires the mutex, sleeping while another task holds it. The
// predicate test and the enqueue happen under the same
// interrupt-disabled region, so an unlock on another task cannot slip
// between them and strand the sleeper.
func (m *Mutex) Lock(t *Task) {
	k := m.k
	k.enter(t)
	for m.locked {
		k.sleepOn(&m.q, t)
	}
	m.locked = true
	m.owner = t
	k.intr.Unlock()
}

// TryLock acquires the mutex only if it is free.
func (m *Mutex) TryLock(t *Task) bool {
	k := m.k
	k.enter(t)
	if m.locked {
		k.intr.Unlock()
		return false
	}
	m.locked = true
	m.owner = t
	k.intr.Unlock()
	return true
}

// Unlock releases the mutex and wakes the oldest waiter. Unlocking a
// mutex the caller does not hold is a fatal invariant violation.
func (m *Mutex) Unlock(t *Task) {
	k := m.k
	k.enter(t)
	if !m.locked || m.owner != t {
		k.fatalf("task %d unlocking a mutex it does not hold", t.id)
	}
	m.locked = false
	m.owner = nil
	k.wakeOneLocked(&m.q)
	k.intr.Unlock()
}

// Semaphore is a counting semaphore.
type Semaphore struct {
	k     *Kernel
	count int
	q     WaitQueue
}

// NewSemaphore returns a semaphore with the given initial count.
func (k *Kernel) NewSemaphore(count int) *Semaphore {
	return &Semaphore{k: k, count: count}
}

// Wait is the classic P operation: decrement when positive, sleep and
// retry otherwise.
func (s *Semaphore) Wait(t *Task) {
	k := s.k
	k.enter(t)
	for s.count == 0 {
		k.sleepOn(&s.q, t)
	}
	s.count--
	k.intr.Unlock()
}

// TryWait decrements only when the count is positive.
func (s *Semaphore) TryWait(t *Task) bool {
	k := s.k
	k.enter(t)
	if s.count == 0 {
		k.intr.Unlock()
		return false
	}
	s.count--
	k.intr.Unlock()
	return true
}

// Post is the V operation: increment and wake one waiter.
func (s *Semaphore) Post(t *Task) {
	k := s.k
	k.enter(t)
	s.count++
	k.wakeOneLocked(&s.q)
	k.intr.Unlock()
}

// Count returns the current count; meaningful only when no operation
// is in flight.
func (s *Semaphore) Count() int {
	k := s.k
	k.intr.Lock()
	defer k.intr.Unlock()
	return s.count
}

// Cond is a Mesa-style condition variable. The protocol is the usual
// one: the mutex is held on entry to Wait and held again on return,
// and waiters retest their predicate in a loop.
type Cond struct {
	k *Kernel
	q WaitQueue
}

// NewCond returns a condition variable.
func (k *Kernel) NewCond() *Cond {
	return &Cond{k: k}
}

// Wait releases m and enqueues the caller in one interrupt-disabled
// region, so a signal issued under the mutex after the release cannot
// be lost; the caller is already on the queue when the signaler runs.
// The mutex is reacquired before Wait returns.
func (c *Cond) Wait(t *Task, m *Mutex) {
	k := c.k
	k.enter(t)
	if !m.locked || m.owner != t {
		k.fatalf("task %d in cond wait without holding the mutex", t.id)
	}
	m.locked = false
	m.owner = nil
	k.wakeOneLocked(&m.q)
	k.sleepOn(&c.q, t)
	k.intr.Unlock()
	m.Lock(t)
}

// Signal wakes the oldest waiter, if any.
func (c *Cond) Signal(t *Task) {
	k := c.k
	k.enter(t)
	k.wakeOneLocked(&c.q)
	k.intr.Unlock()
}

// Broadcast wakes every waiter.
func (c *Cond) Broadcast(t *Task) {
	k := c.k
	k.enter(t)
	k.wakeAllLocked(&c.q)
	k.intr.Unlock()
}

// RWLock is a reader-writer lock that prefers writers: new readers
// block while a writer is active or pending, which prevents writer
// starvation at the cost of reader starvation under sustained writer
// load.
type RWLock struct {
	k              *Kernel
	readers        int
	writerActive   bool
	writersPending int
	rq             WaitQueue
	wq             WaitQueue
}

// NewRWLock returns an unlocked reader-writer lock.
func (k *Kernel) NewRWLock() *RWLock {
	return &RWLock{k: k}
}

// RLock acquires the lock for reading.
func (l *RWLock) RLock(t *Task) {
	k := l.k
	k.enter(t)
	for l.writerActive || l.writersPending > 0 {
		k.sleepOn(&l.rq, t)
	}
	l.readers++
	k.intr.Unlock()
}

// RUnlock releases a read hold; the last reader out wakes a writer.
func (l *RWLock) RUnlock(t *Task) {
	k := l.k
	k.enter(t)
	if l.readers <= 0 {
		k.fatalf("read-unlock with no readers")
	}
	l.readers--
	if l.readers == 0 {
		k.wakeOneLocked(&l.wq)
	}
	k.intr.Unlock()
}

// WLock acquires the lock exclusively, draining readers first.
func (l *RWLock) WLock(t *Task) {
	k := l.k
	k.enter(t)
	l.writersPending++
	for l.readers > 0 || l.writerActive {
		k.sleepOn(&l.wq, t)
	}
	l.writersPending--
	l.writerActive = true
	k.intr.Unlock()
}

// WUnlock releases the write hold: pending writers are preferred; when
// none wait, every blocked reader is released at once.
func (l *RWLock) WUnlock(t *Task) {
	k := l.k
	k.enter(t)
	if !l.writerActive {
		k.fatalf("write-unlock with no writer")
	}
	l.writerActive = false
	if k.wakeOneLocked(&l.wq) == 0 {
		k.wakeAllLocked(&l.rq)
	}
	k.intr.Unlock()
}
