package kernel

// Pipe is a bounded ring buffer joining a read endpoint and a write
// endpoint, each with its own reference count and wait queue. All
// fields are guarded by the intr gate; the blocking loops below follow
// the usual discipline of retesting after every wake.
type Pipe struct {
	buf   []byte
	r     int
	w     int
	count int

	readers int
	writers int

	readq  WaitQueue
	writeq WaitQueue

	active bool
}

func (k *Kernel) newPipe() *Pipe {
	return &Pipe{
		buf:     make([]byte, k.cfg.PipeBuf),
		readers: 1,
		writers: 1,
		active:  true,
	}
}

// Cap returns the ring capacity.
func (p *Pipe) Cap() int { return len(p.buf) }

// drainLocked copies up to len(b) buffered bytes out of the ring.
func (p *Pipe) drainLocked(b []byte) int {
	n := 0
	for n < len(b) && p.count > 0 {
		b[n] = p.buf[p.r]
		p.r = (p.r + 1) % len(p.buf)
		p.count--
		n++
	}
	return n
}

// fillLocked copies up to len(b) bytes into the ring's free space.
func (p *Pipe) fillLocked(b []byte) int {
	n := 0
	for n < len(b) && p.count < len(p.buf) {
		p.buf[p.w] = b[n]
		p.w = (p.w + 1) % len(p.buf)
		p.count++
		n++
	}
	return n
}

// pipeRead copies up to len(b) bytes to the caller, sleeping on the
// read queue while the ring is empty and writers remain. An empty ring
// with no writer left ends the read with whatever has been copied; a
// return of 0 is end-of-file.
// Pre-condition: intr held, t current. Post-condition: intr held.
func (k *Kernel) pipeRead(p *Pipe, t *Task, b []byte) int {
	n := 0
	for n < len(b) {
		if p.count == 0 {
			if p.writers == 0 {
				break
			}
			k.sleepOn(&p.readq, t)
			continue
		}
		n += p.drainLocked(b[n:])
		k.wakeAllLocked(&p.writeq)
	}
	k.observer.ObservePipeRead(uint64(n))
	return n
}

// pipeWrite copies bytes into the ring, sleeping on the write queue
// while it is full and readers remain. With no reader left it returns
// the bytes already landed, or -1 when none were — the broken-pipe
// sentinel, nothing buffered. Pre/post-conditions as pipeRead.
func (k *Kernel) pipeWrite(p *Pipe, t *Task, b []byte) int {
	n := 0
	for n < len(b) {
		if p.readers == 0 {
			if n == 0 {
				return -1
			}
			break
		}
		if p.count == len(p.buf) {
			k.sleepOn(&p.writeq, t)
			continue
		}
		n += p.fillLocked(b[n:])
		k.wakeAllLocked(&p.readq)
	}
	k.observer.ObservePipeWrite(uint64(n))
	return n
}

// closeReaderLocked drops one read-endpoint reference. When the last
// reader goes, blocked writers are woken so they can observe the
// broken pipe.
func (k *Kernel) closeReaderLocked(p *Pipe) {
	p.readers--
	if p.readers == 0 {
		k.wakeAllLocked(&p.writeq)
	}
	if p.readers == 0 && p.writers == 0 {
		p.active = false
	}
}

// closeWriterLocked drops one write-endpoint reference. When the last
// writer goes, blocked readers are woken so they can drain and see
// end-of-file.
func (k *Kernel) closeWriterLocked(p *Pipe) {
	p.writers--
	if p.writers == 0 {
		k.wakeAllLocked(&p.readq)
	}
	if p.readers == 0 && p.writers == 0 {
		p.active = false
	}
}
