package kernel

import "github.com/ehrlich-b/go-kern/internal/iface"

// Seek whence values.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// Pipe allocates a pipe with two open-file slots — read and write
// endpoints, one reference each — and installs them at the caller's
// two lowest free descriptors.
func (k *Kernel) Pipe(t *Task) (rfd, wfd int, err error) {
	k.enter(t)
	defer k.intr.Unlock()

	rslot, err := k.allocFileLocked()
	if err != nil {
		return 0, 0, err
	}
	k.files[rslot] = OpenFile{tag: TagPipe, flags: ORdOnly}
	wslot, err := k.allocFileLocked()
	if err != nil {
		k.files[rslot] = OpenFile{}
		return 0, 0, err
	}

	p := k.newPipe()
	k.files[rslot].pipe = p
	k.files[wslot] = OpenFile{tag: TagPipe, flags: OWrOnly, pipe: p, writeEnd: true}

	rfd, err = k.allocFDLocked(t, rslot)
	if err != nil {
		k.files[rslot] = OpenFile{}
		k.files[wslot] = OpenFile{}
		return 0, 0, err
	}
	wfd, err = k.allocFDLocked(t, wslot)
	if err != nil {
		t.fds[rfd] = fdFree
		k.files[rslot] = OpenFile{}
		k.files[wslot] = OpenFile{}
		return 0, 0, err
	}
	return rfd, wfd, nil
}

// Open resolves (or creates) a filesystem inode and installs a
// byte-stream slot at the caller's lowest free descriptor.
func (k *Kernel) Open(t *Task, path string, flags int) (int, error) {
	k.enter(t)
	defer k.intr.Unlock()

	if k.fsys == nil {
		return 0, ErrNoFilesystem
	}
	if path == "" {
		return 0, ErrBadArgument
	}

	ino, err := k.fsys.Resolve(path)
	if err != nil {
		if flags&OCreate == 0 {
			return 0, ErrBadArgument
		}
		ino, err = k.fsys.Create(path)
		if err != nil {
			return 0, err
		}
	}
	typ, err := k.fsys.TypeOf(ino)
	if err != nil {
		return 0, err
	}
	if typ != iface.InodeFile {
		return 0, ErrBadArgument
	}
	if flags&OTrunc != 0 {
		if err := k.fsys.Truncate(ino); err != nil {
			return 0, err
		}
	}

	slot, err := k.allocFileLocked()
	if err != nil {
		return 0, err
	}
	k.files[slot] = OpenFile{tag: TagInode, flags: flags, ino: ino}
	fd, err := k.allocFDLocked(t, slot)
	if err != nil {
		k.files[slot] = OpenFile{}
		return 0, err
	}
	return fd, nil
}

// Close drops the descriptor's reference; the last reference releases
// the slot's resource (a pipe endpoint close when applicable).
func (k *Kernel) Close(t *Task, fd int) error {
	k.enter(t)
	defer k.intr.Unlock()
	return k.closeFDLocked(t, fd)
}

func (k *Kernel) closeFDLocked(t *Task, fd int) error {
	f, err := k.slotForLocked(t, fd)
	if err != nil {
		return err
	}
	t.fds[fd] = fdFree
	k.releaseFileLocked(f)
	return nil
}

// closeAllFDsLocked tears down a task's descriptor table on exit.
func (k *Kernel) closeAllFDsLocked(t *Task) {
	for fd := range t.fds {
		if t.fds[fd] != fdFree {
			_ = k.closeFDLocked(t, fd)
		}
	}
}

// Read dispatches on the descriptor's slot tag: console reads block
// for the first key, pipe reads run the ring protocol, byte-stream
// reads delegate to the filesystem at the cached offset.
//
// The blocking cases unwind through the termination path if the task
// is killed while asleep, so the intr gate is released explicitly on
// every return rather than deferred.
func (k *Kernel) Read(t *Task, fd int, b []byte) (int, error) {
	k.enter(t)

	f, err := k.readableSlotLocked(t, fd, b)
	if err != nil {
		k.intr.Unlock()
		return 0, err
	}

	var n int
	switch f.tag {
	case TagConsole:
		n = k.consoleReadLocked(t, b)
	case TagPipe:
		n = k.pipeRead(f.pipe, t, b)
	case TagInode:
		n, err = k.fsys.ReadAt(f.ino, b, f.offset)
		if err == nil {
			f.offset += int64(n)
		} else {
			n = 0
		}
	default:
		err = ErrBadDescriptor
	}
	k.intr.Unlock()
	return n, err
}

// Write dispatches like Read. A pipe write with no readers returns
// ErrBrokenPipe and a count of -1 with nothing buffered.
func (k *Kernel) Write(t *Task, fd int, b []byte) (int, error) {
	k.enter(t)

	f, err := k.writableSlotLocked(t, fd, b)
	if err != nil {
		k.intr.Unlock()
		return 0, err
	}

	var n int
	switch f.tag {
	case TagConsole:
		n = k.consoleWriteLocked(b)
	case TagPipe:
		n = k.pipeWrite(f.pipe, t, b)
		if n < 0 {
			err = ErrBrokenPipe
		}
	case TagInode:
		off := f.offset
		if f.flags&OAppend != 0 {
			var size int64
			size, err = k.fsys.Size(f.ino)
			if err != nil {
				break
			}
			off = size
		}
		n, err = k.fsys.WriteAt(f.ino, b, off)
		if err == nil {
			f.offset = off + int64(n)
		} else {
			n = 0
		}
	default:
		err = ErrBadDescriptor
	}
	k.intr.Unlock()
	return n, err
}

// readableSlotLocked and writableSlotLocked validate the descriptor,
// the buffer, and the access mode.
func (k *Kernel) readableSlotLocked(t *Task, fd int, b []byte) (*OpenFile, error) {
	f, err := k.slotForLocked(t, fd)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBadArgument
	}
	if !readable(f.flags) {
		return nil, ErrBadDescriptor
	}
	return f, nil
}

func (k *Kernel) writableSlotLocked(t *Task, fd int, b []byte) (*OpenFile, error) {
	f, err := k.slotForLocked(t, fd)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBadArgument
	}
	if !writable(f.flags) {
		return nil, ErrBadDescriptor
	}
	return f, nil
}

// inheritFDsLocked copies the parent's descriptor table into a child
// at spawn, sharing the open-file slots; each shared slot gains one
// reference per copied descriptor.
func (k *Kernel) inheritFDsLocked(t, parent *Task) {
	for fd, slot := range parent.fds {
		if slot != fdFree && k.files[slot].tag != TagFree {
			t.fds[fd] = slot
			k.files[slot].refs++
		}
	}
}

// Dup installs a second descriptor for fd's open-file slot at the
// caller's lowest free descriptor.
func (k *Kernel) Dup(t *Task, fd int) (int, error) {
	k.enter(t)
	defer k.intr.Unlock()
	if _, err := k.slotForLocked(t, fd); err != nil {
		return 0, err
	}
	return k.allocFDLocked(t, t.fds[fd])
}

// SendFD shares one of from's descriptors with another task,
// installing it at to's lowest free slot. It is the descriptor-passing
// primitive spawn-time inheritance is built from.
func (k *Kernel) SendFD(from, to *Task, fd int) (int, error) {
	k.intr.Lock()
	defer k.intr.Unlock()
	if _, err := k.slotForLocked(from, fd); err != nil {
		return 0, err
	}
	if to.state == StateZombie || to.state == StateFree {
		return 0, ErrNoSuchTask
	}
	return k.allocFDLocked(to, from.fds[fd])
}

// Seek repositions a byte-stream descriptor's cached offset. Only
// inode slots are seekable.
func (k *Kernel) Seek(t *Task, fd int, off int64, whence int) (int64, error) {
	k.enter(t)
	defer k.intr.Unlock()

	f, err := k.slotForLocked(t, fd)
	if err != nil {
		return 0, err
	}
	if f.tag != TagInode {
		return 0, ErrNotSeekable
	}

	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = f.offset
	case SeekEnd:
		size, err := k.fsys.Size(f.ino)
		if err != nil {
			return 0, err
		}
		base = size
	default:
		return 0, ErrBadArgument
	}
	pos := base + off
	if pos < 0 {
		return 0, ErrBadArgument
	}
	f.offset = pos
	return pos, nil
}
