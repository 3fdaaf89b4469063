package kernel

import (
	"github.com/ehrlich-b/go-kern/internal/trap"
)

// Syscall enters the kernel through the system-call vector the way
// int 0x80 would: the number in EAX, arguments in EBX/ECX/EDX. It
// returns the value the epilog would leave in EAX; -1 is encoded as
// the all-ones word.
func (k *Kernel) Syscall(t *Task, num, a1, a2, a3 uint32) uint32 {
	k.enter(t)
	f := *t.frame
	f.Vector = trap.VecSyscall
	f.ErrCode = 0
	f.EAX = num
	f.EBX = a1
	f.ECX = a2
	f.EDX = a3
	if k.trapFrom == nil {
		k.trapFrom = make(map[*trap.Frame]*Task)
	}
	k.trapFrom[&f] = t
	k.intr.Unlock()

	out := k.gate.Deliver(&f)
	return out.EAX
}

// syscallHandler is the gate target for the system-call vector. It
// runs on the trapping task's goroutine; the frame identifies the task
// because it lives on that task's kernel stack.
func (k *Kernel) syscallHandler(f *trap.Frame) *trap.Frame {
	k.intr.Lock()
	t := k.trapFrom[f]
	delete(k.trapFrom, f)
	if t == nil {
		t = k.cur
	}
	k.intr.Unlock()

	k.observer.ObserveSyscall(f.EAX)

	switch f.EAX {
	case trap.SysExit:
		k.Exit(t, int(int32(f.EBX)))
		return f // unreachable

	case trap.SysWrite:
		fd := int(int32(f.EBX))
		buf, err := k.copyFromUser(t, f.ECX, f.EDX)
		if err != nil {
			// A bad user pointer is a process fault: the signal is
			// delivered and the process terminated.
			k.logger.Debugf("task %d fault on syscall buffer %#x", t.id, f.ECX)
			k.Exit(t, 128+trap.SIGSEGV)
			return f // unreachable
		}
		n, err := k.Write(t, fd, buf)
		if err != nil {
			f.EAX = ^uint32(0)
			return f
		}
		f.EAX = uint32(n)
		return f

	default:
		// Bad system call: fatal to the process.
		k.logger.Debugf("task %d bad syscall %d", t.id, f.EAX)
		k.Exit(t, 128+trap.SIGSEGV)
		return f // unreachable
	}
}

// copyFromUser reads length bytes at the user address addr through the
// task's mappings. Ring-0 access bypasses user protections; only the
// bounds are checked.
func (k *Kernel) copyFromUser(t *Task, addr, length uint32) ([]byte, error) {
	if t.userMem == nil {
		return nil, ErrBadAddress
	}
	if addr < userBase || addr+length < addr {
		return nil, ErrBadAddress
	}
	off := addr - userBase
	if int(off)+int(length) > len(t.userMem) {
		return nil, ErrBadAddress
	}
	out := make([]byte, length)
	copy(out, t.userMem[off:off+length])
	return out, nil
}

// copyToUser writes b at the user address addr through the task's
// mappings.
func (k *Kernel) copyToUser(t *Task, addr uint32, b []byte) error {
	if t.userMem == nil {
		return ErrBadAddress
	}
	if addr < userBase || addr+uint32(len(b)) < addr {
		return ErrBadAddress
	}
	off := addr - userBase
	if int(off)+len(b) > len(t.userMem) {
		return ErrBadAddress
	}
	copy(t.userMem[off:], b)
	return nil
}

// CopyToUser stages bytes into a user process's memory; the simulated
// user text reads them back through SysWrite.
func (k *Kernel) CopyToUser(t *Task, addr uint32, b []byte) error {
	k.intr.Lock()
	defer k.intr.Unlock()
	return k.copyToUser(t, addr, b)
}

// UserBase returns the base of the simulated user mapping.
func UserBase() uint32 { return userBase }
