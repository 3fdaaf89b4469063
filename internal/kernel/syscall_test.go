package kernel

import (
	"bytes"
	"testing"

	"github.com/ehrlich-b/go-kern/internal/dev"
	"github.com/ehrlich-b/go-kern/internal/trap"
)

func newUserKernel(t *testing.T, out *bytes.Buffer) *Kernel {
	t.Helper()
	k, err := New(Config{Term: dev.WriterTerminal{W: out}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return k
}

func TestSysWriteToConsole(t *testing.T) {
	var out bytes.Buffer
	k := newUserKernel(t, &out)

	ret := make(chan uint32, 1)
	pd := k.spaces.NewSpace()
	u, err := k.SpawnUserProcess(nil, pd, userBase, userBase+0x800, func(task *Task) {
		if err := k.CopyToUser(task, userBase+64, []byte("hi\n")); err != nil {
			t.Errorf("CopyToUser: %v", err)
			ret <- 0
			return
		}
		ret <- k.Syscall(task, trap.SysWrite, 1, userBase+64, 3)
	})
	if err != nil {
		t.Fatalf("SpawnUserProcess: %v", err)
	}

	if r := <-ret; r != 3 {
		t.Errorf("SYS_WRITE returned %d, want 3", r)
	}
	join(t, u)
	if out.String() != "hi\n" {
		t.Errorf("terminal captured %q, want \"hi\\n\"", out.String())
	}
}

func TestSysWriteBadDescriptor(t *testing.T) {
	var out bytes.Buffer
	k := newUserKernel(t, &out)

	ret := make(chan uint32, 1)
	pd := k.spaces.NewSpace()
	u, err := k.SpawnUserProcess(nil, pd, userBase, userBase, func(task *Task) {
		k.CopyToUser(task, userBase, []byte("x"))
		ret <- k.Syscall(task, trap.SysWrite, 13, userBase, 1)
	})
	if err != nil {
		t.Fatalf("SpawnUserProcess: %v", err)
	}

	if r := <-ret; r != ^uint32(0) {
		t.Errorf("SYS_WRITE on a bad descriptor returned %#x, want -1", r)
	}
	join(t, u)
}

func TestSysExit(t *testing.T) {
	var out bytes.Buffer
	k := newUserKernel(t, &out)

	pd := k.spaces.NewSpace()
	u, err := k.SpawnUserProcess(nil, pd, userBase, userBase, func(task *Task) {
		k.Syscall(task, trap.SysExit, 7, 0, 0)
		t.Error("SYS_EXIT returned")
	})
	if err != nil {
		t.Fatalf("SpawnUserProcess: %v", err)
	}
	join(t, u)

	_, status, err := k.Reap()
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if status != 7 {
		t.Errorf("status = %d, want 7", status)
	}
}

func TestSysWriteBadPointerIsFatal(t *testing.T) {
	var out bytes.Buffer
	k := newUserKernel(t, &out)

	pd := k.spaces.NewSpace()
	u, err := k.SpawnUserProcess(nil, pd, userBase, userBase, func(task *Task) {
		k.Syscall(task, trap.SysWrite, 1, 0x1000, 4)
		t.Error("survived a wild pointer")
	})
	if err != nil {
		t.Fatalf("SpawnUserProcess: %v", err)
	}
	join(t, u)

	_, status, err := k.Reap()
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if status != 128+trap.SIGSEGV {
		t.Errorf("status = %d, want 128+SIGSEGV", status)
	}
}

func TestBadSyscallNumberIsFatal(t *testing.T) {
	var out bytes.Buffer
	k := newUserKernel(t, &out)

	pd := k.spaces.NewSpace()
	u, err := k.SpawnUserProcess(nil, pd, userBase, userBase, func(task *Task) {
		k.Syscall(task, 99, 0, 0, 0)
		t.Error("survived an unknown system call")
	})
	if err != nil {
		t.Fatalf("SpawnUserProcess: %v", err)
	}
	join(t, u)

	_, status, _ := k.Reap()
	if status != 128+trap.SIGSEGV {
		t.Errorf("status = %d, want 128+SIGSEGV", status)
	}
}

func TestCopyToUserBounds(t *testing.T) {
	var out bytes.Buffer
	k := newUserKernel(t, &out)

	done := make(chan struct{})
	pd := k.spaces.NewSpace()
	u, err := k.SpawnUserProcess(nil, pd, userBase, userBase, func(task *Task) {
		if err := k.CopyToUser(task, userBase-4, []byte("x")); err == nil {
			t.Error("CopyToUser accepted an address below the mapping")
		}
		if err := k.CopyToUser(task, userBase+4090, []byte("too long")); err == nil {
			t.Error("CopyToUser accepted a write past the mapping")
		}
		close(done)
	})
	if err != nil {
		t.Fatalf("SpawnUserProcess: %v", err)
	}
	<-done
	join(t, u)
}

func TestKernelThreadHasNoUserMemory(t *testing.T) {
	k := newTestKernel(t)

	inTask(t, k, func(task *Task) {
		if err := k.CopyToUser(task, userBase, []byte("x")); err == nil {
			t.Error("CopyToUser into a kernel thread succeeded")
		}
	})
}
