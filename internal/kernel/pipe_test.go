package kernel

import (
	"bytes"
	"errors"
	"testing"
)

func TestPipeRoundTrip(t *testing.T) {
	k := newTestKernel(t)

	type result struct {
		wrote   int
		first   int
		second  int
		payload []byte
		err     error
	}
	res := make(chan result, 1)

	task, err := k.SpawnKernelThread(nil, func(task *Task) {
		var r result
		rfd, wfd, err := k.Pipe(task)
		if err != nil {
			r.err = err
			res <- r
			return
		}
		r.wrote, r.err = k.Write(task, wfd, []byte("hello"))
		if r.err != nil {
			res <- r
			return
		}
		k.Close(task, wfd)

		buf := make([]byte, 16)
		r.first, r.err = k.Read(task, rfd, buf)
		r.payload = append([]byte(nil), buf[:r.first]...)
		if r.err == nil {
			r.second, r.err = k.Read(task, rfd, buf)
		}
		res <- r
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	r := <-res
	join(t, task)
	if r.err != nil {
		t.Fatalf("pipe round trip failed: %v", r.err)
	}
	if r.wrote != 5 {
		t.Errorf("write = %d, want 5", r.wrote)
	}
	if r.first != 5 || !bytes.Equal(r.payload, []byte("hello")) {
		t.Errorf("first read = (%d, %q), want (5, \"hello\")", r.first, r.payload)
	}
	if r.second != 0 {
		t.Errorf("read after writer close = %d, want 0 (end of file)", r.second)
	}
}

func TestPipeBrokenWrite(t *testing.T) {
	k := newTestKernel(t)

	res := make(chan error, 1)
	counts := make(chan int, 1)

	task, err := k.SpawnKernelThread(nil, func(task *Task) {
		rfd, wfd, err := k.Pipe(task)
		if err != nil {
			res <- err
			return
		}

		k.intr.Lock()
		p := k.files[task.fds[wfd]].pipe
		k.intr.Unlock()

		k.Close(task, rfd)
		n, err := k.Write(task, wfd, []byte("0123456789"))
		counts <- n

		k.intr.Lock()
		buffered := p.count
		k.intr.Unlock()
		if buffered != 0 {
			t.Errorf("broken-pipe write buffered %d bytes", buffered)
		}
		res <- err
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	werr := <-res
	n := <-counts
	join(t, task)

	if n != -1 {
		t.Errorf("write with no readers = %d, want -1", n)
	}
	if !errors.Is(werr, ErrBrokenPipe) {
		t.Errorf("error = %v, want broken pipe", werr)
	}
}

func TestPipeWriterBlocksWhenFull(t *testing.T) {
	k := newTestKernel(t)

	wrote := make(chan int, 1)
	leader, err := k.SpawnKernelThread(nil, func(p *Task) {
		rfd, wfd, err := k.Pipe(p)
		if err != nil {
			t.Errorf("pipe: %v", err)
			wrote <- 0
			return
		}

		writer, err := k.SpawnKernelThread(p, func(c *Task) {
			k.Close(c, rfd)
			// Capacity plus ten: fills the ring, then blocks.
			n, _ := k.Write(c, wfd, make([]byte, DefaultPipeBuf+10))
			wrote <- n
		})
		if err != nil {
			t.Errorf("spawn writer: %v", err)
			wrote <- 0
			return
		}

		k.Close(p, wfd)
		yieldUntilBlocked(t, k, p, writer)

		// The reader never arrives: closing the read end breaks the
		// pipe and releases the writer with its partial count.
		k.Close(p, rfd)
		k.Waitpid(p, writer.ID())
	})
	if err != nil {
		t.Fatalf("spawn leader: %v", err)
	}

	if n := <-wrote; n != DefaultPipeBuf {
		t.Errorf("blocked writer returned %d, want the %d bytes that landed", n, DefaultPipeBuf)
	}
	join(t, leader)
}

func TestPipeReaderBlocksUntilData(t *testing.T) {
	k := newTestKernel(t)

	got := make(chan []byte, 1)
	leader, err := k.SpawnKernelThread(nil, func(p *Task) {
		rfd, wfd, err := k.Pipe(p)
		if err != nil {
			t.Errorf("pipe: %v", err)
			got <- nil
			return
		}

		reader, err := k.SpawnKernelThread(p, func(c *Task) {
			k.Close(c, wfd)
			buf := make([]byte, 4)
			n, _ := k.Read(c, rfd, buf)
			got <- append([]byte(nil), buf[:n]...)
		})
		if err != nil {
			t.Errorf("spawn reader: %v", err)
			got <- nil
			return
		}

		k.Close(p, rfd)
		yieldUntilBlocked(t, k, p, reader)

		k.Write(p, wfd, []byte("ping"))
		k.Close(p, wfd)
		k.Waitpid(p, reader.ID())
	})
	if err != nil {
		t.Fatalf("spawn leader: %v", err)
	}

	if data := <-got; !bytes.Equal(data, []byte("ping")) {
		t.Errorf("reader got %q, want \"ping\"", data)
	}
	join(t, leader)
}

func TestExitClosesPipeEndpoints(t *testing.T) {
	k := newTestKernel(t)

	type result struct {
		first  int
		second int
		b      byte
	}
	res := make(chan result, 1)

	leader, err := k.SpawnKernelThread(nil, func(p *Task) {
		rfd, wfd, err := k.Pipe(p)
		if err != nil {
			t.Errorf("pipe: %v", err)
			res <- result{}
			return
		}

		// The writer exits without closing anything; exit's descriptor
		// teardown must close the inherited endpoints.
		writer, err := k.SpawnKernelThread(p, func(c *Task) {
			k.Write(c, wfd, []byte{0x42})
		})
		if err != nil {
			t.Errorf("spawn writer: %v", err)
			res <- result{}
			return
		}

		k.Close(p, wfd)
		k.Waitpid(p, writer.ID())

		var r result
		buf := make([]byte, 4)
		r.first, _ = k.Read(p, rfd, buf)
		r.b = buf[0]
		r.second, _ = k.Read(p, rfd, buf)
		res <- r
	})
	if err != nil {
		t.Fatalf("spawn leader: %v", err)
	}

	r := <-res
	join(t, leader)
	if r.first != 1 || r.b != 0x42 {
		t.Errorf("first read = (%d, %#x), want the one byte the writer sent", r.first, r.b)
	}
	if r.second != 0 {
		t.Errorf("read after writer exit = %d, want 0 (end of file)", r.second)
	}

	if err := k.Validate(); err != nil {
		t.Errorf("pipe teardown broke refcounts: %v", err)
	}
}

func TestPipeInactiveAfterBothSidesClose(t *testing.T) {
	k := newTestKernel(t)

	state := make(chan bool, 1)
	task, err := k.SpawnKernelThread(nil, func(task *Task) {
		rfd, wfd, err := k.Pipe(task)
		if err != nil {
			t.Errorf("pipe: %v", err)
			state <- false
			return
		}
		k.intr.Lock()
		p := k.files[task.fds[rfd]].pipe
		k.intr.Unlock()

		k.Close(task, wfd)
		k.Close(task, rfd)

		k.intr.Lock()
		state <- p.active
		k.intr.Unlock()
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if <-state {
		t.Error("pipe still active after both endpoints closed")
	}
	join(t, task)
}
