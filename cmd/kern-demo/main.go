package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/ehrlich-b/go-kern"
	"github.com/ehrlich-b/go-kern/internal/dev"
	"github.com/ehrlich-b/go-kern/internal/logging"
)

func main() {
	var (
		hz       = flag.Int("hz", kern.ClockHz, "Timer tick rate")
		procs    = flag.Int("procs", 2, "Worker thread pairs to run")
		echo     = flag.Bool("echo", false, "Attach stdin as the keyboard and echo the console")
		verbose  = flag.Bool("v", false, "Verbose output")
		showStat = flag.Bool("stats", true, "Print scheduler metrics on exit")
	)
	flag.Parse()

	// Set up logging
	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	params := kern.DefaultParams()
	params.ClockHz = *hz

	k, err := kern.Boot(params, &kern.Options{Terminal: os.Stdout})
	if err != nil {
		log.Fatalf("boot failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Clean shutdown on SIGINT/SIGTERM.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, unix.SIGINT, unix.SIGTERM)
	go func() {
		<-sigc
		cancel()
	}()

	if *echo {
		// Raw-mode stdin feeds the simulated keyboard; a console
		// reader thread echoes it back through the terminal driver.
		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			oldState, err := term.MakeRaw(fd)
			if err != nil {
				log.Fatalf("raw mode: %v", err)
			}
			defer term.Restore(fd, oldState)
		}
		go func() {
			_ = dev.PumpKeys(os.Stdin, k.PostKey)
			cancel()
		}()
		spawnEchoThread(k)
	}

	// Each pair shares a pipe: the producer writes numbered lines, the
	// consumer copies them to the console.
	tasks := make([]*kern.Task, 0, 2**procs)
	for i := 0; i < *procs; i++ {
		pair := spawnPingPong(k, i)
		tasks = append(tasks, pair...)
	}

	logger.Info("machine running", "hz", *hz, "pairs", *procs)
	k.StartClock(ctx)
	defer k.StopClock()

	for _, t := range tasks {
		select {
		case <-t.Done():
		case <-ctx.Done():
		}
	}
	cancel()

	if *showStat {
		snap := k.Metrics().Snapshot()
		fmt.Printf("\nticks=%d switches=%d preempts=%d blocks=%d wakeups=%d\n",
			snap.Ticks, snap.Switches, snap.Preempts, snap.Blocks, snap.Wakeups)
		fmt.Printf("pipe bytes in=%d out=%d avg wake latency=%dns\n",
			snap.PipeWriteBytes, snap.PipeReadBytes, snap.AvgWakeLatencyNs)
	}
}

// spawnPingPong builds one producer/consumer pair over a shared pipe.
// The producer creates the pipe, then spawns the consumer as a child;
// the child inherits the descriptor table, so the endpoint numbers
// match on both sides.
func spawnPingPong(k *kern.Kernel, pair int) []*kern.Task {
	done := make(chan []*kern.Task, 1)

	producer, err := k.SpawnKernelThread(func(t *kern.Task) {
		rfd, wfd, err := k.Pipe(t)
		if err != nil {
			log.Printf("pair %d: pipe: %v", pair, err)
			done <- nil
			return
		}

		consumer, err := k.SpawnChild(t, func(c *kern.Task) {
			k.Close(c, wfd)
			buf := make([]byte, 64)
			for {
				n, err := k.Read(c, rfd, buf)
				if n == 0 || err != nil {
					k.Close(c, rfd)
					return
				}
				k.Write(c, 1, buf[:n])
			}
		})
		if err != nil {
			log.Printf("pair %d: spawn consumer: %v", pair, err)
			done <- nil
			return
		}
		done <- []*kern.Task{consumer}

		k.Close(t, rfd)
		for n := 0; n < 16; n++ {
			msg := fmt.Sprintf("pair %d message %d\n", pair, n)
			if _, err := k.Write(t, wfd, []byte(msg)); err != nil {
				break
			}
		}
		k.Close(t, wfd)
		k.Waitpid(t, -1)
	})
	if err != nil {
		log.Fatalf("spawn producer: %v", err)
	}

	tasks := []*kern.Task{producer}
	if more := <-done; more != nil {
		tasks = append(tasks, more...)
	}
	return tasks
}

// spawnEchoThread copies console input back to console output.
func spawnEchoThread(k *kern.Kernel) {
	_, err := k.SpawnKernelThread(func(t *kern.Task) {
		buf := make([]byte, 1)
		for {
			n, err := k.Read(t, 0, buf)
			if err != nil || n == 0 {
				return
			}
			if buf[0] == 3 { // ^C in raw mode
				return
			}
			k.Write(t, 1, buf[:n])
		}
	})
	if err != nil {
		log.Fatalf("spawn echo: %v", err)
	}
}
