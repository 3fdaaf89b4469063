package kern

import (
	"bytes"
	"sync"
)

// MockConsole provides a terminal sink for testing code built on the
// kernel: it captures terminal output and counts writes. Keyboard input
// is posted through Kernel.TypeString or Kernel.PostKey.
type MockConsole struct {
	mu  sync.Mutex
	out bytes.Buffer

	writeCalls int
}

// NewMockConsole creates an empty mock console. Pass it as the
// Terminal option at Boot.
func NewMockConsole() *MockConsole {
	return &MockConsole{}
}

// Write implements the terminal sink; it never blocks.
func (c *MockConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeCalls++
	return c.out.Write(p)
}

// Output returns everything written to the console so far.
func (c *MockConsole) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

// WriteCalls returns the number of Write invocations.
func (c *MockConsole) WriteCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeCalls
}

// Reset discards captured output and counters.
func (c *MockConsole) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.Reset()
	c.writeCalls = 0
}

// CountingObserver records only the observation counts; useful to
// assert which paths ran without depending on the built-in Metrics.
type CountingObserver struct {
	mu sync.Mutex

	Ticks    int
	Switches int
	Preempts int
	Blocks   int
	Wakeups  int
	Spawns   int
	Exits    int
	Reads    int
	Writes   int
	Syscalls int
}

func (o *CountingObserver) ObserveTick() {
	o.mu.Lock()
	o.Ticks++
	o.mu.Unlock()
}

func (o *CountingObserver) ObserveSwitch(uint64) {
	o.mu.Lock()
	o.Switches++
	o.mu.Unlock()
}

func (o *CountingObserver) ObservePreempt() {
	o.mu.Lock()
	o.Preempts++
	o.mu.Unlock()
}

func (o *CountingObserver) ObserveBlock() {
	o.mu.Lock()
	o.Blocks++
	o.mu.Unlock()
}

func (o *CountingObserver) ObserveWakeup(n int) {
	o.mu.Lock()
	o.Wakeups += n
	o.mu.Unlock()
}

func (o *CountingObserver) ObserveSpawn() {
	o.mu.Lock()
	o.Spawns++
	o.mu.Unlock()
}

func (o *CountingObserver) ObserveExit() {
	o.mu.Lock()
	o.Exits++
	o.mu.Unlock()
}

func (o *CountingObserver) ObservePipeRead(uint64) {
	o.mu.Lock()
	o.Reads++
	o.mu.Unlock()
}

func (o *CountingObserver) ObservePipeWrite(uint64) {
	o.mu.Lock()
	o.Writes++
	o.mu.Unlock()
}

func (o *CountingObserver) ObserveSyscall(uint32) {
	o.mu.Lock()
	o.Syscalls++
	o.mu.Unlock()
}

// Counts returns a copy of the counters.
func (o *CountingObserver) Counts() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[string]int{
		"ticks":    o.Ticks,
		"switches": o.Switches,
		"preempts": o.Preempts,
		"blocks":   o.Blocks,
		"wakeups":  o.Wakeups,
		"spawns":   o.Spawns,
		"exits":    o.Exits,
		"reads":    o.Reads,
		"writes":   o.Writes,
		"syscalls": o.Syscalls,
	}
}

// Compile-time interface check
var _ Observer = (*CountingObserver)(nil)
