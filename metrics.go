package kern

import (
	"sync/atomic"
	"time"
)

// WakeLatencyBuckets defines the wake-to-run latency histogram buckets
// in nanoseconds, from 1us to 10s with logarithmic spacing.
var WakeLatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks scheduler and I/O statistics for a kernel instance
type Metrics struct {
	// Scheduler counters
	Ticks    atomic.Uint64 // Timer interrupts delivered
	Switches atomic.Uint64 // Context switches performed
	Preempts atomic.Uint64 // Running tasks demoted by a tick
	Blocks   atomic.Uint64 // Voluntary sleeps on a wait queue
	Wakeups  atomic.Uint64 // Tasks marked Ready by a wake

	// Lifecycle counters
	Spawns atomic.Uint64 // Tasks created
	Exits  atomic.Uint64 // Tasks exited or killed

	// I/O counters
	PipeReadBytes  atomic.Uint64 // Bytes drained from pipes
	PipeWriteBytes atomic.Uint64 // Bytes landed in pipes
	Syscalls       atomic.Uint64 // System-call vector deliveries

	// Wake-to-run latency tracking
	WakeLatencyTotalNs atomic.Uint64
	WakeCount          atomic.Uint64

	// Latency histogram buckets (cumulative counts):
	// bucket[i] counts switches with wake latency <= WakeLatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Kernel lifecycle
	StartTime atomic.Int64 // Boot timestamp (UnixNano)
	StopTime  atomic.Int64 // Shutdown timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// recordWakeLatency records one switch's wake-to-run latency and
// updates the histogram.
func (m *Metrics) recordWakeLatency(latencyNs uint64) {
	m.WakeLatencyTotalNs.Add(latencyNs)
	m.WakeCount.Add(1)
	for i, bucket := range WakeLatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the kernel as shut down
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of the counters plus derived
// statistics.
type MetricsSnapshot struct {
	Ticks    uint64
	Switches uint64
	Preempts uint64
	Blocks   uint64
	Wakeups  uint64

	Spawns uint64
	Exits  uint64

	PipeReadBytes  uint64
	PipeWriteBytes uint64
	Syscalls       uint64

	AvgWakeLatencyNs uint64
	WakeLatencyP50Ns uint64
	WakeLatencyP99Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	UptimeNs        uint64
	SwitchesPerTick float64
	TicksPerSecond  float64
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Ticks:          m.Ticks.Load(),
		Switches:       m.Switches.Load(),
		Preempts:       m.Preempts.Load(),
		Blocks:         m.Blocks.Load(),
		Wakeups:        m.Wakeups.Load(),
		Spawns:         m.Spawns.Load(),
		Exits:          m.Exits.Load(),
		PipeReadBytes:  m.PipeReadBytes.Load(),
		PipeWriteBytes: m.PipeWriteBytes.Load(),
		Syscalls:       m.Syscalls.Load(),
	}

	total := m.WakeLatencyTotalNs.Load()
	count := m.WakeCount.Load()
	if count > 0 {
		snap.AvgWakeLatencyNs = total / count
		snap.WakeLatencyP50Ns = m.calculatePercentile(0.50)
		snap.WakeLatencyP99Ns = m.calculatePercentile(0.99)
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.Ticks > 0 {
		snap.SwitchesPerTick = float64(snap.Switches) / float64(snap.Ticks)
	}
	if snap.UptimeNs > 0 {
		snap.TicksPerSecond = float64(snap.Ticks) / (float64(snap.UptimeNs) / 1e9)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}
	return snap
}

// calculatePercentile estimates the wake latency at the given
// percentile (0.0-1.0) using linear interpolation between buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalCount := m.WakeCount.Load()
	if totalCount == 0 {
		return 0
	}
	targetCount := uint64(float64(totalCount) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range WakeLatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return WakeLatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all counters (useful for testing)
func (m *Metrics) Reset() {
	m.Ticks.Store(0)
	m.Switches.Store(0)
	m.Preempts.Store(0)
	m.Blocks.Store(0)
	m.Wakeups.Store(0)
	m.Spawns.Store(0)
	m.Exits.Store(0)
	m.PipeReadBytes.Store(0)
	m.PipeWriteBytes.Store(0)
	m.Syscalls.Store(0)
	m.WakeLatencyTotalNs.Store(0)
	m.WakeCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection from the scheduler and
// device paths. Implementations must be thread-safe.
type Observer interface {
	ObserveTick()
	ObserveSwitch(wakeLatencyNs uint64)
	ObservePreempt()
	ObserveBlock()
	ObserveWakeup(count int)
	ObserveSpawn()
	ObserveExit()
	ObservePipeRead(bytes uint64)
	ObservePipeWrite(bytes uint64)
	ObserveSyscall(num uint32)
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveTick()            {}
func (NoOpObserver) ObserveSwitch(uint64)    {}
func (NoOpObserver) ObservePreempt()         {}
func (NoOpObserver) ObserveBlock()           {}
func (NoOpObserver) ObserveWakeup(int)       {}
func (NoOpObserver) ObserveSpawn()           {}
func (NoOpObserver) ObserveExit()            {}
func (NoOpObserver) ObservePipeRead(uint64)  {}
func (NoOpObserver) ObservePipeWrite(uint64) {}
func (NoOpObserver) ObserveSyscall(uint32)   {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveTick() {
	o.metrics.Ticks.Add(1)
}

func (o *MetricsObserver) ObserveSwitch(wakeLatencyNs uint64) {
	o.metrics.Switches.Add(1)
	if wakeLatencyNs > 0 {
		o.metrics.recordWakeLatency(wakeLatencyNs)
	}
}

func (o *MetricsObserver) ObservePreempt() {
	o.metrics.Preempts.Add(1)
}

func (o *MetricsObserver) ObserveBlock() {
	o.metrics.Blocks.Add(1)
}

func (o *MetricsObserver) ObserveWakeup(count int) {
	o.metrics.Wakeups.Add(uint64(count))
}

func (o *MetricsObserver) ObserveSpawn() {
	o.metrics.Spawns.Add(1)
}

func (o *MetricsObserver) ObserveExit() {
	o.metrics.Exits.Add(1)
}

func (o *MetricsObserver) ObservePipeRead(bytes uint64) {
	o.metrics.PipeReadBytes.Add(bytes)
}

func (o *MetricsObserver) ObservePipeWrite(bytes uint64) {
	o.metrics.PipeWriteBytes.Add(bytes)
}

func (o *MetricsObserver) ObserveSyscall(uint32) {
	o.metrics.Syscalls.Add(1)
}

// Compile-time interface check
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
