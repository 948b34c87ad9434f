// Package precompile implements the PSO precompilation conveyor: an
// adaptive, batched pipeline that fetches recorded pipeline descriptors,
// preloads their shader bytecode and compiles them ahead of first use.
//
// A task flows through exactly one of the stages at a time: the backlog
// (TaskQueue), the in-flight descriptor reads (FetchStage), the preload and
// classification step (PrepareStage) and finally synchronous creation
// (CompileStage). A single mutex in Scheduler guards all conveyor state; the
// tick runs on one goroutine and asynchronous reads are polled, never waited
// on, outside of shutdown.
package precompile

import (
	"sync/atomic"
	"time"
)

// Counters are the process-wide task counters, readable without locks by
// telemetry and progress UI.
//
// Invariant: admitted == active + waiting + complete + dropped after every
// tick. Complete and dropped are monotonic.
type Counters struct {
	admitted atomic.Int64
	waiting  atomic.Int64
	active   atomic.Int64
	complete atomic.Int64
	dropped  atomic.Int64

	compileNanos atomic.Int64
}

// Admitted returns the number of tasks ever admitted to the conveyor.
func (c *Counters) Admitted() int64 { return c.admitted.Load() }

// Waiting returns the number of tasks in the backlog.
func (c *Counters) Waiting() int64 { return c.waiting.Load() }

// Active returns the number of tasks in flight between backlog and
// completion, including entries on the shutdown-drain list.
func (c *Counters) Active() int64 { return c.active.Load() }

// Complete returns the number of tasks accounted for, including compile
// failures, which are never retried.
func (c *Counters) Complete() int64 { return c.complete.Load() }

// Dropped returns the number of tasks permanently discarded without a
// compile attempt.
func (c *Counters) Dropped() int64 { return c.dropped.Load() }

// CompileTime returns the accumulated wall time spent in creation calls.
func (c *Counters) CompileTime() time.Duration {
	return time.Duration(c.compileNanos.Load())
}

// admit accounts for n newly seeded backlog tasks.
func (c *Counters) admit(n int64) {
	c.admitted.Add(n)
	c.waiting.Add(n)
}

// activate moves n tasks from the backlog into the conveyor.
func (c *Counters) activate(n int64) {
	c.waiting.Add(-n)
	c.active.Add(n)
}

// requeue moves one task from the conveyor back to the backlog.
func (c *Counters) requeue() {
	c.active.Add(-1)
	c.waiting.Add(1)
}

// drop permanently discards one in-flight task.
func (c *Counters) drop() {
	c.active.Add(-1)
	c.dropped.Add(1)
}

// dropWaiting permanently discards n backlog tasks (queue flush).
func (c *Counters) dropWaiting(n int64) {
	c.waiting.Add(-n)
	c.dropped.Add(n)
}

// finish accounts for one compiled (or compile-failed) task.
func (c *Counters) finish(elapsed time.Duration) {
	c.active.Add(-1)
	c.complete.Add(1)
	c.compileNanos.Add(int64(elapsed))
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Admitted    int64
	Waiting     int64
	Active      int64
	Complete    int64
	Dropped     int64
	CompileTime time.Duration
}

// Snapshot returns a point-in-time copy of the counters.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Admitted:    c.admitted.Load(),
		Waiting:     c.waiting.Load(),
		Active:      c.active.Load(),
		Complete:    c.complete.Load(),
		Dropped:     c.dropped.Load(),
		CompileTime: c.CompileTime(),
	}
}
