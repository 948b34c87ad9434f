package precompile

import (
	"container/list"

	"github.com/pso-precache/internal/rhi"
	apperrors "github.com/pso-precache/pkg/errors"
	"github.com/pso-precache/pkg/model"
	"github.com/pso-precache/pkg/utils"
)

// FenceCheck reports whether the render backend is ready for another compile
// batch. Compilation is serialized against the previous batch's GPU work on
// platforms where command-list overlap is a problem.
type FenceCheck func() bool

// CompileStage synchronously creates pipeline objects for jobs whose shader
// preloads have completed, and owns the compiled-hash dedup set.
//
// Not safe for concurrent use; the Scheduler's mutex guards it.
type CompileStage struct {
	jobs     *list.List // of *CompileJob
	backend  rhi.Backend
	states   *rhi.StateCaches
	counters *Counters
	clock    utils.Clock
	logger   utils.Logger
	fence    FenceCheck

	compiled map[model.Hash]struct{}
}

// NewCompileStage creates an empty stage compiling on the given backend.
func NewCompileStage(backend rhi.Backend, states *rhi.StateCaches, counters *Counters, clock utils.Clock, logger utils.Logger) *CompileStage {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if clock == nil {
		clock = utils.NewRealClock()
	}
	return &CompileStage{
		jobs:     list.New(),
		backend:  backend,
		states:   states,
		counters: counters,
		clock:    clock,
		logger:   logger,
		compiled: make(map[model.Hash]struct{}),
	}
}

// SetFence installs the compile gate. A nil fence never blocks.
func (c *CompileStage) SetFence(fence FenceCheck) {
	c.fence = fence
}

// Add accepts a prepared job whose preloads may still be in flight.
func (c *CompileStage) Add(job *CompileJob) {
	c.jobs.PushBack(job)
}

// Len returns the number of jobs held, ready or not.
func (c *CompileStage) Len() int {
	return c.jobs.Len()
}

// ReadyToCompile reports whether at least one job's preloads have all
// completed and the compile fence, if any, is clear.
func (c *CompileStage) ReadyToCompile() bool {
	if c.fence != nil && !c.fence() {
		return false
	}
	for el := c.jobs.Front(); el != nil; el = el.Next() {
		if el.Value.(*CompileJob).Handle.Poll() {
			return true
		}
	}
	return false
}

// CompileBatch compiles up to max ready jobs and returns how many were
// processed plus the headers of jobs whose shader preload failed and must be
// requeued. Tracked-set removal for finished hashes happens here.
func (c *CompileStage) CompileBatch(max int, tracked map[model.Hash]struct{}) (int, []model.TaskHeader) {
	processed := 0
	var requeues []model.TaskHeader

	for el := c.jobs.Front(); el != nil && processed < max; {
		next := el.Next()
		job := el.Value.(*CompileJob)
		if !job.Handle.Poll() {
			el = next
			continue
		}
		c.jobs.Remove(el)
		processed++

		if err := job.Handle.Err(); err != nil {
			// The shader existed when prepared but its read failed; treat it
			// like a transient shader gap and send the task around again.
			c.logger.Warn("Shader preload failed for %s, requeueing: %v", job.Header.Hash, err)
			requeues = append(requeues, job.Header)
			el = next
			continue
		}

		c.compileOne(job)
		delete(tracked, job.Header.Hash)
		el = next
	}

	return processed, requeues
}

// compileOne runs a single creation call and accounts for the job. Failures
// count as complete: downstream progress must be monotonic regardless of
// per-PSO outcome.
func (c *CompileStage) compileOne(job *CompileJob) {
	hash := job.Header.Hash
	sw := utils.StartStopwatch(c.clock)

	if _, dup := c.compiled[hash]; dup {
		// Single-assignment conveyor means this should not happen, but a
		// duplicate never compiles twice.
		c.logger.Warn("Hash %s already compiled, skipping", hash)
		c.counters.finish(sw.Elapsed())
		return
	}

	if err := job.Descriptor.Validate(); err != nil {
		c.logger.Error("Descriptor %s failed consistency check, not compiling: %v", hash, err)
		c.compiled[hash] = struct{}{}
		c.counters.finish(sw.Elapsed())
		return
	}

	shaders := make(map[model.ShaderHash][]byte)
	for _, r := range job.Handle.Results() {
		shaders[model.ShaderHash(r.Key)] = r.Data
	}

	var err error
	switch job.Descriptor.Kind {
	case model.KindGraphics:
		c.states.Intern(job.Descriptor.Graphics)
		err = c.backend.CreateGraphicsPipeline(job.Descriptor.Graphics, shaders)
	case model.KindCompute:
		err = c.backend.CreateComputePipeline(job.Descriptor.Compute, shaders)
	case model.KindRayTracing:
		err = c.backend.CreateRayTracingPipeline(job.Descriptor.RayTracing, shaders)
	default:
		err = apperrors.ErrInvalidDescriptor
	}

	elapsed := sw.Elapsed()
	if err != nil {
		// Not retried: this PSO compiles normally on first real use.
		c.logger.Warn("Pipeline creation failed for %s (%s) after %v: %v",
			hash, job.Descriptor.Kind, elapsed, err)
	} else {
		c.logger.Debug("Compiled %s (%s) in %v", hash, job.Descriptor.Kind, elapsed)
	}

	c.compiled[hash] = struct{}{}
	c.counters.finish(elapsed)
}

// Compiled reports whether the hash has been accounted for by a compile.
func (c *CompileStage) Compiled(hash model.Hash) bool {
	_, ok := c.compiled[hash]
	return ok
}

// CompiledHashes returns a copy of the compiled-hash dedup set.
func (c *CompileStage) CompiledHashes() map[model.Hash]struct{} {
	out := make(map[model.Hash]struct{}, len(c.compiled))
	for h := range c.compiled {
		out[h] = struct{}{}
	}
	return out
}

// ClearCompiled empties the dedup set.
func (c *CompileStage) ClearCompiled() {
	c.compiled = make(map[model.Hash]struct{})
}

// DrainTo moves every held job's handle to the shutdown drain, removes the
// jobs from the tracked set and returns how many were moved.
func (c *CompileStage) DrainTo(drain *drainList, tracked map[model.Hash]struct{}) int {
	n := 0
	for el := c.jobs.Front(); el != nil; {
		next := el.Next()
		job := el.Value.(*CompileJob)
		drain.add(job.Handle)
		delete(tracked, job.Header.Hash)
		c.jobs.Remove(el)
		n++
		el = next
	}
	return n
}
