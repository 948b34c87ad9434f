package precompile

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pso-precache/internal/psostore"
	"github.com/pso-precache/internal/rhi"
	"github.com/pso-precache/internal/shaderlib"
	"github.com/pso-precache/pkg/model"
	"github.com/pso-precache/pkg/telemetry"
	"github.com/pso-precache/pkg/utils"
)

// BatchConfig is the scheduler's budget: how many tasks may be in flight and
// the wall-clock target a compile batch adapts toward. A zero target means
// no cap.
type BatchConfig struct {
	BatchSize       int
	TargetBatchTime time.Duration
}

// Scheduler runs the conveyor tick: compile what is ready, admit what fits,
// poll fetches into preparation and route the outcomes. One mutex guards the
// whole conveyor; ticks run on a single goroutine but mask changes and
// flushes arrive from others.
type Scheduler struct {
	mu sync.Mutex

	cfg      BatchConfig
	queue    *TaskQueue
	fetch    *FetchStage
	prepare  *PrepareStage
	compile  *CompileStage
	drain    *drainList
	counters *Counters
	library  shaderlib.Library
	logger   utils.Logger
	clock    utils.Clock

	// tracked holds every hash currently in the conveyor (backlog included),
	// enforcing the single-assignment invariant: a hash is processed by at
	// most one stage at a time.
	tracked map[model.Hash]struct{}
}

// NewScheduler wires the conveyor stages together.
func NewScheduler(store psostore.Store, library shaderlib.Library, backend rhi.Backend, states *rhi.StateCaches, pool *ReadPool, clock utils.Clock, logger utils.Logger) *Scheduler {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if clock == nil {
		clock = utils.NewRealClock()
	}

	counters := &Counters{}
	s := &Scheduler{
		cfg:      BatchConfig{BatchSize: 1},
		queue:    NewTaskQueue(counters),
		fetch:    NewFetchStage(store, pool),
		prepare:  NewPrepareStage(library, backend, pool, counters, logger),
		compile:  NewCompileStage(backend, states, counters, clock, logger),
		drain:    newDrainList(counters),
		counters: counters,
		library:  library,
		logger:   logger,
		clock:    clock,
		tracked:  make(map[model.Hash]struct{}),
	}
	return s
}

// Counters returns the conveyor's task counters.
func (s *Scheduler) Counters() *Counters {
	return s.counters
}

// SetBatchConfig replaces the budget wholesale, as happens on a batch mode
// switch.
func (s *Scheduler) SetBatchConfig(cfg BatchConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	s.cfg = cfg
}

// BatchConfig returns the current budget, including adaptive adjustments.
func (s *Scheduler) BatchConfig() BatchConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetFence installs the compile gate on the compile stage.
func (s *Scheduler) SetFence(fence FenceCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compile.SetFence(fence)
}

// Seed appends headers to the backlog, skipping hashes already in the
// conveyor or already compiled. Returns the number enqueued.
func (s *Scheduler) Seed(headers []model.TaskHeader) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := headers[:0:0]
	for _, h := range headers {
		if s.compile.Compiled(h.Hash) {
			continue
		}
		fresh = append(fresh, h)
	}
	return s.queue.Seed(fresh, s.tracked)
}

// CompiledHashes returns a copy of the compiled-hash dedup set.
func (s *Scheduler) CompiledHashes() map[model.Hash]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compile.CompiledHashes()
}

// NumRemaining returns backlog plus in-conveyor task count.
func (s *Scheduler) NumRemaining() int64 {
	return s.counters.Waiting() + s.counters.Active()
}

// Tick runs one conveyor iteration: drain poll, compile, admit, then fetch
// polling and preparation.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drain.poll()

	// Compile first so a full pipeline keeps moving even when the backlog
	// is empty, and adapt the batch size toward the time budget.
	if s.compile.ReadyToCompile() {
		s.runCompileBatch(ctx)
	}

	// Top the fetch stage up to the batch size.
	if capacity := s.cfg.BatchSize - s.fetch.Len(); capacity > 0 && s.queue.Len() > 0 {
		headers := s.queue.PopReadyBatch(capacity, s.library.Contains)
		if len(headers) > 0 {
			s.fetch.Admit(ctx, headers)
		}
	}

	// Route completed fetches.
	for _, entry := range s.fetch.PollCompleted() {
		outcome := s.prepare.Prepare(ctx, entry)
		switch outcome.Kind {
		case OutcomeReady:
			s.compile.Add(outcome.Job)
		case OutcomeRequeue:
			s.queue.PushFront(outcome.Header)
		case OutcomeIncompatible, OutcomeInvalid:
			// Already counted as dropped by the prepare stage.
			delete(s.tracked, entry.Header.Hash)
		}
	}
}

// runCompileBatch compiles one batch and applies the additive
// increase/additive decrease adjustment against the time budget.
func (s *Scheduler) runCompileBatch(ctx context.Context) {
	_, span := telemetry.Tracer().Start(ctx, "precompile.compile_batch",
		trace.WithAttributes(attribute.Int("batch_size", s.cfg.BatchSize)))
	defer span.End()

	sw := utils.StartStopwatch(s.clock)
	processed, requeues := s.compile.CompileBatch(s.cfg.BatchSize, s.tracked)
	elapsed := sw.Elapsed()

	for _, header := range requeues {
		s.queue.PushFront(header)
	}

	span.SetAttributes(
		attribute.Int("processed", processed),
		attribute.Int64("elapsed_us", elapsed.Microseconds()),
	)

	if processed == 0 || s.cfg.TargetBatchTime <= 0 {
		return
	}
	if elapsed < s.cfg.TargetBatchTime {
		s.cfg.BatchSize++
	} else if elapsed > s.cfg.TargetBatchTime && s.cfg.BatchSize > 1 {
		s.cfg.BatchSize--
	}
}

// Flush cancels all in-flight work and empties the backlog. Abandoned reads
// move to the shutdown drain, which is polled to completion but never
// resumed. Idempotent.
func (s *Scheduler) Flush(clearCompiled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue.Drain(s.tracked)
	nFetch := s.fetch.DrainTo(s.drain, s.tracked)
	nCompile := s.compile.DrainTo(s.drain, s.tracked)
	if clearCompiled {
		s.compile.ClearCompiled()
	}

	if nFetch+nCompile > 0 {
		s.logger.Debug("Flushed %d fetches and %d compile jobs to the shutdown drain", nFetch, nCompile)
	}
}

// Shutdown flushes and then blocks until every abandoned read has landed.
// The conveyor must not tick afterwards.
func (s *Scheduler) Shutdown() {
	s.Flush(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drain.waitAll()
}
