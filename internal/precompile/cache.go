package precompile

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pso-precache/internal/psostore"
	"github.com/pso-precache/internal/rhi"
	"github.com/pso-precache/internal/shaderlib"
	"github.com/pso-precache/pkg/config"
	apperrors "github.com/pso-precache/pkg/errors"
	"github.com/pso-precache/pkg/model"
	"github.com/pso-precache/pkg/telemetry"
	"github.com/pso-precache/pkg/utils"
)

// Options is the cache configuration resolved once at construction, instead
// of being re-read on every call.
type Options struct {
	Order        model.PSOOrder
	MinBindCount int
	MaskEnabled  bool
	DefaultMask  model.UsageMask

	StartupMode model.BatchMode
	Fast        BatchConfig
	Background  BatchConfig
	Precompile  BatchConfig

	// MaxPrecompileTime bounds a blocking precompile pass; once exceeded the
	// cache demotes itself to Background so a misconfigured pass can never
	// block game start indefinitely. Zero means no ceiling.
	MaxPrecompileTime time.Duration

	TickInterval      time.Duration
	AutoSaveThreshold int
	AutoSaveInterval  time.Duration
	CloseSaveMode     model.SaveMode
	ReadPoolSize      int
}

// DefaultOptions returns conservative background-mode defaults.
func DefaultOptions() Options {
	return Options{
		Order:         model.OrderMostBound,
		StartupMode:   model.ModeBackground,
		Fast:          BatchConfig{BatchSize: 50, TargetBatchTime: 16 * time.Millisecond},
		Background:    BatchConfig{BatchSize: 1},
		Precompile:    BatchConfig{BatchSize: 50, TargetBatchTime: 10 * time.Millisecond},
		TickInterval:  100 * time.Millisecond,
		CloseSaveMode: model.SaveIncremental,
		ReadPoolSize:  8,
	}
}

// OptionsFromConfig resolves Options from application configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	b := cfg.Batching

	opts.StartupMode = model.ParseBatchMode(b.StartupMode)
	opts.Fast = BatchConfig{
		BatchSize:       b.FastBatchSize,
		TargetBatchTime: time.Duration(b.FastBatchTime) * time.Millisecond,
	}
	opts.Background = BatchConfig{
		BatchSize:       b.BackgroundSize,
		TargetBatchTime: time.Duration(b.BackgroundTime) * time.Millisecond,
	}
	opts.Precompile = BatchConfig{
		BatchSize:       b.PrecompileBatchSize,
		TargetBatchTime: time.Duration(b.PrecompileBatchTime) * time.Millisecond,
	}
	opts.MaxPrecompileTime = time.Duration(b.MaxPrecompileTime) * time.Millisecond
	opts.TickInterval = time.Duration(b.TickInterval) * time.Millisecond
	opts.MinBindCount = b.MinBindCount
	opts.MaskEnabled = b.MaskEnabled
	opts.DefaultMask = model.UsageMask(b.DefaultMask)
	opts.ReadPoolSize = b.ReadPoolSize
	opts.AutoSaveThreshold = cfg.AutoSave.Threshold
	opts.AutoSaveInterval = time.Duration(cfg.AutoSave.Interval) * time.Second
	return opts
}

// Cache is the process-wide PSO precompilation service. It owns the conveyor
// plus the lifecycle state around it: pause counting, batch mode presets,
// usage mask gating and store open/save/close.
type Cache struct {
	opts    Options
	store   psostore.Store
	library shaderlib.Library
	states  *rhi.StateCaches
	pool    *ReadPool
	sched   *Scheduler
	events  Events
	logger  utils.Logger
	clock   utils.Clock

	mu             sync.Mutex
	opened         bool
	name           string
	mode           model.BatchMode
	pauseCount     int
	maskSet        bool
	mask           model.UsageMask
	cmp            model.MaskComparer
	completedMasks map[model.UsageMask]struct{}
	inProgress     bool
	passStart      time.Time
	deadline       time.Time
	lastSave       time.Time
	unsubscribe    func()

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New constructs the cache service. Call Open before use and Close when
// done.
func New(opts Options, store psostore.Store, library shaderlib.Library, backend rhi.Backend, clock utils.Clock, logger utils.Logger) (*Cache, error) {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if clock == nil {
		clock = utils.NewRealClock()
	}

	pool, err := NewReadPool(opts.ReadPoolSize)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to create read pool", err)
	}

	states := rhi.NewStateCaches()
	c := &Cache{
		opts:           opts,
		store:          store,
		library:        library,
		states:         states,
		pool:           pool,
		sched:          NewScheduler(store, library, backend, states, pool, clock, logger),
		logger:         logger,
		clock:          clock,
		mode:           model.ModePaused,
		mask:           opts.DefaultMask,
		cmp:            model.MaskAnyMatch,
		completedMasks: make(map[model.UsageMask]struct{}),
	}
	if opts.DefaultMask != 0 {
		c.maskSet = true
	}
	return c, nil
}

// Events returns the lifecycle event registration surface.
func (c *Cache) Events() *Events {
	return &c.events
}

// Open opens the named store, seeds the backlog (unless usage-mask gating
// defers it) and installs the startup batch mode.
func (c *Cache) Open(ctx context.Context, name string) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return apperrors.ErrAlreadyOpen
	}
	c.mu.Unlock()

	c.events.firePreOpen(name)

	info, err := c.store.Open(ctx, name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.opened = true
	c.name = name
	c.lastSave = c.clock.Now()
	if c.maskSet || !c.opts.MaskEnabled {
		mask := c.mask
		if !c.opts.MaskEnabled {
			mask = model.MaskAll
		}
		c.store.SetUsageMask(mask, c.cmp)
	}
	deferred := c.opts.MaskEnabled && !c.maskSet
	c.mu.Unlock()

	c.events.fireOpened(name, info.RecordCount)

	if deferred {
		c.logger.Info("Cache %s opened; seeding deferred until a usage mask is set", name)
	} else if err := c.seed(ctx); err != nil {
		return err
	}

	// Library components opening later can make requeued or newly relevant
	// tasks resolvable; reseed to pick up records excluded so far.
	unsub := c.library.Notify(func(ev shaderlib.Event) {
		if ev.Kind == shaderlib.ComponentOpened {
			if err := c.seed(context.Background()); err != nil {
				c.logger.Warn("Reseed after shader component open failed: %v", err)
			}
		}
	})
	c.mu.Lock()
	c.unsubscribe = unsub
	c.mu.Unlock()

	c.SetBatchMode(c.opts.StartupMode)
	return nil
}

// seed queries the store for headers under the current mask and enqueues the
// ones not already compiled or in the conveyor.
func (c *Cache) seed(ctx context.Context) error {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return apperrors.ErrNotOpen
	}
	if c.maskSet {
		if _, done := c.completedMasks[c.mask]; done {
			c.mu.Unlock()
			return nil
		}
	}
	c.mu.Unlock()

	headers, err := c.store.OrderedHeaders(ctx, c.opts.Order, c.opts.MinBindCount, c.sched.CompiledHashes())
	if err != nil {
		return err
	}

	added := c.sched.Seed(headers)
	if added == 0 {
		return nil
	}
	c.logger.Info("Enqueued %d PSO precompile tasks", added)

	c.mu.Lock()
	begin := !c.inProgress
	if begin {
		c.inProgress = true
		c.passStart = c.clock.Now()
	}
	c.mu.Unlock()

	if begin {
		c.events.fireBegin(c.sched.NumRemaining())
	}
	return nil
}

// Tick runs one conveyor iteration unless paused. Exposed so a host engine
// can drive the cache from its own frame loop instead of Start.
func (c *Cache) Tick(ctx context.Context) {
	c.mu.Lock()
	paused := !c.opened || c.pauseCount > 0 || c.mode == model.ModePaused
	overDeadline := c.mode == model.ModePrecompile && !c.deadline.IsZero() && c.clock.Now().After(c.deadline)
	c.mu.Unlock()

	if paused {
		return
	}
	if overDeadline {
		c.logger.Warn("Precompile wall-clock ceiling exceeded, demoting to background mode")
		c.SetBatchMode(model.ModeBackground)
	}

	c.sched.Tick(ctx)
	c.checkPassComplete()
	c.maybeAutoSave(ctx)
}

// checkPassComplete fires the completion event once the backlog and conveyor
// have fully emptied, and records the mask as fully precompiled.
func (c *Cache) checkPassComplete() {
	if c.sched.NumRemaining() != 0 {
		return
	}

	c.mu.Lock()
	if !c.inProgress {
		c.mu.Unlock()
		return
	}
	c.inProgress = false
	if c.maskSet {
		c.completedMasks[c.mask] = struct{}{}
	}
	elapsed := c.clock.Since(c.passStart)
	c.mu.Unlock()

	snap := c.sched.Counters().Snapshot()
	c.events.fireComplete(PrecompileStats{
		Total:    snap.Admitted,
		Complete: snap.Complete,
		Dropped:  snap.Dropped,
		Elapsed:  elapsed,
	})
	c.logger.Info("Precompilation complete: %d compiled, %d dropped in %v",
		snap.Complete, snap.Dropped, elapsed)
}

// maybeAutoSave persists the bound-PSO log when enough new binds accumulated
// or the save interval elapsed.
func (c *Cache) maybeAutoSave(ctx context.Context) {
	c.mu.Lock()
	last := c.lastSave
	c.mu.Unlock()

	binds := c.store.NumNewBinds()
	byThreshold := c.opts.AutoSaveThreshold > 0 && binds >= c.opts.AutoSaveThreshold
	byTimer := c.opts.AutoSaveInterval > 0 && binds > 0 && c.clock.Since(last) >= c.opts.AutoSaveInterval
	if !byThreshold && !byTimer {
		return
	}

	if err := c.Save(ctx, model.SaveBoundOnly); err != nil {
		c.logger.Warn("Auto-save failed: %v", err)
	}
}

// Save persists the store per the given mode.
func (c *Cache) Save(ctx context.Context, mode model.SaveMode) error {
	if err := c.store.Save(ctx, mode); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastSave = c.clock.Now()
	c.mu.Unlock()
	return nil
}

// Pause increments the pause count; the conveyor does not tick while it is
// positive.
func (c *Cache) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseCount++
}

// Resume decrements the pause count.
func (c *Cache) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pauseCount > 0 {
		c.pauseCount--
	}
}

// IsPaused reports whether the conveyor is currently withheld from ticking.
func (c *Cache) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseCount > 0 || c.mode == model.ModePaused
}

// SetBatchMode installs the mode's batching preset wholesale.
func (c *Cache) SetBatchMode(mode model.BatchMode) {
	c.mu.Lock()
	c.mode = mode
	c.deadline = time.Time{}
	var cfg BatchConfig
	switch mode {
	case model.ModeFast:
		cfg = c.opts.Fast
	case model.ModePrecompile:
		cfg = c.opts.Precompile
		if c.opts.MaxPrecompileTime > 0 {
			c.deadline = c.clock.Now().Add(c.opts.MaxPrecompileTime)
		}
	default:
		cfg = c.opts.Background
	}
	c.mu.Unlock()

	c.sched.SetBatchConfig(cfg)
	c.logger.Debug("Batch mode set to %s (batch size %d, target %v)", mode, cfg.BatchSize, cfg.TargetBatchTime)
}

// Mode returns the current batch mode.
func (c *Cache) Mode() model.BatchMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetUsageMask installs a new game usage mask. A changed mask flushes the
// conveyor (keeping the compiled set) and requeries the store, unless the
// mask was already fully precompiled. Returns whether the mask changed.
func (c *Cache) SetUsageMask(ctx context.Context, mask model.UsageMask, cmp model.MaskComparer) (bool, error) {
	if !c.opts.MaskEnabled {
		return false, nil
	}

	c.mu.Lock()
	if c.maskSet && c.mask == mask {
		c.mu.Unlock()
		return false, nil
	}
	c.mask = mask
	c.maskSet = true
	if cmp != nil {
		c.cmp = cmp
	}
	cmp = c.cmp
	opened := c.opened
	c.mu.Unlock()

	if !opened {
		return true, nil
	}

	c.store.SetUsageMask(mask, cmp)
	c.Flush(false)
	if err := c.seed(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Flush cancels all in-flight work and empties the backlog without closing
// the store. When clearCompiled is set, the compiled-hash dedup set and the
// completed-mask set are cleared too.
func (c *Cache) Flush(clearCompiled bool) {
	c.sched.Flush(clearCompiled)
	if clearCompiled {
		c.mu.Lock()
		c.completedMasks = make(map[model.UsageMask]struct{})
		c.mu.Unlock()
	}
	c.mu.Lock()
	c.inProgress = false
	c.mu.Unlock()
}

// Close saves the store, drains outstanding reads and releases the state
// caches. The cache may be reopened afterwards.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return apperrors.ErrNotOpen
	}
	name := c.name
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	c.Stop()

	if unsub != nil {
		unsub()
	}

	if err := c.Save(ctx, c.opts.CloseSaveMode); err != nil {
		c.logger.Warn("Final save failed: %v", err)
	}

	c.sched.Shutdown()
	c.states.Release()

	err := c.store.Close()

	c.mu.Lock()
	c.opened = false
	c.inProgress = false
	c.mode = model.ModePaused
	c.mu.Unlock()

	c.events.fireClosed(name)
	return err
}

// Shutdown closes the cache if open and releases the read pool. The cache
// must not be used afterwards.
func (c *Cache) Shutdown(ctx context.Context) error {
	var err error
	c.mu.Lock()
	opened := c.opened
	c.mu.Unlock()
	if opened {
		err = c.Close(ctx)
	}
	c.pool.Close()
	return err
}

// Start launches the background tick loop. Stop or Close ends it.
func (c *Cache) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				c.Tick(ctx)
			}
		}
	}()

	c.logger.Info("Precompile tick loop started (interval %v)", c.opts.TickInterval)
	return nil
}

// Stop ends the background tick loop.
func (c *Cache) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if !c.running {
		return
	}
	close(c.stopCh)
	c.wg.Wait()
	c.running = false
}

// RunPrecompile performs a blocking precompile pass: precompile-mode ticking
// until the backlog empties or only unresolvable tasks remain, the wall-clock
// ceiling demotes the mode, or the context is cancelled.
func (c *Cache) RunPrecompile(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, "precompile.pass")
	defer span.End()

	c.SetBatchMode(model.ModePrecompile)
	var last Snapshot
	for c.sched.NumRemaining() > 0 && c.Mode() == model.ModePrecompile {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.Tick(ctx)

		// A tick that changes nothing while no task is in flight means the
		// rest of the backlog waits on shader components that are not open.
		// Stop instead of spinning; a later component open reseeds them.
		snap := c.sched.Counters().Snapshot()
		if snap == last && snap.Active == 0 {
			c.logger.Warn("Precompile pass stopped with %d tasks waiting on unopened shader components", snap.Waiting)
			break
		}
		last = snap

		c.clock.Sleep(time.Millisecond)
	}

	snap := c.sched.Counters().Snapshot()
	span.SetAttributes(
		attribute.Int64("complete", snap.Complete),
		attribute.Int64("dropped", snap.Dropped),
	)
	return nil
}

// NumPrecompilesRemaining returns backlog plus in-flight task count.
func (c *Cache) NumPrecompilesRemaining() int64 {
	return c.sched.NumRemaining()
}

// NumPrecompilesActive returns the number of tasks in the conveyor stages.
func (c *Cache) NumPrecompilesActive() int64 {
	return c.sched.Counters().Active()
}

// CacheStats is a point-in-time view of the cache for tooling.
type CacheStats struct {
	Counters  Snapshot
	Mode      string
	BatchSize int
	Remaining int64
}

// Stats returns a point-in-time view of the cache.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Counters:  c.sched.Counters().Snapshot(),
		Mode:      c.Mode().String(),
		BatchSize: c.sched.BatchConfig().BatchSize,
		Remaining: c.sched.NumRemaining(),
	}
}
