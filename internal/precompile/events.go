package precompile

import (
	"sync"
	"time"
)

// PrecompileStats accompanies the precompilation progress events.
type PrecompileStats struct {
	Total    int64
	Complete int64
	Dropped  int64
	Elapsed  time.Duration
}

// Events carries the cache lifecycle callbacks, intended for progress UI and
// telemetry. Callbacks run synchronously on the goroutine raising the event;
// keep them short.
type Events struct {
	mu              sync.Mutex
	preOpen         []func(name string)
	opened          []func(name string, records int64)
	closed          []func(name string)
	precompileBegin []func(tasks int64)
	precompileDone  []func(stats PrecompileStats)
}

// OnCachePreOpen registers a callback fired before the store is opened.
func (e *Events) OnCachePreOpen(fn func(name string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preOpen = append(e.preOpen, fn)
}

// OnCacheOpened registers a callback fired after the store opened.
func (e *Events) OnCacheOpened(fn func(name string, records int64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = append(e.opened, fn)
}

// OnCacheClosed registers a callback fired after the store closed.
func (e *Events) OnCacheClosed(fn func(name string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = append(e.closed, fn)
}

// OnPrecompilationBegin registers a callback fired when tasks are enqueued.
func (e *Events) OnPrecompilationBegin(fn func(tasks int64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.precompileBegin = append(e.precompileBegin, fn)
}

// OnPrecompilationComplete registers a callback fired when the backlog and
// conveyor empty out.
func (e *Events) OnPrecompilationComplete(fn func(stats PrecompileStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.precompileDone = append(e.precompileDone, fn)
}

func (e *Events) firePreOpen(name string) {
	for _, fn := range e.snapshotPreOpen() {
		fn(name)
	}
}

func (e *Events) fireOpened(name string, records int64) {
	e.mu.Lock()
	fns := append([]func(string, int64){}, e.opened...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(name, records)
	}
}

func (e *Events) fireClosed(name string) {
	e.mu.Lock()
	fns := append([]func(string){}, e.closed...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(name)
	}
}

func (e *Events) fireBegin(tasks int64) {
	e.mu.Lock()
	fns := append([]func(int64){}, e.precompileBegin...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(tasks)
	}
}

func (e *Events) fireComplete(stats PrecompileStats) {
	e.mu.Lock()
	fns := append([]func(PrecompileStats){}, e.precompileDone...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(stats)
	}
}

func (e *Events) snapshotPreOpen() []func(string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]func(string){}, e.preOpen...)
}
