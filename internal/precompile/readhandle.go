package precompile

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
)

// ReadPool is the shared goroutine pool asynchronous descriptor and shader
// reads run on. Bounding the pool keeps precompilation from monopolizing
// I/O during gameplay.
type ReadPool struct {
	pool *ants.Pool
}

// NewReadPool creates a pool of the given size.
func NewReadPool(size int) (*ReadPool, error) {
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &ReadPool{pool: pool}, nil
}

// Close releases the pool's goroutines.
func (p *ReadPool) Close() {
	p.pool.Release()
}

// submit runs job on the pool, falling back to a plain goroutine if the pool
// refuses (released or overloaded). Reads must always make progress or the
// handles tracking them would never complete.
func (p *ReadPool) submit(job func()) {
	if err := p.pool.Submit(job); err != nil {
		go job()
	}
}

// ReadResult is the outcome of one asynchronous read.
type ReadResult struct {
	Key  uint64
	Data []byte
	Err  error
}

// ReadHandle owns a set of outstanding asynchronous reads. The conveyor
// polls it each tick; the only blocking wait happens at shutdown, when
// memory cannot be freed until all reads have landed.
type ReadHandle struct {
	pending atomic.Int32
	wg      sync.WaitGroup

	mu      sync.Mutex
	results []ReadResult
}

// newReadHandle creates a handle with no outstanding reads.
func newReadHandle() *ReadHandle {
	return &ReadHandle{}
}

// issue starts an asynchronous read on the pool. The key identifies the read
// in Results.
func (h *ReadHandle) issue(ctx context.Context, pool *ReadPool, key uint64, read func(context.Context) ([]byte, error)) {
	h.pending.Add(1)
	h.wg.Add(1)
	pool.submit(func() {
		data, err := read(ctx)
		h.mu.Lock()
		h.results = append(h.results, ReadResult{Key: key, Data: data, Err: err})
		h.mu.Unlock()
		h.pending.Add(-1)
		h.wg.Done()
	})
}

// Poll reports whether every issued read has completed. A handle with no
// reads is complete.
func (h *ReadHandle) Poll() bool {
	return h.pending.Load() == 0
}

// Wait blocks until every issued read has completed. Shutdown only.
func (h *ReadHandle) Wait() {
	h.wg.Wait()
}

// Results returns the completed reads. Call only after Poll reports true.
func (h *ReadHandle) Results() []ReadResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ReadResult, len(h.results))
	copy(out, h.results)
	return out
}

// Err returns the first read error, if any completed read failed.
func (h *ReadHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
