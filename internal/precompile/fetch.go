package precompile

import (
	"container/list"
	"context"

	"github.com/pso-precache/internal/psostore"
	"github.com/pso-precache/pkg/model"
)

// FetchEntry is an in-flight asynchronous read of a PSO descriptor's raw
// bytes. Exclusively owned by the FetchStage list while pending; transferred
// to PrepareStage on completion or to the shutdown drain on cancellation.
type FetchEntry struct {
	Header model.TaskHeader
	Handle *ReadHandle
}

// Bytes returns the descriptor bytes once the read completed.
func (e *FetchEntry) Bytes() []byte {
	for _, r := range e.Handle.Results() {
		if r.Key == uint64(e.Header.Hash) {
			return r.Data
		}
	}
	return nil
}

// FetchStage manages descriptor byte reads for a bounded number of
// concurrent fetches. Entries live in a doubly linked list so partial
// completions can be removed mid-list in O(1) while preserving FIFO order.
//
// Not safe for concurrent use; the Scheduler's mutex guards it.
type FetchStage struct {
	entries *list.List // of *FetchEntry
	store   psostore.Store
	pool    *ReadPool
}

// NewFetchStage creates an empty stage reading descriptors from the store.
func NewFetchStage(store psostore.Store, pool *ReadPool) *FetchStage {
	return &FetchStage{
		entries: list.New(),
		store:   store,
		pool:    pool,
	}
}

// Admit issues an asynchronous descriptor read per header and appends the
// resulting entries to the stage.
func (f *FetchStage) Admit(ctx context.Context, headers []model.TaskHeader) {
	for _, header := range headers {
		entry := &FetchEntry{
			Header: header,
			Handle: newReadHandle(),
		}
		hash := header.Hash
		entry.Handle.issue(ctx, f.pool, uint64(hash), func(ctx context.Context) ([]byte, error) {
			return f.store.FetchDescriptor(ctx, hash)
		})
		f.entries.PushBack(entry)
	}
}

// PollCompleted removes and returns the entries whose reads have completed,
// in FIFO order. Incomplete entries remain in place.
func (f *FetchStage) PollCompleted() []*FetchEntry {
	var done []*FetchEntry
	for el := f.entries.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*FetchEntry)
		if entry.Handle.Poll() {
			f.entries.Remove(el)
			done = append(done, entry)
		}
		el = next
	}
	return done
}

// Len returns the number of in-flight fetches.
func (f *FetchStage) Len() int {
	return f.entries.Len()
}

// DrainTo moves every in-flight entry to the shutdown drain, removes it from
// the tracked set and returns how many were moved.
func (f *FetchStage) DrainTo(drain *drainList, tracked map[model.Hash]struct{}) int {
	n := 0
	for el := f.entries.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*FetchEntry)
		drain.add(entry.Handle)
		delete(tracked, entry.Header.Hash)
		f.entries.Remove(el)
		n++
		el = next
	}
	return n
}
