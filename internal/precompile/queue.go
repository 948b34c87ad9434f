package precompile

import (
	"github.com/pso-precache/pkg/model"
)

// TaskQueue is the ordered backlog of PSO hashes not yet fetched. Requeued
// tasks re-enter at the front so a momentary shader gap never starves a task
// that was already fetched once.
//
// Not safe for concurrent use; the Scheduler's mutex guards it.
type TaskQueue struct {
	headers  []model.TaskHeader
	counters *Counters
}

// NewTaskQueue creates an empty queue reporting into the given counters.
func NewTaskQueue(counters *Counters) *TaskQueue {
	return &TaskQueue{counters: counters}
}

// Seed appends headers to the backlog, skipping any the tracked set already
// contains. Returns the number actually enqueued.
func (q *TaskQueue) Seed(headers []model.TaskHeader, tracked map[model.Hash]struct{}) int {
	added := 0
	for _, h := range headers {
		if _, ok := tracked[h.Hash]; ok {
			continue
		}
		tracked[h.Hash] = struct{}{}
		q.headers = append(q.headers, h)
		added++
	}
	q.counters.admit(int64(added))
	return added
}

// PushFront re-enqueues a requeued header at the highest priority position.
func (q *TaskQueue) PushFront(h model.TaskHeader) {
	q.headers = append([]model.TaskHeader{h}, q.headers...)
	q.counters.requeue()
}

// PopReadyBatch removes and returns up to max headers, scanning from the
// front, whose required shaders are all currently resolvable. Headers with
// unresolvable shaders stay queued; they may become resolvable as shader
// components open.
func (q *TaskQueue) PopReadyBatch(max int, available func(model.ShaderHash) bool) []model.TaskHeader {
	if max <= 0 || len(q.headers) == 0 {
		return nil
	}

	var ready []model.TaskHeader
	remaining := q.headers[:0]
	for _, h := range q.headers {
		if len(ready) < max && allAvailable(h.ShaderHashes, available) {
			ready = append(ready, h)
			continue
		}
		remaining = append(remaining, h)
	}
	q.headers = remaining

	q.counters.activate(int64(len(ready)))
	return ready
}

// Len returns the number of queued headers.
func (q *TaskQueue) Len() int {
	return len(q.headers)
}

// Drain empties the backlog, counting the removed tasks as dropped, and
// removes them from the tracked set.
func (q *TaskQueue) Drain(tracked map[model.Hash]struct{}) {
	for _, h := range q.headers {
		delete(tracked, h.Hash)
	}
	q.counters.dropWaiting(int64(len(q.headers)))
	q.headers = nil
}

func allAvailable(hashes []model.ShaderHash, available func(model.ShaderHash) bool) bool {
	for _, h := range hashes {
		if !available(h) {
			return false
		}
	}
	return true
}
