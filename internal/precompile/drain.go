package precompile

// drainList holds read handles abandoned by Flush. Some I/O back-ends have
// no cancel primitive, so abandoned reads are not aborted; they are polled
// to completion here and discarded, keeping the hot path free of them.
type drainList struct {
	handles  []*ReadHandle
	counters *Counters
}

func newDrainList(counters *Counters) *drainList {
	return &drainList{counters: counters}
}

// add takes ownership of an abandoned handle. The task stays on the active
// counter until its reads land.
func (d *drainList) add(h *ReadHandle) {
	d.handles = append(d.handles, h)
}

// poll discards handles whose reads have all completed.
func (d *drainList) poll() {
	remaining := d.handles[:0]
	for _, h := range d.handles {
		if h.Poll() {
			d.counters.drop()
			continue
		}
		remaining = append(remaining, h)
	}
	d.handles = remaining
}

// waitAll blocks until every abandoned read has landed. Shutdown only.
func (d *drainList) waitAll() {
	for _, h := range d.handles {
		h.Wait()
		d.counters.drop()
	}
	d.handles = nil
}

// len returns the number of handles still draining.
func (d *drainList) len() int {
	return len(d.handles)
}
