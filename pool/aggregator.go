package pool

// aggregator buffers successful results in completion order and cuts them into
// batches for the sink. Batches wait in pending until the flusher picks them up.
// The pool mutex guards every field.
type aggregator[R any] struct {
	sink      SinkFunc[R]
	batchSize int

	buf     []R
	pending [][]R
	// issued counts batches handed to the flusher, used to number them.
	issued int
}

// add appends a result and cuts a batch once the threshold is reached.
// Without a sink the result is dropped.
func (a *aggregator[R]) add(v R) {
	if a.sink == nil {
		return
	}
	a.buf = append(a.buf, v)
	if len(a.buf) >= a.batchSize {
		a.cut()
	}
}

// cut moves the current buffer, if any, to the pending batches.
func (a *aggregator[R]) cut() {
	if len(a.buf) == 0 {
		return
	}
	a.pending = append(a.pending, a.buf)
	a.buf = make([]R, 0, a.batchSize)
}

// next pops the oldest pending batch together with its 1-based number.
func (a *aggregator[R]) next() ([]R, int, bool) {
	if len(a.pending) == 0 {
		return nil, 0, false
	}
	batch := a.pending[0]
	a.pending[0] = nil
	a.pending = a.pending[1:]
	a.issued++
	return batch, a.issued, true
}

func (a *aggregator[R]) hasPending() bool {
	return len(a.pending) > 0
}

func (a *aggregator[R]) buffered() int {
	return len(a.buf)
}

func (a *aggregator[R]) queued() int {
	return len(a.pending)
}

// discard drops buffered and pending results after a failed flush.
func (a *aggregator[R]) discard() {
	a.buf = nil
	a.pending = nil
	a.sink = nil
}
