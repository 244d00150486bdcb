package pool

// action is what a caller must do after releasing the pool mutex.
type action int

const (
	actNone action = iota
	actFlush
	actSettle
)

// work runs items on one worker slot until the queue has nothing left for it.
func (p *AsyncPool[T, R]) work(it submittedItem[T]) {
	for {
		out := p.execute(it)

		next, ok := p.complete(out)
		if !ok {
			return
		}
		it = next
	}
}

// complete routes an outcome, notifies progress, and then either hands the
// slot to the next queued item or releases it.
func (p *AsyncPool[T, R]) complete(out outcome[T, R]) (submittedItem[T], bool) {
	p.mu.Lock()
	if out.failed() {
		p.ledger.record(out.item, out.seq, out.err)
	} else {
		p.ledger.succeeded++
		p.agg.add(out.value)
	}
	p.mu.Unlock()

	if p.progress != nil {
		p.progress.Increment()
	}

	p.mu.Lock()
	p.active--
	next, ok := p.queue.pop()
	if ok {
		p.active++
	}
	act := p.advanceLocked()
	p.mu.Unlock()

	if ok {
		p.metrics.pending.Dec()
	} else {
		p.metrics.active.Dec()
	}

	p.act(act)
	return next, ok
}

// advanceLocked decides whether a flush must start or the pool can settle.
// Settlement needs a sealed pool with nothing queued, running or flushing.
func (p *AsyncPool[T, R]) advanceLocked() action {
	if p.settled || p.flushing {
		return actNone
	}
	if p.agg.hasPending() {
		p.flushing = true
		return actFlush
	}
	if !p.sealed || p.active > 0 || p.queue.Len() > 0 {
		return actNone
	}
	if p.agg.buffered() > 0 {
		p.agg.cut()
		p.flushing = true
		return actFlush
	}

	p.settled = true
	return actSettle
}

func (p *AsyncPool[T, R]) act(a action) {
	switch a {
	case actFlush:
		go p.flushLoop()
	case actSettle:
		p.settle()
	}
}

// flushLoop is the only goroutine calling the sink, so batches are written one
// at a time and in the order they were cut.
func (p *AsyncPool[T, R]) flushLoop() {
	for {
		p.mu.Lock()
		batch, n, ok := p.agg.next()
		sink := p.agg.sink
		if !ok {
			p.flushing = false
			act := p.advanceLocked()
			p.mu.Unlock()

			if act == actFlush {
				continue
			}
			p.act(act)
			return
		}
		p.mu.Unlock()

		err := p.flush(sink, batch, n)

		abandoned := 0
		p.mu.Lock()
		if err != nil {
			p.flushErr = &FlushError{Batch: n, Size: len(batch), Err: err}
			p.agg.discard()
			abandoned = p.queue.drain()
			p.ledger.abandoned += abandoned
		} else {
			p.ledger.flushed += len(batch)
			p.ledger.batches++
		}
		p.mu.Unlock()

		if abandoned > 0 {
			p.metrics.pending.Sub(float64(abandoned))
			p.logger.Warn().
				Int("abandoned", abandoned).
				Msg("Dropping queued items after flush failure")
		}
	}
}

func (p *AsyncPool[T, R]) settle() {
	p.mu.Lock()
	ledger := p.ledger.snapshot()
	var err error
	if p.flushErr != nil {
		err = p.flushErr
	}
	p.mu.Unlock()

	evt := p.logger.Info()
	if err != nil {
		evt = p.logger.Error().Err(err)
	}
	evt.Int("submitted", ledger.Submitted).
		Int("succeeded", ledger.Succeeded).
		Int("failed", ledger.Failed()).
		Int("flushed", ledger.Flushed).
		Int("batches", ledger.Batches).
		Msg("Pool settled")

	p.done.resolve(ledger, err)
}
