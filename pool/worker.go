package pool

import (
	"fmt"
	"runtime"
	"time"
)

// execute runs the task function for one item and never panics.
// Rate limiting, hooks and metrics all happen here, outside the pool mutex.
func (p *AsyncPool[T, R]) execute(it submittedItem[T]) outcome[T, R] {
	out := outcome[T, R]{item: it.item, seq: it.seq}

	if p.rateLimiter != nil {
		if err := p.rateLimiter.Wait(p.ctx); err != nil {
			out.err = fmt.Errorf("rate limiter: %w", err)
			p.recordOutcome(out)
			return out
		}
	}

	start := time.Now()
	out.value, out.err = p.processWithRecovery(it.item)
	p.metrics.taskDuration.Observe(time.Since(start).Seconds())

	if p.onTaskEnd != nil {
		p.callOnTaskEnd(out)
	}

	p.recordOutcome(out)
	return out
}

// processWithRecovery runs the before-start hook and the task function,
// converting a panic into an error carrying the stack trace.
func (p *AsyncPool[T, R]) processWithRecovery(item T) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("worker panic: %v\nstack trace:\n%s", r, buf[:n])
		}
	}()

	if p.beforeTaskStart != nil {
		p.beforeTaskStart(item)
	}
	return p.fn(p.ctx, item)
}

func (p *AsyncPool[T, R]) callOnTaskEnd(out outcome[T, R]) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("seq", out.seq).
				Interface("panic", r).
				Msg("OnTaskEnd hook panicked")
		}
	}()
	p.onTaskEnd(out.item, out.value, out.err)
}

func (p *AsyncPool[T, R]) recordOutcome(out outcome[T, R]) {
	if !out.failed() {
		p.metrics.succeeded.Inc()
		return
	}
	p.metrics.failed.Inc()
	p.logger.Debug().
		Err(out.err).
		Int("seq", out.seq).
		Msg("Task failed")
}

// flush hands one batch to the sink. A panicking sink counts as a failed flush.
func (p *AsyncPool[T, R]) flush(sink SinkFunc[R], batch []R, n int) (err error) {
	start := time.Now()
	p.logger.Debug().
		Int("batch", n).
		Int("size", len(batch)).
		Msg("Flushing batch")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}

		elapsed := time.Since(start)
		p.metrics.flushDuration.Observe(elapsed.Seconds())

		if err != nil {
			p.metrics.flushErr.Inc()
			p.logger.Warn().
				Err(err).
				Int("batch", n).
				Int("size", len(batch)).
				Msg("Flush failed")
			return
		}

		p.metrics.flushOK.Inc()
		p.metrics.flushedItems.Add(float64(len(batch)))
		p.logger.Debug().
			Int("batch", n).
			Int("size", len(batch)).
			Dur("duration", elapsed).
			Msg("Batch flushed")
	}()

	return sink(p.ctx, batch)
}
