package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AsyncPool runs a task function over submitted items with at most limit
// invocations in flight. Successful results are batched into an optional sink,
// failures are kept in a ledger, and All waits for everything to drain.
//
// A pool serves one job: submit with Run, then call All once submission is over.
//
// Workers never wait for the sink. Batches cut while a flush is running queue up
// in memory, so a slow sink costs up to batchSize results per queued batch;
// Stats reports the backlog as QueuedBatches.
//
// Type parameters:
//   - T: The item type submitted with Run
//   - R: The result type produced by the task function
type AsyncPool[T any, R any] struct {
	fn      TaskFunc[T, R]
	limit   int
	ctx     context.Context
	name    string
	logger  zerolog.Logger
	metrics *poolMetrics

	progress        Progress
	rateLimiter     *rate.Limiter
	beforeTaskStart func(T)
	onTaskEnd       func(T, R, error)

	mu       sync.Mutex
	active   int
	queue    fifo[submittedItem[T]]
	agg      aggregator[R]
	ledger   errorLedger[T]
	hooked   bool
	sealed   bool
	settled  bool
	flushing bool
	flushErr *FlushError

	done *Future[*Ledger[T]]
}

// New creates a pool that runs fn with at most limit concurrent invocations.
// It fails with ErrInvalidLimit when limit is below one.
//
// Example:
//
//	p, err := pool.New(func(ctx context.Context, r Record) (Record, error) {
//	    return transform(r), nil
//	}, 10, pool.WithName("transform"))
//	if err != nil {
//	    return err
//	}
//	_ = p.ResultHooks(table.SetRecords, 500)
//	for _, r := range records {
//	    _ = p.Run(r)
//	}
//	ledger, err := p.All(ctx)
func New[T any, R any](fn TaskFunc[T, R], limit int, opts ...Option) (*AsyncPool[T, R], error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidLimit, limit)
	}
	if fn == nil {
		return nil, ErrNilTask
	}

	cfg := createConfig(opts...)
	before, after := checkHooks[T, R](cfg)

	return &AsyncPool[T, R]{
		fn:    fn,
		limit: limit,
		ctx:   cfg.ctx,
		name:  cfg.name,
		logger: cfg.logger.With().
			Str("component", "pool").
			Str("pool", cfg.name).
			Logger(),
		metrics:         newPoolMetrics(cfg.name),
		progress:        cfg.progress,
		rateLimiter:     cfg.rateLimiter,
		beforeTaskStart: before,
		onTaskEnd:       after,
		done:            newFuture[*Ledger[T]](),
	}, nil
}

// Limit returns the concurrency limit fixed at construction.
func (p *AsyncPool[T, R]) Limit() int {
	return p.limit
}

// ResultHooks registers the sink that receives successful results in batches
// of batchSize. It may be called once, before the first Run; without it
// successful results are dropped.
func (p *AsyncPool[T, R]) ResultHooks(sink SinkFunc[R], batchSize int) error {
	if sink == nil {
		return ErrNilSink
	}
	if batchSize < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidBatchSize, batchSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hooked {
		return ErrHooksRegistered
	}
	if p.ledger.submitted > 0 || p.sealed {
		return ErrHooksAfterRun
	}

	p.hooked = true
	p.agg.sink = sink
	p.agg.batchSize = batchSize
	return nil
}

// Run submits an item. It never waits for the task: the item starts at once
// when a slot is free, otherwise it queues in FIFO order.
//
// Run fails with ErrPoolClosed after All, and with the pool's *FlushError once
// a sink call has failed. Task failures are never reported here.
func (p *AsyncPool[T, R]) Run(item T) error {
	p.mu.Lock()
	if p.sealed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.flushErr != nil {
		err := p.flushErr
		p.mu.Unlock()
		return err
	}

	it := submittedItem[T]{item: item, seq: p.ledger.submitted}
	p.ledger.submitted++

	if p.active < p.limit {
		p.active++
		p.mu.Unlock()

		p.metrics.active.Inc()
		go p.work(it)
		return nil
	}

	p.queue.push(it)
	p.mu.Unlock()

	p.metrics.pending.Inc()
	return nil
}

// All seals the pool and waits until every submitted item has completed and
// the final batch has been flushed. It returns the ledger of failures; the
// error is non-nil when a flush failed (*FlushError) or ctx ended first.
// A cancelled ctx only abandons the wait; the pool keeps draining.
//
// Calling All again returns the same outcome.
func (p *AsyncPool[T, R]) All(ctx context.Context) (*Ledger[T], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.AllAsync().GetWithContext(ctx)
}

// AllAsync seals the pool like All and returns the completion future without waiting.
func (p *AsyncPool[T, R]) AllAsync() *Future[*Ledger[T]] {
	p.mu.Lock()
	p.sealed = true
	act := p.advanceLocked()
	p.mu.Unlock()

	p.act(act)
	return p.done
}

// Done returns a channel closed once the pool has settled.
func (p *AsyncPool[T, R]) Done() <-chan struct{} {
	return p.done.Done()
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Limit    int
	Active   int
	Pending  int
	Buffered int
	// QueuedBatches counts cut batches waiting for the sink.
	QueuedBatches int
	Submitted     int
	Succeeded     int
	Failed        int
	Flushed       int
	Batches       int
	Sealed        bool
	Settled       bool
}

// Stats returns a snapshot of the pool counters.
func (p *AsyncPool[T, R]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Limit:         p.limit,
		Active:        p.active,
		Pending:       p.queue.Len(),
		Buffered:      p.agg.buffered(),
		QueuedBatches: p.agg.queued(),
		Submitted:     p.ledger.submitted,
		Succeeded:     p.ledger.succeeded,
		Failed:        len(p.ledger.failures),
		Flushed:       p.ledger.flushed,
		Batches:       p.ledger.batches,
		Sealed:        p.sealed,
		Settled:       p.settled,
	}
}
