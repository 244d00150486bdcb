// Package pool provides a bounded-concurrency work pool for bulk jobs against
// rate-sensitive APIs.
//
// The primary type is AsyncPool[T, R]. It runs a task function over items
// submitted one by one with Run, never letting more than a fixed number of
// invocations run at once. Successful results are collected in completion order
// and flushed in batches to a sink; failed items land in a ledger instead of
// aborting the run; All waits for the whole job to drain.
//
// # Basic Usage
//
//	p, err := pool.New(func(ctx context.Context, id int) (string, error) {
//	    return fetch(ctx, id)
//	}, 4)
//	if err != nil {
//	    return err // limit < 1
//	}
//	for _, id := range ids {
//	    _ = p.Run(id)
//	}
//	ledger, err := p.All(ctx)
//	fmt.Println(ledger.Summary()) // "2 of 100 items failed"
//
// # Batched Results
//
// Register a sink before the first Run. Results are handed over once batchSize
// of them have accumulated, plus one final partial batch when the pool drains:
//
//	_ = p.ResultHooks(func(ctx context.Context, batch []string) error {
//	    return store.Write(ctx, batch)
//	}, 500)
//
// Sink calls never overlap and arrive in the order batches were cut. A sink
// error is fatal for the job: no further batches are written, queued items are
// dropped, Run starts failing, and All returns a *FlushError next to the ledger.
//
// # Lifecycle
//
// A pool serves a single job. All seals it: later Run calls fail with
// ErrPoolClosed. The pool settles once it is sealed, nothing is queued or
// running, and the last flush has returned. All on a pool that never ran an
// item settles at once without touching the sink.
//
// # Configuration Options
//
//   - WithContext(ctx): Context passed to tasks and the sink
//   - WithName(name): Label for logs and Prometheus metrics
//   - WithLogger(logger): zerolog logger (default: global logger)
//   - WithProgress(p): Progress counter, incremented once per completed item
//   - WithRateLimit(perSecond, burst): Throttle task starts
//   - WithBeforeTaskStart(fn), WithOnTaskEnd(fn): Per-task hooks
//
// # Retries
//
// The pool does not retry. Wrap the task function with Retrying to get
// attempts with exponential, jittered or decorrelated backoff.
package pool
