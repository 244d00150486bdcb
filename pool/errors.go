package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLimit is returned by New when the concurrency limit is below one.
	ErrInvalidLimit = errors.New("pool: concurrency limit must be at least 1")

	// ErrNilTask is returned by New when the task function is nil.
	ErrNilTask = errors.New("pool: nil task function")

	// ErrPoolClosed is returned by Run once All has been called.
	ErrPoolClosed = errors.New("pool: run called after all")

	// ErrHooksRegistered is returned by ResultHooks when a sink is already set.
	ErrHooksRegistered = errors.New("pool: result hooks already registered")

	// ErrHooksAfterRun is returned by ResultHooks when items were already submitted.
	ErrHooksAfterRun = errors.New("pool: result hooks must be registered before the first run")

	// ErrInvalidBatchSize is returned by ResultHooks when the batch size is below one.
	ErrInvalidBatchSize = errors.New("pool: batch size must be at least 1")

	// ErrNilSink is returned by ResultHooks when the sink is nil.
	ErrNilSink = errors.New("pool: nil sink")
)

// FlushError reports a sink failure. Once a flush fails the pool stops writing,
// abandons queued items and All returns this error alongside the ledger.
type FlushError struct {
	// Batch is the 1-based index of the batch that failed.
	Batch int
	// Size is the number of results in the failed batch.
	Size int
	Err  error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("pool: flush of batch %d (%d results) failed: %v", e.Batch, e.Size, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}
