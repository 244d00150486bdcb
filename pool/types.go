package pool

import "context"

// TaskFunc defines how a single item submitted to the pool is processed.
// It receives the pool context and the item, and returns a result or an error.
// An error marks the item as failed; it is recorded in the ledger and never
// stops the pool.
//
// Type parameters:
//   - T: The type of item submitted with Run
//   - R: The type of result produced for a successful item
type TaskFunc[T any, R any] func(ctx context.Context, item T) (R, error)

// SinkFunc receives flushed batches of successful results, in completion order.
// A returned error fails the whole run: no further batches are written and All
// reports the error.
type SinkFunc[R any] func(ctx context.Context, batch []R) error

// Progress is notified once per completed item, whatever its outcome.
// SetTotal is called by producers once the number of items is known.
type Progress interface {
	SetTotal(total int)
	Increment()
}

// outcome is the tagged result of running the task function on one item.
type outcome[T any, R any] struct {
	item  T
	seq   int
	value R
	err   error
}

func (o outcome[T, R]) failed() bool {
	return o.err != nil
}

// submittedItem pairs an item with its submission sequence number.
type submittedItem[T any] struct {
	item T
	seq  int
}
