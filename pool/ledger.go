package pool

import (
	"errors"
	"fmt"
)

// Failure records one item whose task returned an error (or panicked).
type Failure[T any] struct {
	Item T
	Err  error
	// Seq is the 0-based position of the item in submission order.
	Seq int
}

func (f Failure[T]) Error() string {
	return fmt.Sprintf("item %d: %v", f.Seq, f.Err)
}

func (f Failure[T]) Unwrap() error {
	return f.Err
}

// Ledger is the snapshot handed back by All once the pool has settled.
// A non-empty Failures slice means the run partially succeeded.
type Ledger[T any] struct {
	// Failures in completion order.
	Failures []Failure[T]

	Submitted int
	Succeeded int

	// Flushed counts results delivered to the sink across Batches sink calls.
	Flushed int
	Batches int

	// Abandoned counts queued items that never started because a flush failed.
	Abandoned int
}

// Failed returns the number of failed items.
func (l *Ledger[T]) Failed() int {
	return len(l.Failures)
}

// OK reports whether every submitted item succeeded.
func (l *Ledger[T]) OK() bool {
	return len(l.Failures) == 0 && l.Abandoned == 0
}

// Items returns the failed items in completion order.
func (l *Ledger[T]) Items() []T {
	items := make([]T, len(l.Failures))
	for i, f := range l.Failures {
		items[i] = f.Item
	}
	return items
}

// Err joins every failure into one error, or returns nil when nothing failed.
func (l *Ledger[T]) Err() error {
	if len(l.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(l.Failures))
	for i, f := range l.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Summary renders a one-line description such as "3 of 1000 items failed".
func (l *Ledger[T]) Summary() string {
	switch {
	case l.Submitted == 0:
		return "no items submitted"
	case len(l.Failures) == 0 && l.Abandoned == 0:
		return fmt.Sprintf("all %d items succeeded", l.Submitted)
	case l.Abandoned > 0:
		return fmt.Sprintf("%d of %d items failed, %d abandoned", len(l.Failures), l.Submitted, l.Abandoned)
	default:
		return fmt.Sprintf("%d of %d items failed", len(l.Failures), l.Submitted)
	}
}

// errorLedger accumulates failures and counters while the pool runs.
// It is guarded by the pool mutex.
type errorLedger[T any] struct {
	failures  []Failure[T]
	submitted int
	succeeded int
	flushed   int
	batches   int
	abandoned int
}

func (l *errorLedger[T]) record(item T, seq int, err error) {
	l.failures = append(l.failures, Failure[T]{Item: item, Err: err, Seq: seq})
}

func (l *errorLedger[T]) snapshot() *Ledger[T] {
	failures := make([]Failure[T], len(l.failures))
	copy(failures, l.failures)
	return &Ledger[T]{
		Failures:  failures,
		Submitted: l.submitted,
		Succeeded: l.succeeded,
		Flushed:   l.flushed,
		Batches:   l.batches,
		Abandoned: l.abandoned,
	}
}
