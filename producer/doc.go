// Package producer feeds work items into a pool.
//
// Bulk walks a paginated source by continuation token and submits each page's
// items as soon as the page arrives, so processing overlaps with fetching.
// Selection resolves an explicit list of ids one at a time, in order, and
// submits each resolved item.
//
// Both report the total to a progress counter: Bulk once enumeration is over,
// Selection up front since the total is known.
//
//	n, err := producer.Bulk[records.Record](ctx, table, p, producer.WithPageSize(5000), producer.WithProgress(bar))
//	if err != nil {
//	    return err
//	}
//	ledger, err := p.All(ctx)
package producer
