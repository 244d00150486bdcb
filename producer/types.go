package producer

import "context"

// PageRequest asks a source for one page. An empty PageToken means the first page.
type PageRequest struct {
	PageSize  int
	PageToken string
}

// Page is one page of items plus the continuation state.
type Page[T any] struct {
	Items []T
	// Total is the source-reported number of items, or 0 when unknown.
	Total     int
	HasMore   bool
	NextToken string
}

// PageSource returns pages of items by continuation token.
type PageSource[T any] interface {
	FetchPage(ctx context.Context, req PageRequest) (Page[T], error)
}

// PageSourceFunc adapts a function to PageSource.
type PageSourceFunc[T any] func(ctx context.Context, req PageRequest) (Page[T], error)

func (f PageSourceFunc[T]) FetchPage(ctx context.Context, req PageRequest) (Page[T], error) {
	return f(ctx, req)
}

// Resolver loads a single item by id.
type Resolver[T any] interface {
	Resolve(ctx context.Context, id string) (T, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc[T any] func(ctx context.Context, id string) (T, error)

func (f ResolverFunc[T]) Resolve(ctx context.Context, id string) (T, error) {
	return f(ctx, id)
}

// Submitter accepts items for processing. *pool.AsyncPool satisfies it.
type Submitter[T any] interface {
	Run(item T) error
}

// Totaler receives the total number of items once it is known.
// Every pool.Progress is a Totaler.
type Totaler interface {
	SetTotal(total int)
}
