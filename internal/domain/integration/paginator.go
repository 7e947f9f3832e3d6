package integration

import (
	"context"
	"iter"
)

// PageFetcher loads the page that starts at cursor.
type PageFetcher[T any] func(ctx context.Context, cursor string) (*Page[T], error)

// Paginator walks a cursor-paginated listing lazily, one page per Next call.
// The cursor of the next page is always available, so a walk that failed
// part-way can be resumed with NewPaginator(fetch, p.Cursor()).
type Paginator[T any] struct {
	fetch  PageFetcher[T]
	cursor string
	done   bool
}

// NewPaginator creates a paginator starting at cursor ("" = first page).
func NewPaginator[T any](fetch PageFetcher[T], cursor string) *Paginator[T] {
	return &Paginator[T]{fetch: fetch, cursor: cursor}
}

// Next fetches the next page. It returns (nil, nil) once the listing is exhausted.
// On error the cursor is left untouched so the same page can be retried.
func (p *Paginator[T]) Next(ctx context.Context) ([]T, error) {
	if p.done {
		return nil, nil
	}
	page, err := p.fetch(ctx, p.cursor)
	if err != nil {
		return nil, err
	}
	if page == nil {
		p.done = true
		return nil, nil
	}
	// A page claiming more data without a cursor would loop forever.
	if !page.HasNext || page.NextCursor == "" || page.NextCursor == p.cursor {
		p.done = true
	} else {
		p.cursor = page.NextCursor
	}
	return page.Items, nil
}

// Cursor returns the cursor of the page Next will fetch.
func (p *Paginator[T]) Cursor() string {
	return p.cursor
}

// Done reports whether the listing has been exhausted.
func (p *Paginator[T]) Done() bool {
	return p.done
}

// All yields items one by one, fetching pages on demand. Iteration stops at
// the first error, which is yielded with the zero value.
func (p *Paginator[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for !p.done {
			items, err := p.Next(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Drain collects the remaining items into a slice.
func (p *Paginator[T]) Drain(ctx context.Context) ([]T, error) {
	var all []T
	for item, err := range p.All(ctx) {
		if err != nil {
			return nil, err
		}
		all = append(all, item)
	}
	return all, nil
}
