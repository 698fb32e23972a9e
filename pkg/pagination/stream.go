package pagination

import (
	"context"
	"fmt"
	"iter"
)

// Stream returns a lazily pulled sequence of items. Pages are fetched on
// demand: every item of a page is yielded before the next page is requested.
//
// The context is checked before each page request and before each yield;
// once it is cancelled the sequence ends without an error. A failing fetch,
// including one that fails because of the cancellation, is yielded once as
// the final element, wrapped with the page offset like Collect does.
//
// The sequence is single-pass. Ranging over it again re-executes every
// page fetch from opts.Offset.
func Stream[T any](ctx context.Context, fetch FetchFunc[T], opts Options) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		c := newCursor(opts)
		for {
			if ctx.Err() != nil {
				return
			}

			page, err := fetch(ctx, c.offset, c.limit)
			if err != nil {
				var zero T
				yield(zero, fmt.Errorf("fetch page at offset %d: %w", c.offset, err))
				return
			}
			pagesFetchedTotal.WithLabelValues("lazy").Inc()

			items, stop := advance(c, page)
			for _, item := range items {
				if ctx.Err() != nil {
					return
				}
				paginationItemsTotal.WithLabelValues("lazy").Inc()
				if !yield(item, nil) {
					return
				}
			}

			if stop {
				return
			}
		}
	}
}
