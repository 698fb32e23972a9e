package pagination

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultPageSize is the page size requested when Options.Limit is unset.
const DefaultPageSize = 50

// Prometheus metrics for pagination drivers.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_pages_fetched_total",
		Help: "Total pages fetched by pagination driver",
	}, []string{"driver"})

	paginationItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_pagination_items_total",
		Help: "Total items produced by pagination driver",
	}, []string{"driver"})
)

// Page is one bounded response from a paginated listing call.
type Page[T any] struct {
	Items []T

	// NextOffset is the offset of the following page, nil when exhausted.
	NextOffset *int

	// Total is the server-reported collection size, 0 when unknown.
	Total int
}

// Exhausted reports whether the page ends the listing.
func (p Page[T]) Exhausted() bool {
	return p.NextOffset == nil || len(p.Items) == 0
}

// OffsetPage builds a page for servers that signal exhaustion by returning
// fewer items than requested.
func OffsetPage[T any](items []T, offset, limit int) Page[T] {
	p := Page[T]{Items: items}
	if limit > 0 && len(items) >= limit {
		next := offset + len(items)
		p.NextOffset = &next
	}
	return p
}

// FetchFunc fetches the page starting at offset with at most limit items.
type FetchFunc[T any] func(ctx context.Context, offset, limit int) (Page[T], error)

// Options bounds a pagination run. Zero values mean "no limit" except
// Limit, which defaults to DefaultPageSize.
type Options struct {
	Offset   int
	Limit    int
	MaxPages int
	MaxItems int
}

func (o Options) pageSize() int {
	if o.Limit <= 0 {
		return DefaultPageSize
	}
	return o.Limit
}

// cursor tracks progress through a listing and applies the stop conditions.
type cursor struct {
	opts   Options
	limit  int
	offset int
	pages  int
	items  int
}

func newCursor(opts Options) *cursor {
	return &cursor{
		opts:   opts,
		limit:  opts.pageSize(),
		offset: max(opts.Offset, 0),
	}
}

// advance accounts for a fetched page and returns the items to emit and
// whether the listing stops after them. MaxItems truncation takes
// precedence over MaxPages and exhaustion.
func advance[T any](c *cursor, page Page[T]) ([]T, bool) {
	c.pages++
	items := page.Items

	if c.opts.MaxItems > 0 && c.items+len(items) >= c.opts.MaxItems {
		items = items[:c.opts.MaxItems-c.items]
		c.items += len(items)
		return items, true
	}
	c.items += len(items)

	if c.opts.MaxPages > 0 && c.pages >= c.opts.MaxPages {
		return items, true
	}
	if page.Exhausted() {
		return items, true
	}

	c.offset = *page.NextOffset
	return items, false
}
