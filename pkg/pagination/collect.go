package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Collect fetches pages until a limit is reached or the server signals
// exhaustion and returns all items in server order. With no limits set it
// stops only when the server reports exhaustion.
//
// A fetch failure aborts the whole operation; no partial result is returned.
func Collect[T any](ctx context.Context, fetch FetchFunc[T], opts Options) ([]T, error) {
	c := newCursor(opts)
	return collectFrom(ctx, fetch, c, nil, "eager")
}

func collectFrom[T any](ctx context.Context, fetch FetchFunc[T], c *cursor, acc []T, driver string) ([]T, error) {
	logger := log.With().Str("component", "pagination").Str("driver", driver).Logger()
	start := time.Now()

	for {
		page, err := fetch(ctx, c.offset, c.limit)
		if err != nil {
			logger.Warn().
				Err(err).
				Int("offset", c.offset).
				Int("pages", c.pages).
				Msg("Page fetch failed")
			return nil, fmt.Errorf("fetch page at offset %d: %w", c.offset, err)
		}
		pagesFetchedTotal.WithLabelValues(driver).Inc()

		items, stop := advance(c, page)
		acc = append(acc, items...)
		paginationItemsTotal.WithLabelValues(driver).Add(float64(len(items)))

		logger.Debug().
			Int("offset", c.offset).
			Int("page_items", len(page.Items)).
			Int("items", len(acc)).
			Msg("Page fetched")

		if stop {
			break
		}
	}

	logger.Debug().
		Int("pages", c.pages).
		Int("items", len(acc)).
		Dur("duration", time.Since(start)).
		Msg("Pagination complete")

	if acc == nil {
		acc = []T{}
	}
	return acc, nil
}
