package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/resilient-api-client/pkg/batch"
	"github.com/Sternrassler/resilient-api-client/pkg/cancel"
	"github.com/rs/zerolog/log"
)

// ParallelConfig holds parallel fetch configuration.
type ParallelConfig struct {
	// MaxConcurrency is the maximum number of pages fetched at once.
	MaxConcurrency int

	// Timeout bounds each page fetch. Zero means no per-page timeout.
	Timeout time.Duration
}

// DefaultParallelConfig returns a conservative parallel fetch configuration.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// CollectParallel behaves like Collect but, when the first page reports the
// collection Total, fetches the remaining pages concurrently through a
// fail-fast batch. Pages are assumed to follow each other at offset+limit.
// Without a Total it continues sequentially.
//
// Results are concatenated in offset order and obey the same limits and
// truncation rules as Collect. Any page failure aborts the whole operation.
func CollectParallel[T any](ctx context.Context, fetch FetchFunc[T], opts Options, cfg ParallelConfig) ([]T, error) {
	start := time.Now()
	logger := log.With().Str("component", "pagination").Str("driver", "parallel").Logger()
	c := newCursor(opts)

	// Fetch first page to learn the total
	first, err := fetchWithTimeout(ctx, fetch, c.offset, c.limit, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	pagesFetchedTotal.WithLabelValues("parallel").Inc()

	items, stop := advance(c, first)
	acc := append(make([]T, 0, len(items)), items...)
	paginationItemsTotal.WithLabelValues("parallel").Add(float64(len(items)))
	if stop {
		return acc, nil
	}

	if first.Total <= 0 {
		logger.Debug().Msg("Total unknown - continuing sequentially")
		return collectFrom(ctx, fetch, c, acc, "parallel")
	}

	offsets := planOffsets(c, first.Total)
	logger.Info().
		Int("total", first.Total).
		Int("pages", len(offsets)+1).
		Int("concurrency", cfg.MaxConcurrency).
		Msg("Starting parallel page fetch")

	jobs := make([]batch.Item[Page[T]], len(offsets))
	for i, offset := range offsets {
		offset := offset
		jobs[i] = batch.Item[Page[T]]{
			Label: fmt.Sprintf("offset=%d", offset),
			Run: func(ctx context.Context) (Page[T], error) {
				return fetchWithTimeout(ctx, fetch, offset, c.limit, cfg.Timeout)
			},
		}
	}

	outcomes, err := batch.Run(ctx, jobs, batch.Options{
		Concurrency: cfg.MaxConcurrency,
		StopOnError: true,
		Name:        "pagination",
	})
	if err != nil {
		return nil, fmt.Errorf("parallel page fetch: %w", err)
	}

	for _, o := range outcomes {
		pagesFetchedTotal.WithLabelValues("parallel").Inc()
		items, stop := advance(c, o.Value)
		acc = append(acc, items...)
		paginationItemsTotal.WithLabelValues("parallel").Add(float64(len(items)))
		if stop {
			break
		}
	}

	logger.Info().
		Int("pages", c.pages).
		Int("items", len(acc)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return acc, nil
}

// planOffsets lists the offsets still to fetch after the cursor's current
// position, bounded by total and the cursor's page and item limits.
func planOffsets(c *cursor, total int) []int {
	var offsets []int
	pages := c.pages
	items := c.items
	for offset := c.offset; offset < total; offset += c.limit {
		if c.opts.MaxPages > 0 && pages >= c.opts.MaxPages {
			break
		}
		if c.opts.MaxItems > 0 && items >= c.opts.MaxItems {
			break
		}
		offsets = append(offsets, offset)
		pages++
		items += c.limit
	}
	return offsets
}

func fetchWithTimeout[T any](ctx context.Context, fetch FetchFunc[T], offset, limit int, timeout time.Duration) (Page[T], error) {
	if timeout <= 0 {
		return fetch(ctx, offset, limit)
	}
	pageCtx, release := cancel.WithTimeout(ctx, timeout)
	defer release()
	return fetch(pageCtx, offset, limit)
}
