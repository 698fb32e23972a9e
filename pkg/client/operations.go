package client

import (
	"context"
	"iter"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/resilient-api-client/pkg/batch"
	"github.com/Sternrassler/resilient-api-client/pkg/pagination"
)

// Get fetches and decodes a single object.
func Get[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	res, err := c.Do(ctx, Params{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeOne[T](res.Body)
}

// Create posts body to a collection and decodes the created object.
func Create[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	return send[T](ctx, c, http.MethodPost, path, body)
}

// Update patches an object and decodes the result.
func Update[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	return send[T](ctx, c, http.MethodPatch, path, body)
}

// Delete removes an object.
func Delete(ctx context.Context, c *Client, path string) error {
	_, err := c.Do(ctx, Params{Method: http.MethodDelete, Path: path})
	return err
}

func send[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	res, err := c.Do(ctx, Params{Method: method, Path: path, Body: body})
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeOne[T](res.Body)
}

// PageFetcher returns a retrying page fetch function for the collection at
// path, passing offset and limit as query parameters.
func PageFetcher[T any](c *Client, path string, query url.Values) pagination.FetchFunc[T] {
	return func(ctx context.Context, offset, limit int) (pagination.Page[T], error) {
		q := url.Values{}
		for k, vs := range query {
			q[k] = append([]string(nil), vs...)
		}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(limit))

		res, err := c.Do(ctx, Params{Method: http.MethodGet, Path: path, Query: q})
		if err != nil {
			return pagination.Page[T]{}, err
		}
		return DecodeList[T](res.Body)
	}
}

// ListAll collects the collection at path eagerly.
func ListAll[T any](ctx context.Context, c *Client, path string, query url.Values, opts pagination.Options) ([]T, error) {
	return pagination.Collect(ctx, PageFetcher[T](c, path, query), c.listOptions(opts))
}

// StreamAll yields the collection at path lazily, one page request at a time.
func StreamAll[T any](ctx context.Context, c *Client, path string, query url.Values, opts pagination.Options) iter.Seq2[T, error] {
	return pagination.Stream(ctx, PageFetcher[T](c, path, query), c.listOptions(opts))
}

// ListAllParallel collects the collection at path, fetching pages
// concurrently once the server reports the total.
func ListAllParallel[T any](ctx context.Context, c *Client, path string, query url.Values, opts pagination.Options) ([]T, error) {
	// Config.Timeout already bounds each attempt inside the retried fetch;
	// a page-level timeout here would cut off the retries.
	cfg := pagination.ParallelConfig{
		MaxConcurrency: c.config.BatchConcurrency,
	}
	return pagination.CollectParallel(ctx, PageFetcher[T](c, path, query), c.listOptions(opts), cfg)
}

func (c *Client) listOptions(opts pagination.Options) pagination.Options {
	if opts.Limit <= 0 {
		opts.Limit = c.config.PageSize
	}
	return opts
}

// GetRequest is one element of GetMany.
type GetRequest struct {
	// Label identifies the request in outcomes; defaults to Path.
	Label string
	Path  string
	Query url.Values
}

// GetMany fetches several objects concurrently, bounded by
// Config.BatchConcurrency. Outcomes are in request order. With stopOnError
// the first failure cancels the rest and is returned alone.
func GetMany[T any](ctx context.Context, c *Client, requests []GetRequest, stopOnError bool) ([]batch.Outcome[T], error) {
	items := make([]batch.Item[T], len(requests))
	for i, r := range requests {
		label := r.Label
		if label == "" {
			label = r.Path
		}
		items[i] = batch.Item[T]{
			Label: label,
			Run: func(ctx context.Context) (T, error) {
				return Get[T](ctx, c, r.Path, r.Query)
			},
		}
	}

	return batch.Run(ctx, items, batch.Options{
		Concurrency: c.config.BatchConcurrency,
		StopOnError: stopOnError,
		Name:        "get-many",
	})
}
