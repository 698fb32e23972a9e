package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/resilient-api-client/pkg/apierror"
	"github.com/Sternrassler/resilient-api-client/pkg/cache"
	"github.com/Sternrassler/resilient-api-client/pkg/cancel"
	"github.com/Sternrassler/resilient-api-client/pkg/retry"
	"github.com/google/uuid"
)

// HeaderRequestID carries the id shared by every attempt of one logical request.
const HeaderRequestID = "X-Request-ID"

// Params describes one API call.
type Params struct {
	// Method defaults to GET.
	Method string

	// Path is relative to the base URL.
	Path string

	Query url.Values

	// Body is JSON-encoded when non-nil.
	Body any

	// Timeout overrides Config.Timeout for this call. Negative disables it.
	Timeout time.Duration

	// RequestID is generated when empty.
	RequestID string
}

func (p Params) method() string {
	if p.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(p.Method)
}

// RawResult is an undecoded response. Body and Header may be shared with
// concurrent callers of the same GET and must not be modified.
type RawResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// FromCache is set when the body came from the response cache, either as
	// a fresh hit or after a 304 revalidation.
	FromCache bool
}

// Do performs the call described by p, retrying transient failures with the
// client's retry configuration. All attempts share one request id.
func (c *Client) Do(ctx context.Context, p Params) (*RawResult, error) {
	if p.RequestID == "" {
		p.RequestID = uuid.NewString()
	}
	return retry.Do(ctx, c.config.Retry, func(ctx context.Context) (*RawResult, error) {
		return c.Request(ctx, p)
	},
		retry.WithName(p.Path),
		retry.WithClock(c.clock),
		retry.WithLogger(c.logger.With().Str("request_id", p.RequestID).Logger()),
	)
}

// Request performs exactly one logical round trip without retries. GETs are
// coalesced with identical concurrent GETs and, when Redis is configured,
// served from and stored into the response cache. Successful writes
// invalidate cached reads of the affected collection.
func (c *Client) Request(ctx context.Context, p Params) (*RawResult, error) {
	if p.RequestID == "" {
		p.RequestID = uuid.NewString()
	}

	method := p.method()
	if method != http.MethodGet || p.Body != nil {
		res, err := c.roundTrip(ctx, p, nil)
		if err == nil && method != http.MethodHead {
			c.invalidate(ctx, method, p.Path)
		}
		return res, err
	}

	key := c.cacheKey(p)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.get(ctx, p, key)
	})

	select {
	case <-ctx.Done():
		return nil, apierror.Cancelled(context.Cause(ctx))
	case shared := <-ch:
		if shared.Err != nil {
			// The leading caller gave up; its cancellation is not ours.
			if shared.Shared && ctx.Err() == nil &&
				apierror.ClassOf(shared.Err) == apierror.ClassCancelled &&
				!errors.Is(shared.Err, cancel.ErrTimeout) {
				return c.get(ctx, p, key)
			}
			return nil, shared.Err
		}
		res := *shared.Val.(*RawResult)
		return &res, nil
	}
}

func (c *Client) cacheKey(p Params) cache.Key {
	return cache.Key{
		Method: http.MethodGet,
		Path:   p.Path,
		Query:  p.Query,
		Scope:  c.scope,
	}
}

// get serves a GET through the response cache when one is configured.
func (c *Client) get(ctx context.Context, p Params, key cache.Key) (*RawResult, error) {
	if c.cache == nil {
		return c.roundTrip(ctx, p, nil)
	}

	endpoint := endpointLabel(p.Path)

	entry, err := c.cache.Get(ctx, key)
	switch {
	case err == nil && !entry.IsExpiredAt(c.cache.Now()):
		requestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
		c.logger.Debug().Str("endpoint", p.Path).Msg("Cache hit")
		return entryResult(entry), nil
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn().Err(err).Str("endpoint", p.Path).Msg("Cache get error")
		entry = nil
	case err != nil:
		entry = nil
	}

	res, err := c.roundTrip(ctx, p, entry)
	if err != nil {
		return nil, err
	}

	now := c.cache.Now()

	if res.StatusCode == http.StatusNotModified && entry != nil {
		cache.Revalidations.WithLabelValues("not_modified").Inc()
		cache.Refresh(entry, res.Header, c.config.CacheTTL, now)
		if err := c.cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", p.Path).Msg("Failed to refresh cache entry")
		}
		c.logger.Debug().Str("endpoint", p.Path).Msg("304 Not Modified - using cache")
		return entryResult(entry), nil
	}
	if entry != nil {
		cache.Revalidations.WithLabelValues("modified").Inc()
	}

	if cache.Cacheable(res.StatusCode, res.Header) {
		fresh := cache.NewEntry(res.StatusCode, res.Header, res.Body, c.config.CacheTTL, now)
		if err := c.cache.Set(ctx, key, fresh); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", p.Path).Msg("Failed to cache response")
		}
	}

	return res, nil
}

func entryResult(entry *cache.Entry) *RawResult {
	return &RawResult{
		StatusCode: entry.StatusCode,
		Header:     entry.Header,
		Body:       entry.Body,
		FromCache:  true,
	}
}

// invalidate drops cached reads made stale by a successful write: the
// collection itself for POST, the parent collection otherwise.
func (c *Client) invalidate(ctx context.Context, method, p string) {
	if c.cache == nil {
		return
	}
	prefix := strings.Trim(p, "/")
	if method != http.MethodPost {
		if dir := path.Dir(prefix); dir != "." {
			prefix = dir
		}
	}
	n, err := c.cache.Invalidate(ctx, prefix)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", p).Msg("Cache invalidation failed")
		return
	}
	c.logger.Debug().Str("endpoint", p).Int("keys", n).Msg("Invalidated cached reads")
}

// roundTrip sends one HTTP request. cached, when set, adds conditional
// headers; a 304 is then returned as a result, not an error.
func (c *Client) roundTrip(ctx context.Context, p Params, cached *cache.Entry) (*RawResult, error) {
	endpoint := endpointLabel(p.Path)
	startTime := c.clock.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(c.clock.Since(startTime).Seconds())
	}()

	timeout := c.config.Timeout
	if p.Timeout != 0 {
		timeout = max(p.Timeout, 0)
	}
	rctx, release := cancel.WithTimeout(ctx, timeout)
	defer release()

	if err := c.waitTurn(rctx, p.Path); err != nil {
		if apierror.ClassOf(err) == apierror.ClassRateLimit {
			requestsTotal.WithLabelValues(endpoint, "blocked").Inc()
		}
		errorsTotal.WithLabelValues(string(apierror.ClassOf(err))).Inc()
		return nil, err
	}

	req, err := c.newRequest(rctx, p)
	if err != nil {
		return nil, err
	}
	cache.AddConditionalHeaders(req, cached)

	c.logger.Debug().
		Str("endpoint", p.Path).
		Str("method", req.Method).
		Str("request_id", p.RequestID).
		Msg("Executing API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportFailure(rctx, endpoint, p.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportFailure(rctx, endpoint, p.Path, fmt.Errorf("read response body: %w", err))
	}

	if err := c.tracker.UpdateFromHeaders(ctx, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 || (resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotModified) {
		apiErr := apierror.FromStatus(resp.StatusCode, errorMessage(body, resp.StatusCode), resp.Header)
		errorsTotal.WithLabelValues(string(apiErr.Class)).Inc()
		c.logger.Warn().
			Str("endpoint", p.Path).
			Int("status", resp.StatusCode).
			Str("error_class", string(apiErr.Class)).
			Str("request_id", p.RequestID).
			Msg("API request error")
		return nil, apiErr
	}

	return &RawResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, p Params) (*http.Request, error) {
	ref, err := url.Parse(strings.TrimLeft(p.Path, "/"))
	if err != nil {
		return nil, apierror.Validation(fmt.Errorf("invalid path %q: %w", p.Path, err))
	}
	u := c.baseURL.ResolveReference(ref)
	if len(p.Query) > 0 {
		q := u.Query()
		for k, vs := range p.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if p.Body != nil {
		data, err := json.Marshal(p.Body)
		if err != nil {
			return nil, apierror.Validation(fmt.Errorf("encode request body: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, p.method(), u.String(), body)
	if err != nil {
		return nil, apierror.Validation(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, p.RequestID)
	if p.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// waitTurn applies the client-side rate limiter and the server quota.
func (c *Client) waitTurn(ctx context.Context, endpoint string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if cause := context.Cause(ctx); cause != nil {
				return apierror.Cancelled(cause)
			}
			return apierror.Cancelled(err)
		}
	}

	decision, err := c.tracker.Check(ctx)
	if err != nil {
		// Quota state unavailable: proceed and let the server decide.
		c.logger.Warn().Err(err).Msg("Rate limit check failed")
		return nil
	}

	if decision.Blocked {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Dur("wait_duration", decision.Wait).
			Msg("Request blocked by rate limiter")
		return &apierror.Error{
			StatusCode: http.StatusTooManyRequests,
			Class:      apierror.ClassRateLimit,
			Message:    "quota exhausted",
			RetryAfter: decision.Wait,
		}
	}

	if decision.Wait > 0 {
		timer := c.clock.NewTimer(decision.Wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return apierror.Cancelled(context.Cause(ctx))
		case <-timer.Chan():
		}
	}
	return nil
}

func (c *Client) transportFailure(ctx context.Context, endpoint, p string, err error) error {
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		errorsTotal.WithLabelValues(string(apierror.ClassCancelled)).Inc()
		requestsTotal.WithLabelValues(endpoint, "cancelled").Inc()
		c.logger.Debug().Err(cause).Str("endpoint", p).Msg("Request cancelled")
		return apierror.Cancelled(cause)
	}
	errorsTotal.WithLabelValues(string(apierror.ClassTransport)).Inc()
	requestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
	c.logger.Error().Err(err).Str("endpoint", p).Msg("HTTP request failed")
	return apierror.Transport(err)
}

// errorMessage extracts a message from an error payload, falling back to the
// status text.
func errorMessage(body []byte, status int) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return http.StatusText(status)
}
