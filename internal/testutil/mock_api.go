// Package testutil provides an in-process mock of the remote API for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// CollectionOptions controls how a paginated collection is served.
type CollectionOptions struct {
	// ReportTotal includes the collection size in every page.
	ReportTotal bool

	// DefaultLimit applies when the request carries no limit. Defaults to 50.
	DefaultLimit int
}

// MockAPI is a configurable mock API server for testing.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	failures map[string][]MockResponse
	latency  time.Duration
	apiKey   string

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	paths             map[string]int
	inFlight          int
	maxInFlight       int
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
		failures: make(map[string][]MockResponse),
		paths:    make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.paths[r.URL.Path]++
	m.LastRequestHeader = r.Header.Clone()
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.ConditionalCount++
	}
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)

	latency := m.latency
	apiKey := m.apiKey
	var injected *MockResponse
	if queue := m.failures[r.URL.Path]; len(queue) > 0 {
		injected = &queue[0]
		m.failures[r.URL.Path] = queue[1:]
	}
	handler, exists := m.handlers[r.URL.Path]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if !sleepCtx(r, latency) {
		return
	}

	if apiKey != "" && r.Header.Get("Authorization") != "Bearer "+apiKey {
		writeResponse(w, r, MockResponse{StatusCode: http.StatusUnauthorized, Body: `{"error":"unauthorized"}`})
		return
	}

	if injected != nil {
		writeResponse(w, r, *injected)
		return
	}

	if exists {
		handler(w, r)
		return
	}

	m.defaultHandler(w, r)
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.paths = make(map[string]int)
	m.maxInFlight = 0
}

// RequireAPIKey rejects requests without "Authorization: Bearer key" with 401.
func (m *MockAPI) RequireAPIKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKey = key
}

// SetLatency delays every response by d, or until the client gives up.
func (m *MockAPI) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, r, resp)
	})
}

// FailNext makes the next requests to path answer with the given responses,
// in order, before the regular handler takes over again.
func (m *MockAPI) FailNext(path string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = append(m.failures[path], resps...)
}

// SetCollection serves items as an offset/limit paginated list at path using
// the {"data": [...], "next_offset": n, "total": n} envelope.
func (m *MockAPI) SetCollection(path string, items []any, opts CollectionOptions) {
	limitDefault := opts.DefaultLimit
	if limitDefault <= 0 {
		limitDefault = 50
	}

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = limitDefault
		}
		offset = min(max(offset, 0), len(items))
		end := min(offset+limit, len(items))

		page := map[string]any{"data": items[offset:end]}
		if end < len(items) {
			page["next_offset"] = end
		} else {
			page["next_offset"] = nil
		}
		if opts.ReportTotal {
			page["total"] = len(items)
		}

		body, _ := json.Marshal(page)
		writeResponse(w, r, NewHealthyResponse(string(body)))
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockAPI) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// RequestsTo returns the number of requests made to path.
func (m *MockAPI) RequestsTo(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths[path]
}

// MaxInFlight returns the highest number of concurrently served requests.
func (m *MockAPI) MaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxInFlight
}

// LastHeader returns a copy of the headers of the most recent request.
func (m *MockAPI) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

// defaultHandler provides a default JSON response.
func (m *MockAPI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	setQuotaHeaders(w.Header(), 100, 100, 60)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if r.Header.Get("If-None-Match") != "" {
		w.Header().Set("Cache-Control", "max-age=300")
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", `"default-etag"`)
	w.Header().Set("Cache-Control", "max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"data": {"status": "ok"}}`))
}

func writeResponse(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	if !sleepCtx(r, resp.Delay) {
		return
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// sleepCtx waits d or until the client disconnects. It reports whether the
// full delay elapsed.
func sleepCtx(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

func setQuotaHeaders(h http.Header, remaining, limit, reset int) {
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Reset", strconv.Itoa(reset))
}

func quotaHeaderMap(remaining, limit, reset int) map[string]string {
	return map[string]string{
		"X-RateLimit-Remaining": strconv.Itoa(remaining),
		"X-RateLimit-Limit":     strconv.Itoa(limit),
		"X-RateLimit-Reset":     strconv.Itoa(reset),
		"Content-Type":          "application/json; charset=utf-8",
	}
}

// NewHealthyResponse creates a standard 200 OK response with quota headers.
func NewHealthyResponse(data string) MockResponse {
	headers := quotaHeaderMap(100, 100, 60)
	headers["ETag"] = `"test-etag-123"`
	headers["Cache-Control"] = "max-age=300"
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    headers,
	}
}

// NewNotModifiedResponse creates a 304 Not Modified response.
func NewNotModifiedResponse() MockResponse {
	headers := quotaHeaderMap(100, 100, 60)
	headers["Cache-Control"] = "max-age=300"
	return MockResponse{
		StatusCode: http.StatusNotModified,
		Headers:    headers,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response with a
// Retry-After of retryAfter seconds.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    quotaHeaderMap(95, 100, 60),
	}
}

// NewClientErrorResponse creates a 4xx response with the given status.
func NewClientErrorResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       `{"error": "` + http.StatusText(status) + `"}`,
		Headers:    quotaHeaderMap(99, 100, 60),
	}
}

// NewConditionalHandler creates a handler that responds with 304 for conditional requests.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setQuotaHeaders(w.Header(), 100, 100, 60)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("Cache-Control", "max-age=300")
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		// Immediately stale so every later read revalidates.
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
