package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/resilient-api-client/pkg/apierror"
	"github.com/Sternrassler/resilient-api-client/pkg/batch"
	"github.com/Sternrassler/resilient-api-client/pkg/cancel"
	"github.com/Sternrassler/resilient-api-client/pkg/client"
	"github.com/Sternrassler/resilient-api-client/pkg/logging"
	"github.com/Sternrassler/resilient-api-client/pkg/metrics"
	"github.com/Sternrassler/resilient-api-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// flushEvery is the number of NDJSON lines written between flushes.
const flushEvery = 50

type server struct {
	client *client.Client
	redis  *redis.Client
	logger zerolog.Logger
}

// newServer wires the proxy routes. redisClient may be nil.
func newServer(c *client.Client, redisClient *redis.Client) http.Handler {
	s := &server{
		client: c,
		redis:  redisClient,
		logger: logging.NewLogger("api-proxy"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /list/{path...}", s.handleList)
	mux.HandleFunc("GET /get", s.handleGet)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

// handleList streams every item of a collection as NDJSON. The pagination
// parameters offset, limit, max_pages and max_items are consumed by the
// proxy; all other query parameters are forwarded. parallel=true fetches
// the pages concurrently before writing.
func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	query := r.URL.Query()

	opts, err := takeListOptions(query)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	parallel, err := takeBool(query, "parallel")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")

	if parallel {
		items, err := client.ListAllParallel[json.RawMessage](r.Context(), s.client, path, query, opts)
		if err != nil {
			s.writeAPIError(w, r, err)
			return
		}
		enc := json.NewEncoder(w)
		for _, item := range items {
			if err := enc.Encode(item); err != nil {
				return
			}
		}
		return
	}

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	written := 0
	for item, err := range client.StreamAll[json.RawMessage](r.Context(), s.client, path, query, opts) {
		if err != nil {
			if written == 0 {
				s.writeAPIError(w, r, err)
				return
			}
			// status already sent; report the failure as the final line
			s.logger.Warn().Err(err).Str("path", path).Int("written", written).Msg("Listing aborted mid-stream")
			_ = enc.Encode(errorBody{Error: err.Error(), Class: string(apierror.ClassOf(err))})
			return
		}
		if err := enc.Encode(item); err != nil {
			return
		}
		written++
		if flusher != nil && written%flushEvery == 0 {
			flusher.Flush()
		}
	}
}

// getResult is one element of the /get response.
type getResult struct {
	Index  int             `json:"index"`
	Label  string          `json:"label"`
	Status batch.Status    `json:"status"`
	Value  json.RawMessage `json:"value,omitempty"`
	Error  string          `json:"error,omitempty"`
	Class  string          `json:"class,omitempty"`
}

// handleGet fetches every path given as a repeated "path" parameter.
// stop_on_error=true aborts on the first failure.
func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	paths := query["path"]
	if len(paths) == 0 {
		writeJSONError(w, http.StatusBadRequest, "at least one path parameter is required")
		return
	}
	stopOnError, err := takeBool(query, "stop_on_error")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	requests := make([]client.GetRequest, len(paths))
	for i, p := range paths {
		requests[i] = client.GetRequest{Path: strings.TrimPrefix(p, "/")}
	}

	outcomes, err := client.GetMany[json.RawMessage](r.Context(), s.client, requests, stopOnError)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}

	results := make([]getResult, len(outcomes))
	for i, o := range outcomes {
		results[i] = getResult{Index: o.Index, Label: o.Label, Status: o.Status, Value: o.Value}
		if o.Err != nil {
			results[i].Error = o.Err.Error()
			results[i].Class = string(apierror.ClassOf(o.Err))
		}
	}
	writeJSON(w, http.StatusOK, results)
}

type errorBody struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

func (s *server) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if wait := apierror.RetryAfterOf(err); wait > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
	s.logger.Warn().Err(err).Str("url", r.URL.String()).Int("status", status).Msg("Upstream request failed")
	writeJSON(w, status, errorBody{Error: err.Error(), Class: string(apierror.ClassOf(err))})
}

// statusFor maps a client failure to the status returned to the caller.
func statusFor(err error) int {
	switch apierror.ClassOf(err) {
	case apierror.ClassClient:
		var apiErr *apierror.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
			return apiErr.StatusCode
		}
		return http.StatusBadRequest
	case apierror.ClassRateLimit:
		return http.StatusTooManyRequests
	case apierror.ClassCancelled:
		if errors.Is(err, cancel.ErrTimeout) {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// takeListOptions removes the pagination parameters from query.
func takeListOptions(query url.Values) (pagination.Options, error) {
	var opts pagination.Options
	var err error
	if opts.Offset, err = takeInt(query, "offset"); err != nil {
		return opts, err
	}
	if opts.Limit, err = takeInt(query, "limit"); err != nil {
		return opts, err
	}
	if opts.MaxPages, err = takeInt(query, "max_pages"); err != nil {
		return opts, err
	}
	if opts.MaxItems, err = takeInt(query, "max_items"); err != nil {
		return opts, err
	}
	return opts, nil
}

func takeInt(query url.Values, name string) (int, error) {
	raw := query.Get(name)
	query.Del(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer (got %q)", name, raw)
	}
	return n, nil
}

func takeBool(query url.Values, name string) (bool, error) {
	raw := query.Get(name)
	query.Del(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean (got %q)", name, raw)
	}
	return b, nil
}
