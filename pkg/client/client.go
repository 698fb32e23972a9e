// Package client provides the HTTP client for the remote API with retries,
// per-request timeouts, client-side rate limiting, server quota tracking and
// an optional Redis response cache. Typed operations (Get, Create, Update,
// Delete, ListAll, StreamAll, ListAllParallel, GetMany) sit on top of Do.
package client

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/resilient-api-client/pkg/batch"
	"github.com/Sternrassler/resilient-api-client/pkg/cache"
	"github.com/Sternrassler/resilient-api-client/pkg/logging"
	"github.com/Sternrassler/resilient-api-client/pkg/pagination"
	"github.com/Sternrassler/resilient-api-client/pkg/ratelimit"
	"github.com/Sternrassler/resilient-api-client/pkg/retry"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "resilient-api-client/1.0"

// Client is the main API client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *rate.Limiter
	tracker    *ratelimit.Tracker
	cache      *cache.Manager
	group      singleflight.Group
	scope      string
	clock      clockwork.Clock
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com".
	BaseURL string

	// APIKey is sent as a Bearer token.
	APIKey string

	// UserAgent header. DefaultUserAgent when empty.
	UserAgent string

	// Redis enables the response cache and shares quota state between
	// processes. Optional.
	Redis *redis.Client

	// CacheTTL applies to cacheable responses without freshness headers.
	CacheTTL time.Duration

	// Client-side rate limiting. RateLimit is in requests per second; zero
	// disables it.
	RateLimit float64
	Burst     int

	// QuotaReserve keeps this many requests of every server quota window unused.
	QuotaReserve int

	// Timeout bounds a single round trip. Params.Timeout overrides it.
	Timeout time.Duration

	// Retry configures Do and every operation built on it.
	Retry retry.Config

	// PageSize is the default page size of the list operations.
	PageSize int

	// BatchConcurrency bounds GetMany and ListAllParallel.
	BatchConcurrency int

	// HTTPClient replaces the default transport (for testing).
	HTTPClient *http.Client

	// Clock replaces the wall clock (for testing).
	Clock clockwork.Clock
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:          baseURL,
		APIKey:           apiKey,
		UserAgent:        DefaultUserAgent,
		CacheTTL:         cache.DefaultTTL,
		RateLimit:        10,
		Burst:            10,
		Timeout:          30 * time.Second,
		Retry:            retry.DefaultConfig(),
		PageSize:         pagination.DefaultPageSize,
		BatchConcurrency: batch.DefaultConcurrency,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base url must be http or https (got %q)", u.Scheme)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0 (got %s)", c.Timeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be >= 0 (got %g)", c.RateLimit)
	}
	if c.PageSize < 0 {
		return fmt.Errorf("page_size must be >= 0 (got %d)", c.PageSize)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, _ := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = pagination.DefaultPageSize
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = batch.DefaultConcurrency
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	logger := logging.NewLogger("api-client")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    base,
		scope:      credentialScope(cfg.APIKey),
		clock:      cfg.Clock,
		config:     cfg,
		logger:     logger,
	}

	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}

	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.Redis != nil {
		store = ratelimit.NewRedisStore(cfg.Redis, "")
		c.cache = cache.NewManager(cfg.Redis, cache.WithClock(cfg.Clock))
	}
	c.tracker = ratelimit.NewTracker(store,
		logging.NewLogger("ratelimit"),
		ratelimit.WithReserve(cfg.QuotaReserve),
		ratelimit.WithClock(cfg.Clock),
	)

	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// Cache returns the response cache, nil when Redis is not configured.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}

// Tracker returns the server quota tracker.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.tracker
}

// credentialScope keeps cache entries of different credentials apart
// without storing the credential.
func credentialScope(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:6])
}
