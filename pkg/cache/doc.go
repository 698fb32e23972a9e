// Package cache provides a Redis-backed response cache for API GET requests.
//
// Features:
//
//   - Freshness from Cache-Control max-age, then Expires, then a default TTL
//   - ETag (If-None-Match) and Last-Modified (If-Modified-Since) revalidation
//   - Expired entries with a validator are retained for revalidation
//   - Prefix invalidation after writes
//   - Deterministic keys, optionally scoped to a credential
//   - Prometheus metrics
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{Path: "/v1/objects", Query: url.Values{"limit": {"50"}}}
//
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch from the API, then manager.Set(ctx, key, cache.NewEntry(...))
//	case err != nil:
//		// Redis trouble: fall through to the API
//	case entry.IsExpiredAt(manager.Now()):
//		// stale: cache.AddConditionalHeaders(req, entry) and revalidate;
//		// on 304 call cache.Refresh and manager.Set
//	default:
//		// fresh hit
//	}
//
// # Metrics
//
//   - api_cache_hits_total - fresh hits
//   - api_cache_misses_total - misses
//   - api_cache_stale_total - stale entries handed out for revalidation
//   - api_cache_revalidations_total{result} - conditional request results
//   - api_cache_errors_total{operation} - Redis or decoding errors
package cache
