package cache

import (
	"net/http"
	"time"
)

// Entry is a cached API response.
type Entry struct {
	// Body is the raw response body.
	Body []byte `json:"body"`

	// StatusCode is the HTTP status code of the cached response.
	StatusCode int `json:"status_code"`

	// Header holds the response headers.
	Header http.Header `json:"header"`

	// ETag is the validator for If-None-Match revalidation.
	ETag string `json:"etag,omitempty"`

	// LastModified is the validator for If-Modified-Since revalidation.
	LastModified time.Time `json:"last_modified,omitzero"`

	// StoredAt is when the response was cached.
	StoredAt time.Time `json:"stored_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return e.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the entry is stale at now.
func (e *Entry) IsExpiredAt(now time.Time) bool {
	return now.After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	return max(time.Until(e.Expires), 0)
}

// HasValidator reports whether the entry can be revalidated with a
// conditional request.
func (e *Entry) HasValidator() bool {
	return e != nil && (e.ETag != "" || !e.LastModified.IsZero())
}
