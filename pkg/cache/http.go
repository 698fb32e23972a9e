package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when the response carries no freshness information
	DefaultTTL = 5 * time.Minute
)

// Cacheable reports whether a response may be stored.
func Cacheable(status int, header http.Header) bool {
	if status != http.StatusOK {
		return false
	}
	_, noStore := cacheControl(header)["no-store"]
	return !noStore
}

// NewEntry builds an entry from a response. Freshness comes from
// Cache-Control max-age, then Expires, then defaultTTL.
func NewEntry(status int, header http.Header, body []byte, defaultTTL time.Duration, now time.Time) *Entry {
	entry := &Entry{
		Body:       body,
		StatusCode: status,
		Header:     header.Clone(),
		ETag:       header.Get("ETag"),
		StoredAt:   now,
		Expires:    expiresAt(header, defaultTTL, now),
	}

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry
}

// Refresh applies the headers of a 304 Not Modified response to entry.
func Refresh(entry *Entry, header http.Header, defaultTTL time.Duration, now time.Time) {
	if entry == nil {
		return
	}
	entry.Expires = expiresAt(header, defaultTTL, now)
	entry.StoredAt = now
	if etag := header.Get("ETag"); etag != "" {
		entry.ETag = etag
	}
}

// expiresAt returns the expiration time for a response observed at now.
func expiresAt(header http.Header, defaultTTL time.Duration, now time.Time) time.Time {
	directives := cacheControl(header)

	if _, ok := directives["no-cache"]; ok {
		// Stored but always revalidated.
		return now
	}

	if v, ok := directives["max-age"]; ok {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}

	if expiresStr := header.Get("Expires"); expiresStr != "" {
		expires, err := http.ParseTime(expiresStr)
		if err != nil {
			return now.Add(defaultTTL)
		}
		if expires.Before(now) {
			return now
		}
		return expires
	}

	return now.Add(defaultTTL)
}

func cacheControl(header http.Header) map[string]string {
	directives := map[string]string{}
	for _, line := range header.Values("Cache-Control") {
		for _, part := range strings.Split(line, ",") {
			name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
			if name == "" {
				continue
			}
			directives[strings.ToLower(name)] = strings.Trim(value, `"`)
		}
	}
	return directives
}

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since headers
// to the request if the cache entry supports conditional requests.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if entry == nil || req == nil {
		return
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}

	// Prefer ETag over Last-Modified (more accurate)
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}
