package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// KeyNamespace prefixes every key written by the Manager.
const KeyNamespace = "api"

// Key identifies a cached response.
type Key struct {
	// Method is the HTTP method, GET when empty.
	Method string

	// Path is the request path relative to the API base URL.
	Path string

	// Query holds the query parameters.
	Query url.Values

	// Scope separates callers that see different data for the same URL,
	// usually a digest of the credential. Empty for shared data.
	Scope string
}

// String generates a deterministic cache key string.
// Format: api:METHOD:path:q1=v1:q2=v2a,v2b:scope=xyz
//
// Example:
//
//	api:GET:v1/objects:limit=50:offset=100
func (k Key) String() string {
	method := strings.ToUpper(k.Method)
	if method == "" {
		method = http.MethodGet
	}
	parts := []string{KeyNamespace, method}

	if path := normalizePath(k.Path); path != "" {
		parts = append(parts, path)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(k.Query[name], ",")))
		}
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+k.Scope)
	}

	return strings.Join(parts, ":")
}

// pathPattern returns a SCAN pattern matching every key of any method whose
// path starts with prefix.
func pathPattern(prefix string) string {
	return KeyNamespace + ":*:" + escapeGlob(normalizePath(prefix)) + "*"
}

func normalizePath(p string) string {
	return strings.Trim(p, "/")
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
