// Package ratelimit tracks the server-reported request quota and gates requests
// before they are sent. It reads the X-RateLimit-Remaining, X-RateLimit-Limit
// and X-RateLimit-Reset response headers and shares the resulting state through
// a Store, so several processes talking to the same API see one quota.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Quota headers.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderReset     = "X-RateLimit-Reset"
)

// epochThreshold separates "seconds until reset" from "unix time of reset" in
// the reset header. No window is longer than a year.
const epochThreshold = 365 * 24 * 60 * 60

// State is the last known quota window.
type State struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// Limit is the window size. Zero when the server does not send it.
	Limit int `json:"limit"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the headers were observed.
	LastUpdate time.Time `json:"last_update"`
}

// ParseHeaders extracts a State from response headers. ok is false when the
// response carries no quota information.
func ParseHeaders(h http.Header, now time.Time) (state *State, ok bool, err error) {
	remainStr := strings.TrimSpace(h.Get(HeaderRemaining))
	if remainStr == "" {
		return nil, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	state = &State{Remaining: max(remain, 0), LastUpdate: now}

	if v := strings.TrimSpace(h.Get(HeaderLimit)); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return nil, false, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
		state.Limit = limit
	}

	resetStr := strings.TrimSpace(h.Get(HeaderReset))
	if resetStr == "" {
		return nil, false, fmt.Errorf("%s header missing", HeaderReset)
	}
	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}
	if reset > epochThreshold {
		state.ResetAt = time.Unix(reset, 0)
	} else {
		state.ResetAt = now.Add(time.Duration(max(reset, 0)) * time.Second)
	}

	return state, true, nil
}

// Expired reports whether the window has already reset, which makes the
// state meaningless.
func (s *State) Expired(now time.Time) bool {
	return !now.Before(s.ResetAt)
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	return max(s.ResetAt.Sub(now), 0)
}

// Exhausted reports whether no more than reserve requests are left.
func (s *State) Exhausted(reserve int) bool {
	return s.Remaining <= reserve
}

// Low reports whether the remaining quota is under the warning fraction of
// the limit. Without a known limit it never is.
func (s *State) Low(fraction float64) bool {
	if s.Limit <= 0 || fraction <= 0 {
		return false
	}
	return float64(s.Remaining) < float64(s.Limit)*fraction
}
