// Package ratelimit implements the per-client sliding window applied to read requests.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultLimit  = 30
	DefaultWindow = 60 * time.Second
)

// Limiter admits at most limit requests per client inside any window.
// State lives in memory and is lost on restart.
type Limiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
}

// New creates a limiter. Non-positive values fall back to the defaults.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// Admit records a request for clientID at now and reports whether it is allowed.
// Rejected requests are not recorded; retryAfter is how long until the oldest
// hit leaves the window.
func (l *Limiter) Admit(clientID string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hits := prune(l.hits[clientID], now.Add(-l.window))
	if len(hits) >= l.limit {
		l.hits[clientID] = hits
		oldest := lo.MinBy(hits, func(a, b time.Time) bool { return a.Before(b) })
		retry := oldest.Add(l.window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return false, retry
	}

	l.hits[clientID] = append(hits, now)
	return true, 0
}

// Sweep drops clients with no hits inside the window.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	removed := 0
	for id, hits := range l.hits {
		if hits = prune(hits, cutoff); len(hits) == 0 {
			delete(l.hits, id)
			removed++
			continue
		}
		l.hits[id] = hits
	}
	return removed
}

// Clients returns the number of tracked clients.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// prune keeps the hits after cutoff. Callers read the clock before taking the
// lock, so hits are not guaranteed to be in order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, ts := range hits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// ClientID identifies the caller: first X-Forwarded-For entry, else the peer host.
func ClientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
