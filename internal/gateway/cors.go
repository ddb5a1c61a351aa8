package gateway

import (
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// CORS decides which browser origins may read responses.
type CORS struct {
	allowed map[string]struct{}
}

// NewCORS builds a policy from an exact-match allow-list. Blank entries are ignored.
func NewCORS(origins []string) *CORS {
	trimmed := lo.Compact(lo.Map(origins, func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))
	return &CORS{allowed: lo.SliceToMap(trimmed, func(o string) (string, struct{}) {
		return o, struct{}{}
	})}
}

// AllowOrigin returns the value for Access-Control-Allow-Origin, or "" when
// the origin gets no grant. With an empty allow-list no origin is granted;
// requests without an Origin header need no grant.
func (c *CORS) AllowOrigin(origin string) string {
	if origin == "" || len(c.allowed) == 0 {
		return ""
	}
	if _, ok := c.allowed[origin]; ok {
		return origin
	}
	return ""
}

// Apply writes the cross-origin headers for r onto h.
func (c *CORS) Apply(h http.Header, r *http.Request) {
	if allowed := c.AllowOrigin(r.Header.Get("Origin")); allowed != "" {
		h.Set("Access-Control-Allow-Origin", allowed)
	}
	h.Add("Vary", "Origin")
}

// Preflight writes the preflight answer. Origin headers come from Apply.
func (c *CORS) Preflight(h http.Header) {
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Access-Control-Max-Age", "86400")
}

// Middleware applies the policy to every response of next.
func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Apply(w.Header(), r)
		next.ServeHTTP(w, r)
	})
}
