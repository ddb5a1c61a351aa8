package resolver

import (
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/DeafMist/news-digest/internal/models"
)

// DefaultRedirectHosts are indirection hosts seen in grounded model output.
var DefaultRedirectHosts = []string{
	"vertexaisearch.cloud.google.com",
	"news.google.com/rss/articles",
	"google.com/url?",
}

// Hosts matches URLs against a set of redirect-host patterns by substring.
type Hosts struct {
	patterns []string
}

// NewHosts normalizes patterns; an empty list falls back to DefaultRedirectHosts.
func NewHosts(patterns []string) Hosts {
	cleaned := lo.Uniq(lo.FilterMap(patterns, func(p string, _ int) (string, bool) {
		p = strings.ToLower(strings.TrimSpace(p))
		return p, p != ""
	}))
	if len(cleaned) == 0 {
		return NewHosts(DefaultRedirectHosts)
	}
	return Hosts{patterns: cleaned}
}

// Patterns returns the normalized pattern list.
func (h Hosts) Patterns() []string {
	return append([]string(nil), h.patterns...)
}

// Matches reports whether raw contains any redirect-host pattern.
func (h Hosts) Matches(raw string) bool {
	if raw == "" {
		return false
	}
	lower := strings.ToLower(raw)
	for _, p := range h.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// NeedsReplacement reports whether an item URL is empty, a redirect or not absolute.
func (h Hosts) NeedsReplacement(raw string) bool {
	return raw == "" || h.Matches(raw) || !IsAbsolute(raw)
}

// FilterPool drops grounding entries that are redirects themselves or not absolute,
// and de-duplicates by URI keeping the first occurrence.
func (h Hosts) FilterPool(in []models.GroundingURL) []models.GroundingURL {
	seen := make(map[string]struct{}, len(in))
	out := make([]models.GroundingURL, 0, len(in))
	for _, g := range in {
		uri := strings.TrimSpace(g.URI)
		if uri == "" || h.Matches(uri) || !IsAbsolute(uri) {
			continue
		}
		if _, dup := seen[uri]; dup {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, models.GroundingURL{URI: uri, Title: g.Title})
	}
	return out
}

// IsAbsolute reports whether raw is an absolute http(s) URL with a host.
func IsAbsolute(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
