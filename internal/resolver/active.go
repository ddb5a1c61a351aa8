package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/DeafMist/news-digest/internal/models"
)

const (
	userAgent    = "news-digest/1.0 (+link resolver)"
	maxHTMLBytes = 1 << 20
)

// Active follows redirect URLs over the network to their final location.
type Active struct {
	client         *http.Client
	hosts          Hosts
	requestTimeout time.Duration
	budget         time.Duration
	workers        int
	htmlFallback   bool
}

// Resolve rewrites, in place, every item URL that matches a redirect host and
// resolves to a non-redirect location. Failures and budget overruns keep the original.
func (a *Active) Resolve(ctx context.Context, items []models.NewsItem) []Outcome {
	var jobs []int
	for i, item := range items {
		if a.hosts.Matches(item.SourceURL) {
			jobs = append(jobs, i)
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	budgetCtx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	results := make([]Outcome, len(items))
	started := fanOut(budgetCtx, jobs, a.workers, func(ctx context.Context, idx int) {
		raw := items[idx].SourceURL
		final, err := a.resolveOne(ctx, raw)
		switch {
		case err != nil && budgetCtx.Err() != nil:
			results[idx] = Outcome{Index: idx, Before: raw, After: raw, Action: ActionAbandoned, Err: &ResolutionError{URL: raw, Err: err}}
		case err != nil:
			results[idx] = Outcome{Index: idx, Before: raw, After: raw, Action: ActionFailed, Err: &ResolutionError{URL: raw, Err: err}}
		case final == "":
			results[idx] = Outcome{Index: idx, Before: raw, After: raw, Action: ActionUnchanged}
		default:
			results[idx] = Outcome{Index: idx, Before: raw, After: final, Action: ActionResolved}
		}
	})

	outcomes := make([]Outcome, 0, len(jobs))
	for n, idx := range jobs {
		out := results[idx]
		if !started[n] {
			raw := items[idx].SourceURL
			out = Outcome{Index: idx, Before: raw, After: raw, Action: ActionAbandoned}
		}
		if out.Action == ActionResolved {
			items[idx].SourceURL = out.After
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// resolveOne returns the final non-redirect URL for raw, or "" when none was found.
func (a *Active) resolveOne(ctx context.Context, raw string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	final, err := a.follow(reqCtx, http.MethodHead, raw)
	if err != nil {
		return "", err
	}
	if final != "" && !a.hosts.Matches(final) {
		return final, nil
	}
	if !a.htmlFallback {
		return "", nil
	}
	return a.fromHTML(reqCtx, raw)
}

func (a *Active) follow(ctx context.Context, method, raw string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, raw, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", strings.ToLower(method), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxHTMLBytes))

	return resp.Request.URL.String(), nil
}

// fromHTML handles redirect hosts that answer with an interstitial page instead
// of a 3xx: the destination is read from canonical, og:url or meta refresh tags.
func (a *Active) fromHTML(ctx context.Context, raw string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	if final := resp.Request.URL.String(); !a.hosts.Matches(final) {
		return final, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return "", fmt.Errorf("parse interstitial: %w", err)
	}

	base := resp.Request.URL
	for _, candidate := range htmlCandidates(doc) {
		abs := absolutize(base, candidate)
		if abs != "" && IsAbsolute(abs) && !a.hosts.Matches(abs) {
			return abs, nil
		}
	}
	return "", nil
}

func htmlCandidates(doc *goquery.Document) []string {
	var out []string
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		out = append(out, href)
	}
	if content, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok {
		out = append(out, content)
	}
	doc.Find(`meta[http-equiv]`).Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(s.AttrOr("http-equiv", ""), "refresh") {
			return
		}
		if target := refreshTarget(s.AttrOr("content", "")); target != "" {
			out = append(out, target)
		}
	})
	return out
}

// refreshTarget extracts the URL from a meta refresh value such as "0;url=https://...".
func refreshTarget(content string) string {
	_, after, found := strings.Cut(content, ";")
	if !found {
		return ""
	}
	after = strings.TrimSpace(after)
	if len(after) < 4 || !strings.EqualFold(after[:4], "url=") {
		return ""
	}
	return strings.Trim(strings.TrimSpace(after[4:]), `'"`)
}

func absolutize(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
