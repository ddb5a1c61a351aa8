package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DeafMist/news-digest/internal/models"
)

// LinkChecker strips item URLs that do not point at an existing resource.
type LinkChecker struct {
	client         *http.Client
	requestTimeout time.Duration
	budget         time.Duration
	workers        int
}

// Check issues one HEAD per non-empty URL. A 4xx/5xx answer or a request error
// clears the URL but keeps the source label. Checks cut off by the overall
// budget leave the URL alone.
func (c *LinkChecker) Check(ctx context.Context, items []models.NewsItem) []Outcome {
	var jobs []int
	for i, item := range items {
		if item.SourceURL != "" {
			jobs = append(jobs, i)
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	budgetCtx, cancel := context.WithTimeout(ctx, c.budget)
	defer cancel()

	results := make([]Outcome, len(items))
	started := fanOut(budgetCtx, jobs, c.workers, func(ctx context.Context, idx int) {
		raw := items[idx].SourceURL
		err := c.exists(ctx, raw)
		switch {
		case err == nil:
			results[idx] = Outcome{Index: idx, Before: raw, After: raw, Action: ActionVerified}
		case budgetCtx.Err() != nil:
			results[idx] = Outcome{Index: idx, Before: raw, After: raw, Action: ActionAbandoned, Err: &ResolutionError{URL: raw, Err: err}}
		default:
			results[idx] = Outcome{Index: idx, Before: raw, After: "", Action: ActionStripped, Err: &ResolutionError{URL: raw, Err: err}}
		}
	})

	outcomes := make([]Outcome, 0, len(jobs))
	for n, idx := range jobs {
		out := results[idx]
		if !started[n] {
			raw := items[idx].SourceURL
			out = Outcome{Index: idx, Before: raw, After: raw, Action: ActionAbandoned}
		}
		if out.Action == ActionStripped {
			items[idx].SourceURL = ""
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (c *LinkChecker) exists(ctx context.Context, raw string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, raw, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("head: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxHTMLBytes))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}
