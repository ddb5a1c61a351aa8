package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-digest/internal/apperr"
	"github.com/DeafMist/news-digest/internal/extract"
	"github.com/DeafMist/news-digest/internal/ingest"
	"github.com/DeafMist/news-digest/internal/llm"
	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/prompt"
	"github.com/DeafMist/news-digest/internal/resolver"
	"github.com/DeafMist/news-digest/internal/store"
)

const vertex = "https://vertexaisearch.cloud.google.com/grounding-api-redirect/"

type stubGenerator struct {
	mu      sync.Mutex
	byUser  func(p prompt.Prompt) (llm.Response, error)
	prompts []prompt.Prompt
}

func (s *stubGenerator) Generate(_ context.Context, p prompt.Prompt) (llm.Response, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, p)
	s.mu.Unlock()
	return s.byUser(p)
}

func (s *stubGenerator) Name() string { return "stub" }

type stubPublisher struct {
	events []models.RecordEvent
	err    error
}

func (s *stubPublisher) Publish(_ context.Context, ev models.RecordEvent) error {
	s.events = append(s.events, ev)
	return s.err
}

func (s *stubPublisher) Close() error { return nil }

type stubNotifier struct{ msgs []string }

func (s *stubNotifier) Notify(msg string) { s.msgs = append(s.msgs, msg) }

func digestJSON(urls ...string) string {
	items := make([]string, 0, len(urls))
	labels := []string{"Reuters", "AP", "The Verge", "Bloomberg", "CNBC"}
	for i, u := range urls {
		items = append(items, fmt.Sprintf(
			`{"title":"story %d","body":"body %d","source_label":%q,"source_url":%q,"glossary":[{"term":"GPU","definition":"graphics chip"}]}`,
			i, i, labels[i%len(labels)], u))
	}
	return `{"items":[` + strings.Join(items, ",") + `],"insight":"chips everywhere"}`
}

func newOrchestrator(t *testing.T, gen llm.Generator, res *resolver.Resolver, s ingest.Saver, opts ...func(*ingest.Deps)) *ingest.Orchestrator {
	t.Helper()
	clock := time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)
	d := ingest.Deps{
		Generator: gen,
		Resolver:  res,
		Store:     s,
		Now: func() time.Time {
			clock = clock.Add(time.Millisecond)
			return clock
		},
	}
	for _, opt := range opts {
		opt(&d)
	}
	o, err := ingest.New(d)
	require.NoError(t, err)
	return o
}

func groundingResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	r, err := resolver.New(resolver.Config{Mode: resolver.ModeGrounding}, nil, nil)
	require.NoError(t, err)
	return r
}

func TestRunGroundingEndToEnd(t *testing.T) {
	gen := &stubGenerator{byUser: func(prompt.Prompt) (llm.Response, error) {
		text := "Here you go:\n```json\n" + digestJSON(
			vertex+"abc",
			"https://apnews.com/article/2",
			"https://www.theverge.com/3",
			"https://www.bloomberg.com/4",
			"https://www.cnbc.com/5",
		) + "\n```"
		return llm.Response{Text: text, Grounding: []models.GroundingURL{
			{URI: vertex + "zzz", Title: "ignored redirect"},
			{URI: "https://www.reuters.com/technology/chips-2025", Title: "reuters.com"},
		}}, nil
	}}
	s := store.NewMemory()
	pub := &stubPublisher{}
	o := newOrchestrator(t, gen, groundingResolver(t), s, func(d *ingest.Deps) { d.Events = pub })

	res, err := o.Run(context.Background(), ingest.Target{Region: models.RegionUS, Category: models.CategoryTech})
	require.NoError(t, err)
	require.Equal(t, "fenced", res.Strategy)
	require.Equal(t, 5, res.Items)
	require.Equal(t, 5, res.Sources)
	require.Empty(t, res.Findings)
	require.Equal(t, 1, res.Report.Count(resolver.ActionLabelMatch))

	row, err := s.Latest(context.Background(), models.RegionUS, models.CategoryTech)
	require.NoError(t, err)
	require.Equal(t, res.RecordID, row.ID)

	rec, err := row.DecodeSummary()
	require.NoError(t, err)
	require.Equal(t, models.RegionUS, rec.Region)
	require.Equal(t, models.CategoryTech, rec.Category)
	require.Equal(t, "https://www.reuters.com/technology/chips-2025", rec.Items[0].SourceURL)
	for _, item := range rec.Items {
		require.NotContains(t, item.SourceURL, "vertexaisearch")
	}

	sources, err := row.DecodeSources()
	require.NoError(t, err)
	require.Equal(t, models.SourceEntry{Title: "Reuters", Link: "https://www.reuters.com/technology/chips-2025"}, sources[0])

	require.Len(t, pub.events, 1)
	require.Equal(t, res.RecordID, pub.events[0].RecordID)
	require.Equal(t, "us", pub.events[0].Region)

	require.Len(t, gen.prompts, 1)
	require.Contains(t, gen.prompts[0].System, prompt.DefaultLanguage)
}

func TestRunActiveEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/redirect/") {
			http.Redirect(w, r, "/news/"+strings.TrimPrefix(r.URL.Path, "/redirect/"), http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	res, err := resolver.New(resolver.Config{
		Mode:          resolver.ModeActive,
		RedirectHosts: []string{srv.URL + "/redirect/"},
	}, srv.Client(), nil)
	require.NoError(t, err)

	gen := &stubGenerator{byUser: func(prompt.Prompt) (llm.Response, error) {
		return llm.Response{Text: digestJSON(
			srv.URL+"/redirect/one",
			"https://apnews.com/2",
			"https://apnews.com/3",
			"https://apnews.com/4",
			"https://apnews.com/5",
		)}, nil
	}}
	s := store.NewMemory()
	o := newOrchestrator(t, gen, res, s)

	result, err := o.Run(context.Background(), ingest.Target{Region: models.RegionUS, Category: models.CategoryTech})
	require.NoError(t, err)
	require.Equal(t, "direct", result.Strategy)

	row, err := s.Latest(context.Background(), models.RegionUS, models.CategoryTech)
	require.NoError(t, err)
	rec, err := row.DecodeSummary()
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/news/one", rec.Items[0].SourceURL)
	require.Equal(t, "https://apnews.com/2", rec.Items[1].SourceURL, "item order is preserved")
}

func TestRunExtractionFailureStoresNothing(t *testing.T) {
	gen := &stubGenerator{byUser: func(prompt.Prompt) (llm.Response, error) {
		return llm.Response{Text: "Sorry, I can't help with that today."}, nil
	}}
	s := store.NewMemory()
	o := newOrchestrator(t, gen, groundingResolver(t), s)

	_, err := o.Run(context.Background(), ingest.Target{Region: models.RegionKR, Category: models.CategoryGeneral})
	require.Error(t, err)
	var exErr *extract.ExtractionError
	require.ErrorAs(t, err, &exErr)
	require.Equal(t, apperr.KindExtraction, apperr.KindOf(err))
	require.Equal(t, 0, s.Len())
}

func TestRunSchemaFailure(t *testing.T) {
	gen := &stubGenerator{byUser: func(prompt.Prompt) (llm.Response, error) {
		return llm.Response{Text: `{"insight":"no items here"}`}, nil
	}}
	s := store.NewMemory()
	o := newOrchestrator(t, gen, groundingResolver(t), s)

	_, err := o.Run(context.Background(), ingest.Target{Region: models.RegionKR, Category: models.CategoryGeneral})
	require.Equal(t, apperr.KindSchema, apperr.KindOf(err))
	require.Equal(t, 0, s.Len())
}

func TestRunEmptyItemsIsAccepted(t *testing.T) {
	gen := &stubGenerator{byUser: func(prompt.Prompt) (llm.Response, error) {
		return llm.Response{Text: `{"items":[],"insight":""}`}, nil
	}}
	s := store.NewMemory()
	o := newOrchestrator(t, gen, groundingResolver(t), s)

	res, err := o.Run(context.Background(), ingest.Target{Region: models.RegionKR, Category: models.CategoryGeneral})
	require.NoError(t, err)
	require.Equal(t, 0, res.Items)
	require.NotEmpty(t, res.Findings)
	require.Equal(t, 1, s.Len())
}

func TestRunPublishFailureDoesNotFail(t *testing.T) {
	gen := &stubGenerator{byUser: func(prompt.Prompt) (llm.Response, error) {
		return llm.Response{Text: digestJSON("https://apnews.com/1")}, nil
	}}
	pub := &stubPublisher{err: errors.New("no brokers")}
	o := newOrchestrator(t, gen, groundingResolver(t), store.NewMemory(), func(d *ingest.Deps) { d.Events = pub })

	_, err := o.Run(context.Background(), ingest.Target{Region: models.RegionUS, Category: models.CategoryGeneral})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	gen := &stubGenerator{byUser: func(p prompt.Prompt) (llm.Response, error) {
		if strings.Contains(p.User, "economy/finance") {
			return llm.Response{}, apperr.New(apperr.KindUpstream, "quota exceeded")
		}
		return llm.Response{Text: digestJSON("https://apnews.com/1")}, nil
	}}
	s := store.NewMemory()
	n := &stubNotifier{}
	o := newOrchestrator(t, gen, groundingResolver(t), s, func(d *ingest.Deps) { d.Notifier = n })

	targets, err := ingest.Targets("kr", "")
	require.NoError(t, err)
	results, err := o.Sweep(context.Background(), targets)

	require.Error(t, err)
	var sweepErr *ingest.SweepError
	require.ErrorAs(t, err, &sweepErr)
	require.Equal(t, []string{"kr/economy"}, sweepErr.Keys())
	require.Contains(t, err.Error(), "kr/economy")
	require.Len(t, results, 3)
	require.Equal(t, 3, s.Len())
	require.Len(t, n.msgs, 1)
	require.Contains(t, n.msgs[0], "kr/economy")
}

func TestSweepStopsStartingTargetsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &stubGenerator{byUser: func(prompt.Prompt) (llm.Response, error) {
		cancel()
		return llm.Response{Text: digestJSON("https://apnews.com/1")}, nil
	}}
	s := store.NewMemory()
	o := newOrchestrator(t, gen, groundingResolver(t), s)

	targets, err := ingest.Targets("", "")
	require.NoError(t, err)
	_, err = o.Sweep(ctx, targets)

	var sweepErr *ingest.SweepError
	require.ErrorAs(t, err, &sweepErr)
	require.Equal(t, []string{"kr/general"}, sweepErr.Keys())
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, gen.prompts, 1)
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := ingest.New(ingest.Deps{})
	require.Error(t, err)
}
