package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-digest/internal/apperr"
	"github.com/DeafMist/news-digest/internal/elasticsearch"
	"github.com/DeafMist/news-digest/internal/gateway"
	"github.com/DeafMist/news-digest/internal/httpapi"
	"github.com/DeafMist/news-digest/internal/ingest"
	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/ratelimit"
	"github.com/DeafMist/news-digest/internal/store"
)

type stubRefresher struct {
	targets []ingest.Target
	fail    map[string]error
	ctxErr  error
}

func (s *stubRefresher) Sweep(ctx context.Context, targets []ingest.Target) ([]ingest.Result, error) {
	s.targets = targets
	s.ctxErr = ctx.Err()
	var (
		results []ingest.Result
		failed  []ingest.TargetError
	)
	for _, t := range targets {
		if err, ok := s.fail[t.String()]; ok {
			failed = append(failed, ingest.TargetError{Target: t, Err: err})
			continue
		}
		results = append(results, ingest.Result{Target: t})
	}
	if len(failed) > 0 {
		return results, &ingest.SweepError{Failed: failed}
	}
	return results, nil
}

type stubArchive struct {
	params elasticsearch.SearchParams
	err    error
}

func (s *stubArchive) SearchArchive(_ context.Context, p elasticsearch.SearchParams) (*elasticsearch.SearchResult, error) {
	s.params = p
	if s.err != nil {
		return nil, s.err
	}
	return &elasticsearch.SearchResult{Total: 1, Items: []models.ArchiveDocument{{ID: "a", Region: p.Region}}}, nil
}

func (s *stubArchive) Health(context.Context) error { return s.err }

type fixture struct {
	handler   http.Handler
	refresher *stubRefresher
	archive   *stubArchive
	store     *store.Memory
}

func newFixture(t *testing.T, secret string, origins []string, limit int) *fixture {
	t.Helper()
	s := store.NewMemory()
	_, err := s.Save(context.Background(), models.NewsRecord{
		Region:    models.RegionUS,
		Category:  models.CategoryGeneral,
		Items:     []models.NewsItem{{Title: "Senate passes budget", SourceLabel: "AP", SourceURL: "https://apnews.com/article/1"}},
		Insight:   "busy week",
		CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	f := &fixture{refresher: &stubRefresher{}, archive: &stubArchive{}, store: s}
	f.handler = httpapi.NewRouter(httpapi.Deps{
		Gateway:   gateway.New(s, nil),
		Limiter:   ratelimit.New(limit, time.Minute),
		CORS:      gateway.NewCORS(origins),
		Refresher: f.refresher,
		Store:     s,
		Archive:   f.archive,
	}, httpapi.Options{CronSecret: secret})
	return f
}

func (f *fixture) do(method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

func TestNewsEndpoint(t *testing.T) {
	f := newFixture(t, "", nil, 30)

	rec := f.do(http.MethodGet, "/api/news?region=us", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "Origin", rec.Header().Get("Vary"))

	var body gateway.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "2025-06-01T00:00:00.000000Z", body.UpdatedAt)
	require.Len(t, body.Sources, 1)
	require.Contains(t, body.Summary, "busy week")
}

func TestNewsBlankCategoryDefaultsToGeneral(t *testing.T) {
	f := newFixture(t, "", nil, 30)

	for _, target := range []string{"/api/news?region=us&category=", "/api/news?region=us&category=%20"} {
		rec := f.do(http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code, target)

		var body gateway.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "2025-06-01T00:00:00.000000Z", body.UpdatedAt)
	}
}

func TestNewsEndpointErrors(t *testing.T) {
	f := newFixture(t, "", nil, 30)

	cases := []struct {
		target string
		status int
		detail string
	}{
		{"/api/news", http.StatusBadRequest, "region must be one of: us, kr"},
		{"/api/news?region=jp", http.StatusBadRequest, "region must be one of: us, kr"},
		{"/api/news?region=us&category=sports", http.StatusBadRequest, "category must be one of: general, tech, economy, entertainment"},
		{"/api/news?region=kr", http.StatusNotFound, "no digest is available yet"},
	}
	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			rec := f.do(http.MethodGet, tc.target, nil)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.detail, detail(t, rec))
		})
	}
}

func TestNewsRateLimited(t *testing.T) {
	f := newFixture(t, "", []string{"https://app.example.com"}, 3)
	headers := map[string]string{"X-Forwarded-For": "203.0.113.5", "Origin": "https://app.example.com"}

	for range 3 {
		require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/news?region=us", headers).Code)
	}

	rec := f.do(http.MethodGet, "/api/news?region=us", headers)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Invalid requests count against the limit too, and another client is unaffected.
	other := map[string]string{"X-Forwarded-For": "198.51.100.9"}
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/news?region=zz", other).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/news?region=us", other).Code)
}

func TestNewsPreflight(t *testing.T) {
	f := newFixture(t, "", []string{"https://app.example.com"}, 30)

	rec := f.do(http.MethodOptions, "/api/news", map[string]string{"Origin": "https://app.example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	require.Empty(t, rec.Body.String())

	rec = f.do(http.MethodOptions, "/api/news", map[string]string{"Origin": "https://evil.example.com"})
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCronAuthorization(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		auth   string
		status int
	}{
		{name: "no secret configured", secret: "", auth: "Bearer ", status: http.StatusUnauthorized},
		{name: "missing header", secret: "s3cret", status: http.StatusUnauthorized},
		{name: "wrong token", secret: "s3cret", auth: "Bearer nope", status: http.StatusUnauthorized},
		{name: "wrong scheme", secret: "s3cret", auth: "s3cret", status: http.StatusUnauthorized},
		{name: "valid", secret: "s3cret", auth: "Bearer s3cret", status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.secret, nil, 30)
			headers := map[string]string{}
			if tc.auth != "" {
				headers["Authorization"] = tc.auth
			}
			rec := f.do(http.MethodPost, "/api/cron?region=us&category=tech", headers)
			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusUnauthorized {
				require.Equal(t, "Unauthorized", detail(t, rec))
				require.Nil(t, f.refresher.targets)
			}
		})
	}
}

func TestCronTargets(t *testing.T) {
	auth := map[string]string{"Authorization": "Bearer s3cret"}
	f := newFixture(t, "s3cret", nil, 30)

	rec := f.do(http.MethodGet, "/api/cron", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "refreshed us/general, kr/general", body["message"])

	rec = f.do(http.MethodGet, "/api/cron?region=kr", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.refresher.targets, 4)
	require.NoError(t, f.refresher.ctxErr)

	rec = f.do(http.MethodGet, "/api/cron?region=mars", auth)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "region must be one of: us, kr", detail(t, rec))
}

func TestCronFailureReportsKeys(t *testing.T) {
	f := newFixture(t, "s3cret", nil, 30)
	f.refresher.fail = map[string]error{
		"kr/general": apperr.New(apperr.KindExtraction, "no JSON object in model response"),
	}

	rec := f.do(http.MethodPost, "/api/cron", map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, detail(t, rec), "kr/general")
	require.Len(t, f.refresher.targets, 2, "the healthy target still ran")
}

func TestArchiveEndpoint(t *testing.T) {
	f := newFixture(t, "", nil, 30)

	rec := f.do(http.MethodGet, "/api/archive?region=kr&category=tech&q=chips&size=5000&from=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "kr", f.archive.params.Region)
	require.Equal(t, "tech", f.archive.params.Category)
	require.Equal(t, "chips", f.archive.params.Query)
	require.Equal(t, 20, f.archive.params.Size)
	require.Equal(t, 10, f.archive.params.From)

	rec = f.do(http.MethodGet, "/api/archive?region=jp", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	f.archive.err = errors.New("cluster red")
	rec = f.do(http.MethodGet, "/api/archive", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.False(t, strings.Contains(rec.Body.String(), "cluster red"))
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "", nil, 30)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", nil).Code)

	f.archive.err = errors.New("unreachable")
	require.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/health", nil).Code)
}
