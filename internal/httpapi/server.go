// Package httpapi exposes the read, refresh, archive and health endpoints.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/news-digest/internal/apperr"
	"github.com/DeafMist/news-digest/internal/elasticsearch"
	"github.com/DeafMist/news-digest/internal/gateway"
	"github.com/DeafMist/news-digest/internal/ingest"
	"github.com/DeafMist/news-digest/internal/ratelimit"
	"github.com/DeafMist/news-digest/internal/validation"
)

// Refresher runs ingestion for a list of targets.
type Refresher interface {
	Sweep(ctx context.Context, targets []ingest.Target) ([]ingest.Result, error)
}

// ArchiveSearcher queries the digest archive.
type ArchiveSearcher interface {
	SearchArchive(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options are the HTTP-level knobs.
type Options struct {
	CronSecret     string
	RefreshTimeout time.Duration
	DefaultPage    int
	MaxPage        int
}

// Deps wires the handlers. Archive may be nil when no cluster is configured.
type Deps struct {
	Gateway   *gateway.Gateway
	Limiter   *ratelimit.Limiter
	CORS      *gateway.CORS
	Refresher Refresher
	Store     Pinger
	Archive   ArchiveSearcher
	Log       *slog.Logger
	Now       func() time.Time
}

type server struct {
	Deps
	opts Options
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type refreshResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewRouter builds the chi router.
func NewRouter(d Deps, opts Options) http.Handler {
	if d.Log == nil {
		d.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.CORS == nil {
		d.CORS = gateway.NewCORS(nil)
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.New(0, 0)
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 10 * time.Minute
	}
	if opts.DefaultPage <= 0 {
		opts.DefaultPage = 20
	}
	if opts.MaxPage < opts.DefaultPage {
		opts.MaxPage = opts.DefaultPage
	}
	s := &server{Deps: d, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(d.CORS.Middleware)
			r.Options("/news", s.handlePreflight)
			r.With(s.rateLimit).Get("/news", s.handleNews)
			r.With(s.rateLimit).Get("/archive", s.handleArchive)
		})
		r.Get("/cron", s.handleCron)
		r.Post("/cron", s.handleCron)
	})

	return r
}

func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retry := s.Limiter.Admit(ratelimit.ClientID(r), s.Now())
		if !ok {
			secs := int((retry + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Detail: "too many requests, try again later"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	s.CORS.Preflight(w.Header())
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleNews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	_, categoryPresent := q["category"]
	resp, err := s.Gateway.Latest(ctx, gateway.Query{
		Region:          q.Get("region"),
		Category:        q.Get("category"),
		CategoryPresent: categoryPresent,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.Archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "archive is not enabled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query: strings.TrimSpace(q.Get("q")),
		From:  clampInt(q.Get("from"), 0, 10_000),
		Size:  clampInt(q.Get("size"), s.opts.DefaultPage, s.opts.MaxPage),
		Start: parseTime(q.Get("start")),
		End:   parseTime(q.Get("end")),
	}
	if raw := q.Get("region"); raw != "" {
		region, err := validation.Region(raw)
		if err != nil {
			s.writeError(w, err)
			return
		}
		params.Region = string(region)
	}
	if _, ok := q["category"]; ok {
		category, err := validation.Category(q.Get("category"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		params.Category = string(category)
	}

	result, err := s.Archive.SearchArchive(ctx, params)
	if err != nil {
		s.Log.Error("search archive", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "archive search failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleCron(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "Unauthorized"})
		return
	}

	q := r.URL.Query()
	targets, err := ingest.Targets(q.Get("region"), q.Get("category"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The sweep outlives a dropped scheduler connection.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.RefreshTimeout)
	defer cancel()

	started := s.Now()
	results, err := s.Refresher.Sweep(ctx, targets)
	if err != nil {
		s.Log.Error("refresh failed", slog.Any("err", err), slog.Int("succeeded", len(results)))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}

	keys := make([]string, 0, len(results))
	for _, res := range results {
		keys = append(keys, res.Target.String())
	}
	s.Log.Info("refresh completed", slog.Any("targets", keys), slog.Duration("took", s.Now().Sub(started)))
	writeJSON(w, http.StatusOK, refreshResponse{
		Status:  "ok",
		Message: fmt.Sprintf("refreshed %s", strings.Join(keys, ", ")),
	})
}

// authorized requires a configured secret and an exact bearer match.
func (s *server) authorized(r *http.Request) bool {
	if s.opts.CronSecret == "" {
		return false
	}
	got := r.Header.Get("Authorization")
	want := "Bearer " + s.opts.CronSecret
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.Store != nil {
		if err := s.Store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "store: " + err.Error()})
			return
		}
	}
	if s.Archive != nil {
		if err := s.Archive.Health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "archive: " + err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps err onto a status. Internal details never reach the client.
func (s *server) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	detail := "internal error"
	var ae *apperr.Error
	if status < http.StatusInternalServerError && errors.As(err, &ae) && ae.Msg != "" {
		detail = ae.Msg
	}
	if status >= http.StatusInternalServerError {
		s.Log.Error("request failed", slog.Any("err", err))
	}
	writeJSON(w, status, errorResponse{Detail: detail})
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
