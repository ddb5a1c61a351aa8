// Package resolver replaces redirect and placeholder source URLs in a record
// with canonical article URLs, using either the model's grounding citations or
// active network resolution, optionally followed by a link existence check.
package resolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DeafMist/news-digest/internal/models"
)

// Mode selects the resolution strategy for a deployment.
type Mode string

const (
	ModeGrounding Mode = "grounding"
	ModeActive    Mode = "active"
)

// Config tunes the resolver. Zero values fall back to the defaults below.
type Config struct {
	Mode           Mode
	RedirectHosts  []string
	RequestTimeout time.Duration
	Budget         time.Duration
	Workers        int
	ValidateLinks  bool
	HTMLFallback   bool
}

const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultBudget         = 20 * time.Second
	DefaultWorkers        = 5
)

// Resolver applies the configured strategy to records.
type Resolver struct {
	mode    Mode
	hosts   Hosts
	active  *Active
	checker *LinkChecker
	log     *slog.Logger
}

// Report summarizes one resolution pass.
type Report struct {
	Outcomes []Outcome
}

// Count returns how many outcomes ended with action.
func (r Report) Count(action Action) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Action == action {
			n++
		}
	}
	return n
}

// New builds a resolver. A nil client gets a plain http.Client that follows redirects.
func New(cfg Config, client *http.Client, log *slog.Logger) (*Resolver, error) {
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeGrounding
	case ModeGrounding, ModeActive:
	default:
		return nil, fmt.Errorf("unknown resolver mode %q", cfg.Mode)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	hosts := NewHosts(cfg.RedirectHosts)
	r := &Resolver{mode: cfg.Mode, hosts: hosts, log: log}
	if cfg.Mode == ModeActive {
		r.active = &Active{
			client:         client,
			hosts:          hosts,
			requestTimeout: cfg.RequestTimeout,
			budget:         cfg.Budget,
			workers:        cfg.Workers,
			htmlFallback:   cfg.HTMLFallback,
		}
	}
	if cfg.ValidateLinks {
		r.checker = &LinkChecker{
			client:         client,
			requestTimeout: cfg.RequestTimeout,
			budget:         cfg.Budget,
			workers:        cfg.Workers,
		}
	}
	return r, nil
}

// Mode reports the configured strategy.
func (r *Resolver) Mode() Mode { return r.mode }

// Hosts exposes the redirect-host matcher.
func (r *Resolver) Hosts() Hosts { return r.hosts }

// Resolve rewrites rec's item URLs in place. It never fails: per-item problems
// are logged and reported, and the original value is kept.
func (r *Resolver) Resolve(ctx context.Context, rec *models.NewsRecord, grounding []models.GroundingURL) Report {
	var report Report

	switch r.mode {
	case ModeActive:
		report.Outcomes = append(report.Outcomes, r.active.Resolve(ctx, rec.Items)...)
	default:
		report.Outcomes = append(report.Outcomes, ApplyGrounding(rec.Items, grounding, r.hosts)...)
	}

	if r.checker != nil {
		report.Outcomes = append(report.Outcomes, r.checker.Check(ctx, rec.Items)...)
	}

	for _, o := range report.Outcomes {
		attrs := []any{
			slog.Int("item", o.Index),
			slog.String("action", string(o.Action)),
			slog.String("before", o.Before),
			slog.String("after", o.After),
		}
		if o.Err != nil {
			r.log.Warn("source url resolution", append(attrs, slog.Any("err", o.Err))...)
			continue
		}
		r.log.Debug("source url resolution", attrs...)
	}
	return report
}
