// Package ingest runs the fetch, extract, resolve and persist pipeline for
// one digest key and sweeps it over several keys.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/DeafMist/news-digest/internal/events"
	"github.com/DeafMist/news-digest/internal/extract"
	"github.com/DeafMist/news-digest/internal/llm"
	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/prompt"
	"github.com/DeafMist/news-digest/internal/resolver"
	"github.com/DeafMist/news-digest/internal/validation"
)

// Saver persists a record and returns its id.
type Saver interface {
	Save(ctx context.Context, rec models.NewsRecord) (int64, error)
}

// Notifier receives a short message for every failed target.
type Notifier interface {
	Notify(msg string)
}

// Deps wires the orchestrator. Events and Notifier are optional.
type Deps struct {
	Prompts   *prompt.Builder
	Generator llm.Generator
	Resolver  *resolver.Resolver
	Store     Saver
	Events    events.Publisher
	Notifier  Notifier
	Log       *slog.Logger
	Now       func() time.Time
}

// Orchestrator produces and stores digests.
type Orchestrator struct {
	prompts   *prompt.Builder
	generator llm.Generator
	resolver  *resolver.Resolver
	store     Saver
	events    events.Publisher
	notifier  Notifier
	log       *slog.Logger
	now       func() time.Time
}

func New(d Deps) (*Orchestrator, error) {
	if d.Generator == nil || d.Resolver == nil || d.Store == nil {
		return nil, errors.New("ingest: generator, resolver and store are required")
	}
	if d.Prompts == nil {
		d.Prompts = prompt.NewBuilder(nil, "")
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Log == nil {
		d.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Orchestrator{
		prompts:   d.Prompts,
		generator: d.Generator,
		resolver:  d.Resolver,
		store:     d.Store,
		events:    d.Events,
		notifier:  d.Notifier,
		log:       d.Log.With("component", "ingest"),
		now:       d.Now,
	}, nil
}

// Result describes one successful run.
type Result struct {
	Target   Target
	RecordID int64
	Items    int
	Sources  int
	Strategy string
	Report   resolver.Report
	Findings []string
}

// Run performs one fetch-and-persist for t. A model or extraction failure
// aborts the run before anything is stored; URL resolution problems never do.
func (o *Orchestrator) Run(ctx context.Context, t Target) (Result, error) {
	log := o.log.With(slog.String("target", t.String()))
	started := o.now()

	p, err := o.prompts.Build(t.Region, t.Category)
	if err != nil {
		return Result{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := o.generator.Generate(ctx, p)
	if err != nil {
		return Result{}, fmt.Errorf("generate %s: %w", t, err)
	}

	ex, err := extract.Extract(resp.Text)
	if err != nil {
		log.Error("extract record", slog.Any("err", err), slog.Int("response_len", len(resp.Text)))
		return Result{}, fmt.Errorf("extract %s: %w", t, err)
	}

	rec := ex.Record
	rec.Region = t.Region
	rec.Category = t.Category

	report := o.resolver.Resolve(ctx, &rec, resp.Grounding)

	findings := validation.CheckRecord(rec)
	for _, f := range findings {
		log.Warn("record check", slog.String("finding", f))
	}

	rec.CreatedAt = o.now()
	id, err := o.store.Save(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("save %s: %w", t, err)
	}

	sources := rec.Sources()
	o.publish(ctx, log, id, rec, sources)

	log.Info("digest stored",
		slog.Int64("id", id),
		slog.String("strategy", ex.Strategy),
		slog.Int("items", len(rec.Items)),
		slog.Int("sources", len(sources)),
		slog.Int("grounding", len(resp.Grounding)),
		slog.Duration("took", o.now().Sub(started)),
	)

	return Result{
		Target:   t,
		RecordID: id,
		Items:    len(rec.Items),
		Sources:  len(sources),
		Strategy: ex.Strategy,
		Report:   report,
		Findings: findings,
	}, nil
}

func (o *Orchestrator) publish(ctx context.Context, log *slog.Logger, id int64, rec models.NewsRecord, sources []models.SourceEntry) {
	row, err := rec.ToStored()
	if err != nil {
		log.Warn("build event", slog.Any("err", err))
		return
	}
	row.ID = id
	if err := o.events.Publish(ctx, events.RecordCreated(row, sources, o.now())); err != nil {
		log.Warn("publish record event", slog.Int64("id", id), slog.Any("err", err))
	}
}

// TargetError is a failed target inside a sweep.
type TargetError struct {
	Target Target
	Err    error
}

// SweepError lists every failed target of a sweep.
type SweepError struct {
	Failed []TargetError
}

func (e *SweepError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Target, f.Err))
	}
	return "refresh failed for " + strings.Join(parts, "; ")
}

func (e *SweepError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}

// Keys returns the failed target keys in sweep order.
func (e *SweepError) Keys() []string {
	keys := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		keys = append(keys, f.Target.String())
	}
	return keys
}

// Sweep runs targets one after another. A failing target does not stop the
// rest; the returned error is a *SweepError when at least one failed.
func (o *Orchestrator) Sweep(ctx context.Context, targets []Target) ([]Result, error) {
	results := make([]Result, 0, len(targets))
	var failed []TargetError

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			failed = append(failed, TargetError{Target: t, Err: err})
			continue
		}
		res, err := o.Run(ctx, t)
		if err != nil {
			o.log.Error("refresh target failed", slog.String("target", t.String()), slog.Any("err", err))
			o.notify(fmt.Sprintf("news-digest: refresh %s failed: %v", t, err))
			failed = append(failed, TargetError{Target: t, Err: err})
			continue
		}
		results = append(results, res)
	}

	if len(failed) > 0 {
		return results, &SweepError{Failed: failed}
	}
	return results, nil
}

func (o *Orchestrator) notify(msg string) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(msg)
}
