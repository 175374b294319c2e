// Package orchestrator runs one synchronization round: the preamble collections, the
// script of the requested mode, disappearance propagation and cached aggregates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/otel"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/aggregate"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/pool"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/reconcile"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

// ErrBusy is returned by Run while another run is in progress.
var ErrBusy = errors.New("a sync run is already in progress")

// State is the phase the orchestrator is in.
type State string

// States. A run moves idle -> fast|slow|full -> updating_cached -> idle.
const (
	StateIdle           State = "idle"
	StateFast           State = "fast"
	StateSlow           State = "slow"
	StateFull           State = "full"
	StateUpdatingCached State = "updating_cached"
)

// Summary is the outcome of one run.
type Summary struct {
	RunID      uuid.UUID
	Mode       Mode
	StartedAt  time.Time
	FinishedAt time.Time

	Totals pkgsync.Counts
	ByKind map[model.Kind]pkgsync.Counts

	// Propagated is how many children were marked disappeared after the script.
	Propagated int64
	Aggregates aggregate.Result

	// StepErrors lists the steps that could not complete. The run carries on without them.
	StepErrors []string
}

// Duration is how long the run took.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Orchestrator runs sync rounds one at a time.
type Orchestrator struct {
	source   upstream.Source
	store    store.Store
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	poolOpts []pool.Option
	calendar bool

	mu    sync.Mutex
	state State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the base logger. Every run derives its own with run_id and mode.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithTracer enables spans for runs, steps and reconciliations.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithPoolOptions adds options to the worker pool of every run.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(o *Orchestrator) {
		o.poolOpts = append(o.poolOpts, opts...)
	}
}

// WithCalendar derives Year and Period from the clock at the start of every run,
// for processes that outlive an academic period.
func WithCalendar() Option {
	return func(o *Orchestrator) {
		o.calendar = true
	}
}

// New creates an orchestrator.
func New(source upstream.Source, st store.Store, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source: source,
		store:  st,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) begin(mode Mode) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return ErrBusy
	}
	if o.calendar {
		cal := DefaultConfig(o.now())
		o.cfg.Year, o.cfg.Period = cal.Year, cal.Period
	}
	o.setState(State(mode))
	return nil
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setState(to)
}

func (o *Orchestrator) setState(to State) {
	o.logger.Info("Sync state changed", "from", o.state, "to", to)
	o.state = to
}

// Run performs one round of mode. Per-entity failures are counted in the summary; an
// error is only returned when the round could not finish.
func (o *Orchestrator) Run(ctx context.Context, mode Mode, flags Flags) (*Summary, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if err := o.begin(mode); err != nil {
		return nil, err
	}
	defer o.transition(StateIdle)

	r := o.newRun(mode, flags)
	ctx, span := otel.StartSpan(ctx, o.tracer, "sync.run", trace.WithAttributes(
		otel.AttrSyncMode.String(string(mode)),
		otel.AttrSyncRunID.String(r.summary.RunID.String()),
	))
	defer span.End()

	r.log.Info("Starting sync run", "year", o.cfg.Year, "period", o.cfg.Period)
	r.requestUpdates(ctx)
	r.preamble(ctx)
	switch mode {
	case ModeFast:
		r.fast(ctx)
	case ModeSlow:
		r.slow(ctx)
	case ModeFull:
		r.full(ctx)
	}
	if err := ctx.Err(); err != nil {
		otel.RecordError(span, err)
		return r.finish(), fmt.Errorf("sync run interrupted: %w", err)
	}

	marked, err := pkgsync.NewPropagator(o.store, r.log, r.tally).Propagate(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return r.finish(), err
	}
	for _, n := range marked {
		r.summary.Propagated += n
	}

	o.transition(StateUpdatingCached)
	res, err := aggregate.Apply(ctx, o.store, o.cfg.Year, r.log)
	if err != nil {
		otel.RecordError(span, err)
		return r.finish(), err
	}
	r.summary.Aggregates = res
	return r.finish(), nil
}

type run struct {
	o       *Orchestrator
	flags   Flags
	env     *reconcile.Env
	set     *reconcile.Set
	tally   *pkgsync.Tally
	log     *slog.Logger
	summary *Summary
}

func (o *Orchestrator) newRun(mode Mode, flags Flags) *run {
	summary := &Summary{
		RunID:     uuid.New(),
		Mode:      mode,
		StartedAt: o.now(),
	}
	log := o.logger.With("run_id", summary.RunID.String(), "mode", mode)
	tally := pkgsync.NewTally()

	opts := []pool.Option{
		pool.WithConcurrency(o.cfg.Concurrency),
		pool.WithCooldown(o.cfg.RetryCooldown),
		pool.WithLogger(log),
	}
	env := &reconcile.Env{
		Source: o.source,
		Store:  o.store,
		Pool:   pool.New(append(opts, o.poolOpts...)...),
		Tally:  tally,
		Logger: log,
		Tracer: o.tracer,
		Now:    o.now,
	}
	if mode == ModeFull {
		env.MinYear = o.cfg.Year - o.cfg.RecentYearMargin
	}
	return &run{
		o:       o,
		flags:   flags,
		env:     env,
		set:     reconcile.New(env),
		tally:   tally,
		log:     log,
		summary: summary,
	}
}

func (r *run) finish() *Summary {
	s := r.summary
	s.FinishedAt = r.o.now()
	s.Totals = r.tally.Total()
	s.ByKind = r.tally.ByKind()
	r.log.Info("Sync run finished",
		"duration", s.Duration(),
		"created", s.Totals.Created,
		"updated", s.Totals.Updated,
		"unchanged", s.Totals.Unchanged,
		"disappeared", s.Totals.Disappeared,
		"skipped", s.Totals.Skipped,
		"failed", s.Totals.Failed,
		"step_errors", len(s.StepErrors))
	return s
}

// step runs one part of a script. A failing step is logged and recorded, and the run goes on.
func (r *run) step(ctx context.Context, name string, fn func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	ctx, span := otel.StartSpan(ctx, r.o.tracer, "sync.step."+name)
	defer span.End()

	r.log.Debug("Starting sync step", "step", name)
	if err := fn(ctx); err != nil {
		otel.RecordError(span, err)
		r.log.Error("Sync step failed", "step", name, "error", err)
		r.summary.StepErrors = append(r.summary.StepErrors, fmt.Sprintf("%s: %v", name, err))
	}
}

// request asks upstream to refresh target. Failures are only logged.
func (r *run) request(ctx context.Context, target upstream.Update) {
	if err := r.o.source.RequestUpdate(ctx, target); err != nil {
		r.log.Warn("Upstream refresh request failed", "target", string(target), "error", err)
	}
}

func (r *run) collection(fn func(context.Context) (pkgsync.Partition, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	}
}

// each reconciles ids of kind through the run's pool and logs the outcome.
func (r *run) each(ctx context.Context, kind model.Kind, ids []int64, fn func(context.Context, int64) error) {
	r.logStats(kind, r.env.Each(ctx, kind, ids, fn))
}

// eachInOrder is each with a single worker.
func (r *run) eachInOrder(ctx context.Context, kind model.Kind, ids []int64, fn func(context.Context, int64) error) {
	r.logStats(kind, r.env.EachInOrder(ctx, kind, ids, fn))
}

func (r *run) logStats(kind model.Kind, stats pool.Stats) {
	r.log.Info("Reconciled entities", "kind", kind,
		"processed", stats.Processed, "succeeded", stats.Succeeded, "failed", stats.Failed)
}
