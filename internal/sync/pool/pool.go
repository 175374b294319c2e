// Package pool runs one function over a set of items with bounded concurrency and
// per-item retries.
package pool

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

const (
	// DefaultConcurrency is the number of workers when none is configured.
	DefaultConcurrency = 8

	// DefaultMaxTries bounds the invocations of one item, retries included.
	DefaultMaxTries = 6

	// DefaultFailureThreshold is the number of network failures in a row a worker
	// tolerates before pausing.
	DefaultFailureThreshold = 5

	// DefaultCooldown is how long a worker pauses once over the failure threshold.
	DefaultCooldown = 30 * time.Second
)

// Stats counts what happened to the items of one Run.
type Stats struct {
	Processed int
	Succeeded int
	Failed    int
}

// Pool holds the run parameters. It is immutable and safe to share.
type Pool struct {
	concurrency      int
	maxTries         uint
	failureThreshold int
	cooldown         time.Duration
	newBackOff       func() backoff.BackOff
	retryable        func(error) bool
	logger           *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithConcurrency sets the number of workers. Values below one mean one.
func WithConcurrency(n int) Option {
	return func(p *Pool) {
		p.concurrency = max(n, 1)
	}
}

// WithMaxTries sets how many times an item may be invoked.
func WithMaxTries(n uint) Option {
	return func(p *Pool) {
		p.maxTries = n
	}
}

// WithFailureThreshold sets how many network failures in a row a worker tolerates.
func WithFailureThreshold(n int) Option {
	return func(p *Pool) {
		p.failureThreshold = n
	}
}

// WithCooldown sets the pause of a worker that crossed the failure threshold.
func WithCooldown(d time.Duration) Option {
	return func(p *Pool) {
		p.cooldown = d
	}
}

// WithBackOff sets the factory of the delay policy between tries of one item.
// A fresh policy is built for every item.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(p *Pool) {
		p.newBackOff = fn
	}
}

// WithRetryable decides which errors are retried. By default only upstream network
// errors are.
func WithRetryable(fn func(error) bool) Option {
	return func(p *Pool) {
		p.retryable = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// New creates a pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		concurrency:      DefaultConcurrency,
		maxTries:         DefaultMaxTries,
		failureThreshold: DefaultFailureThreshold,
		cooldown:         DefaultCooldown,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		retryable: upstream.IsNetwork,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sequential returns a copy of p with a single worker.
func (p *Pool) Sequential() *Pool {
	c := *p
	c.concurrency = 1
	return &c
}

// Concurrency returns the number of workers.
func (p *Pool) Concurrency() int {
	return p.concurrency
}

// Run calls fn once per distinct item and returns when every item was handled.
// A failing item never stops the others. Run itself never fails: errors are logged
// and counted.
func Run[T comparable](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) error) Stats {
	queue := dedupe(items)
	if len(queue) == 0 {
		return Stats{}
	}

	work := make(chan T, len(queue))
	for _, item := range queue {
		work <- item
	}
	close(work)

	var succeeded, failed atomic.Int64
	// The group context is not used: a failed item must not cancel its siblings.
	var g errgroup.Group
	for range min(p.concurrency, len(queue)) {
		g.Go(func() error {
			b := &breaker{p: p}
			for item := range work {
				if err := attempt(ctx, p, b, item, fn); err != nil {
					failed.Add(1)
					p.logger.Error("Abandoning item", "item", item, "error", err)
					continue
				}
				succeeded.Add(1)
			}
			return nil
		})
	}
	//nolint:errcheck // workers never return an error
	g.Wait()

	return Stats{
		Processed: len(queue),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}
}

// attempt invokes fn on item until it succeeds, fails permanently or runs out of tries.
func attempt[T comparable](ctx context.Context, p *Pool, b *breaker, item T, fn func(context.Context, T) error) error {
	tries := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		tries++
		err := fn(ctx, item)
		b.record(ctx, err)
		if err != nil && !p.retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(p.maxTries),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Debug("Retrying item", "item", item, "try", tries, "next", next, "error", err)
		}),
	)
	return err
}

// breaker counts the network failures of one worker in a row, across items, and pauses
// the worker once they exceed the threshold. Other errors leave the count alone.
type breaker struct {
	p           *Pool
	consecutive int
}

func (b *breaker) record(ctx context.Context, err error) {
	switch {
	case err == nil:
		b.consecutive = 0
	case b.p.retryable(err):
		b.consecutive++
		if b.consecutive > b.p.failureThreshold {
			b.p.logger.Warn("Too many consecutive failures, pausing worker",
				"failures", b.consecutive, "cooldown", b.p.cooldown)
			sleep(ctx, b.p.cooldown)
			b.consecutive = 0
		}
	}
}

func dedupe[T comparable](items []T) []T {
	seen := make(map[T]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
