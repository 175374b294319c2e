package reconcile

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"

	"github.com/NovaUNL/Supernova-sub000/internal/httpclient"
	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	"github.com/NovaUNL/Supernova-sub000/internal/store/memory"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/pool"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream/upstreamtest"
)

type fixture struct {
	upstream *upstreamtest.Server
	store    *memory.Store
	env      *Env
	set      *Set
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		upstream: upstreamtest.NewServer(t),
		store:    memory.New(),
		now:      time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC),
	}

	logger := slog.New(slog.DiscardHandler)
	f.env = &Env{
		Source: upstream.NewClient(httpclient.NewDefaultClient(5*time.Second), f.upstream.URL, upstream.WithLogger(logger)),
		Store:  f.store,
		Pool: pool.New(
			pool.WithConcurrency(4),
			pool.WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(0) }),
			pool.WithCooldown(0),
			pool.WithLogger(logger),
		),
		Tally:  pkgsync.NewTally(),
		Logger: logger,
		Now:    func() time.Time { return f.now },
	}
	f.set = New(f.env)
	return f
}

func (f *fixture) ctx() context.Context {
	return context.Background()
}

func seed[T model.Cloner[T]](t *testing.T, repo store.Repository[T], entity T) T {
	t.Helper()
	stored, err := memory.Seed(repo, entity)
	require.NoError(t, err)
	return stored
}

func external(id int64) model.Importable {
	return model.Importable{ExternalID: &id}
}

func (f *fixture) counts(kind model.Kind) pkgsync.Counts {
	return f.env.Tally.ByKind()[kind]
}

func mustFind[T model.Entity](t *testing.T, repo store.Repository[T], extID int64) T {
	t.Helper()
	e, found, err := repo.ByExternalID(context.Background(), extID)
	require.NoError(t, err)
	require.True(t, found, "external id %d is not stored", extID)
	return e
}
