package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tojkuv/LifeSignal-sub007/internal/clock"
	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/mocks"
	"github.com/tojkuv/LifeSignal-sub007/internal/remote"
)

var t0 = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

// world is a shared in-memory remote with a manual clock. Every engine
// created from it talks to the same remote through a failure-injecting
// wrapper.
type world struct {
	clk  *clock.Manual
	svc  *remote.Service
	feed *remote.MemoryFeed
	rem  *mocks.Remote
}

func newWorld(t *testing.T, users ...string) *world {
	t.Helper()
	clk := clock.NewManual(t0)
	svc, feed := remote.NewMemory(remote.WithClock(clk))
	for _, id := range users {
		require.NoError(t, svc.PutProfile(context.Background(), contact.Profile{
			ID:              id,
			Name:            id,
			CheckInInterval: day,
		}))
	}
	return &world{clk: clk, svc: svc, feed: feed, rem: mocks.NewRemote(svc)}
}

// engine starts an engine for owner backed by a fresh mock store.
func (w *world) engine(t *testing.T, owner string, opts ...Option) (*Engine, *mocks.Store) {
	t.Helper()
	st := mocks.NewStore()
	return w.engineWith(t, owner, st, opts...), st
}

func (w *world) engineWith(t *testing.T, owner string, st *mocks.Store, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithClock(w.clk),
		WithIDGenerator(NewFixedGenerator(owner)),
		WithIntentLog(st),
		WithRequestTimeout(time.Second),
		WithResubscribeInterval(10 * time.Millisecond),
	}
	e := New(owner, w.rem, st, append(base, opts...)...)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)
	return e
}

// link creates a relationship through owner's engine.
func link(t *testing.T, e *Engine, counterpart string, roles contact.Roles) contact.Record {
	t.Helper()
	rec, err := e.AddContact(context.Background(), counterpart, roles)
	require.NoError(t, err)
	return rec
}

func refresh(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.Refresh(context.Background()))
}

func remoteRecord(t *testing.T, w *world, owner, counterpart string) contact.Record {
	t.Helper()
	r, err := w.svc.Get(context.Background(), contact.Key{Owner: owner, Counterpart: counterpart})
	require.NoError(t, err)
	return r
}

func mustGet(t *testing.T, e *Engine, id string) contact.Record {
	t.Helper()
	r, ok := e.Snapshot().Get(id)
	require.True(t, ok, "record %q not in snapshot", id)
	return r
}

// peek is mustGet for polling conditions: a missing record reads as zero.
func peek(e *Engine, id string) contact.Record {
	r, _ := e.Snapshot().Get(id)
	return r
}
