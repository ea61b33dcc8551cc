package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/mocks"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func startStream(t *testing.T, w *world, e *Engine) {
	t.Helper()
	require.NoError(t, e.StartStream(context.Background()))
	require.Eventually(t, func() bool {
		return w.feed.Subscribers(e.Owner()) == 1
	}, waitFor, tick, "subscriber never registered")
}

func TestStream_AppliesChanges(t *testing.T) {
	w := newWorld(t, "alice", "bob")
	a, b := pair(t, w)
	startStream(t, w, a)
	assert.True(t, a.Streaming())

	require.NoError(t, b.SendPing(context.Background(), "alice"))

	require.Eventually(t, func() bool {
		return peek(a, "bob").IncomingPing.Active
	}, waitFor, tick)
}

func TestStream_AppliesDeletes(t *testing.T) {
	w := newWorld(t, "alice", "bob")
	a, b := pair(t, w)
	startStream(t, w, a)

	require.NoError(t, b.RemoveContact(context.Background(), "alice"))

	require.Eventually(t, func() bool {
		_, ok := a.Snapshot().Get("bob")
		return !ok
	}, waitFor, tick)
}

func TestStream_StaleChangeKeepsLocalClear(t *testing.T) {
	w := newWorld(t, "alice", "bob")
	a, b := pair(t, w)
	ctx := context.Background()

	require.NoError(t, b.SendPing(ctx, "alice"))
	refresh(t, a)
	w.clk.Advance(time.Minute)
	require.NoError(t, a.ClearPing(ctx, "bob"))

	startStream(t, w, a)

	// The server replays the record as it was before it saw the clear,
	// with one unrelated field changed.
	stale := remoteRecord(t, w, "alice", "bob")
	stale.IncomingPing = contact.Raised(t0)
	stale.Name = "Bobby"
	require.NoError(t, w.feed.Publish(ctx, "alice", contact.Change{Kind: contact.ChangeUpsert, Record: stale}))

	require.Eventually(t, func() bool {
		return peek(a, "bob").Name == "Bobby"
	}, waitFor, tick)
	r := mustGet(t, a, "bob")
	assert.False(t, r.IncomingPing.Active, "stale remote set must not undo the clear")
	assert.Equal(t, t0.Add(time.Minute), r.IncomingPing.ClearedAt)

	// A ping raised after the clear is new.
	fresh := stale
	fresh.IncomingPing = contact.Raised(t0.Add(2 * time.Minute))
	require.NoError(t, w.feed.Publish(ctx, "alice", contact.Change{Kind: contact.ChangeUpsert, Record: fresh}))
	require.Eventually(t, func() bool {
		return peek(a, "bob").IncomingPing.Active
	}, waitFor, tick)
}

func TestStream_IgnoresForeignChanges(t *testing.T) {
	w := newWorld(t, "alice", "bob")
	a, _ := pair(t, w)
	startStream(t, w, a)
	version := a.Snapshot().Version

	foreign := contact.Record{Owner: "mallory", ID: "bob", Name: "x"}
	require.NoError(t, w.feed.Publish(context.Background(), "alice", contact.Change{Kind: contact.ChangeUpsert, Record: foreign}))
	marker := remoteRecord(t, w, "alice", "bob")
	marker.Note = "marker"
	require.NoError(t, w.feed.Publish(context.Background(), "alice", contact.Change{Kind: contact.ChangeUpsert, Record: marker}))

	require.Eventually(t, func() bool {
		return peek(a, "bob").Note == "marker"
	}, waitFor, tick)
	assert.Equal(t, version+1, a.Snapshot().Version, "only the owner's change bumps the version")
}

func TestStream_ResubscribesAndRefreshesAfterDisconnect(t *testing.T) {
	w := newWorld(t, "alice", "bob")
	a, _ := pair(t, w)
	startStream(t, w, a)
	fetches := w.rem.Calls(mocks.OpFetchAll)
	subscribes := w.rem.Calls(mocks.OpSubscribe)

	// A change made while disconnected is picked up by the catch-up refresh.
	w.feed.Disconnect("alice")
	_, err := w.svc.Update(context.Background(), contact.Key{Owner: "alice", Counterpart: "bob"},
		contact.Patch{Note: ptr("while offline")})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return w.rem.Calls(mocks.OpSubscribe) > subscribes &&
			w.rem.Calls(mocks.OpFetchAll) > fetches &&
			w.feed.Subscribers("alice") == 1
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return peek(a, "bob").Note == "while offline"
	}, waitFor, tick)
	assert.True(t, a.Streaming())
}

func TestStream_RetriesFailedSubscribe(t *testing.T) {
	w := newWorld(t, "alice")
	a, _ := w.engine(t, "alice")
	w.rem.FailOnce(mocks.OpSubscribe, context.DeadlineExceeded)

	require.NoError(t, a.StartStream(context.Background()))
	require.Eventually(t, func() bool {
		return w.feed.Subscribers("alice") == 1
	}, waitFor, tick)
	assert.GreaterOrEqual(t, w.rem.Calls(mocks.OpSubscribe), 2)
}

func TestStream_RestartKeepsOneConsumer(t *testing.T) {
	w := newWorld(t, "alice")
	a, _ := w.engine(t, "alice")

	startStream(t, w, a)
	startStream(t, w, a)
	startStream(t, w, a)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, w.feed.Subscribers("alice"))
}

func TestStream_StopStream(t *testing.T) {
	w := newWorld(t, "alice")
	a, _ := w.engine(t, "alice")
	startStream(t, w, a)

	a.StopStream()
	assert.False(t, a.Streaming())
	require.Eventually(t, func() bool {
		return w.feed.Subscribers("alice") == 0
	}, waitFor, tick)
}

func TestStream_StopCancelsConsumer(t *testing.T) {
	w := newWorld(t, "alice")
	a, _ := w.engine(t, "alice")
	startStream(t, w, a)

	a.Stop()
	assert.False(t, a.Streaming())
	require.Eventually(t, func() bool {
		return w.feed.Subscribers("alice") == 0
	}, waitFor, tick)
}

func TestStream_CallerContextEndsConsumer(t *testing.T) {
	w := newWorld(t, "alice")
	a, _ := w.engine(t, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.StartStream(ctx))
	require.Eventually(t, func() bool {
		return w.feed.Subscribers("alice") == 1
	}, waitFor, tick)

	cancel()
	require.Eventually(t, func() bool {
		return !a.Streaming() && w.feed.Subscribers("alice") == 0
	}, waitFor, tick)
}
