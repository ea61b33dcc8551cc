package mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/remote"
)

func setupRemote(t *testing.T) *Remote {
	t.Helper()
	svc, _ := remote.NewMemory()
	ctx := context.Background()
	require.NoError(t, svc.PutProfile(ctx, contact.Profile{ID: "alice", CheckInInterval: time.Hour}))
	require.NoError(t, svc.PutProfile(ctx, contact.Profile{ID: "bob", CheckInInterval: time.Hour}))
	return NewRemote(svc)
}

func TestRemote_FailScopes(t *testing.T) {
	m := setupRemote(t)
	ctx := context.Background()
	boom := errors.New("boom")

	m.FailOnce(OpCreate, boom)
	_, err := m.Create(ctx, "alice", "bob", contact.Roles{})
	assert.ErrorIs(t, err, boom)

	_, err = m.Create(ctx, "alice", "bob", contact.Roles{})
	require.NoError(t, err)

	m.FailFor(OpCreate, "bob", boom)
	_, err = m.Create(ctx, "bob", "alice", contact.Roles{})
	assert.ErrorIs(t, err, boom)

	m.Fail(OpFetchAll, boom)
	_, err = m.FetchAll(ctx, "alice")
	assert.ErrorIs(t, err, boom)

	m.Reset()
	recs, err := m.FetchAll(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	assert.Equal(t, 3, m.Calls(OpCreate))
	assert.Equal(t, 2, m.Calls(OpFetchAll))
}

func TestRemote_HoldRespectsContext(t *testing.T) {
	m := setupRemote(t)
	release := m.Hold(OpFetchAll)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.FetchAll(ctx, "alice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_FailSaveKeepsPrevious(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	snap := contact.NewSnapshot("alice")
	snap.Version = 1
	require.NoError(t, s.Save(ctx, snap))

	s.FailSave(errors.New("disk full"))
	snap.Version = 2
	assert.Error(t, s.Save(ctx, snap))

	got, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 1, s.Saves())
}
