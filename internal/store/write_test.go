package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/ports"
)

func TestLoad_EmptyForUnknownOwner(t *testing.T) {
	s := createTestStore(t)

	snap, err := s.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.Owner)
	assert.Zero(t, snap.Version)
	assert.Empty(t, snap.Contacts)
	assert.NotNil(t, snap.Contacts)
}

func TestLoad_RequiresOwner(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Load(context.Background(), "")
	assert.True(t, contact.IsCode(err, contact.CodeUnauthenticated))
	assert.True(t, contact.IsCode(s.Save(context.Background(), contact.Snapshot{}), contact.CodeUnauthenticated))
}

func TestSaveLoad_PreservesSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	bob := createTestRecord("alice", "bob")
	bob.Roles = contact.Roles{Responder: true}
	bob.LastCheckIn = testTime.Add(-time.Hour)
	bob.IncomingPing = contact.Raised(testTime)
	bob.OutgoingPing = contact.Cleared(testTime.Add(time.Minute))
	bob.Name = "Bob <&> Builder"

	carol := createTestRecord("alice", "carol")
	carol.Roles = contact.Roles{Dependent: true}
	carol.Pending = true

	want := createTestSnapshot("alice", 4, bob, carol)
	want.Self.ManualAlert = contact.Raised(testTime)

	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSave_ReplacesWholeSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, createTestSnapshot("alice", 1,
		createTestRecord("alice", "bob"),
		createTestRecord("alice", "carol"),
	)))
	require.NoError(t, s.Save(ctx, createTestSnapshot("alice", 2,
		createTestRecord("alice", "dave"),
	)))

	got, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Len(t, got.Contacts, 1)
	assert.Contains(t, got.Contacts, "dave")
}

func TestSave_OwnersAreIsolated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, createTestSnapshot("alice", 1, createTestRecord("alice", "bob"))))
	require.NoError(t, s.Save(ctx, createTestSnapshot("bob", 1, createTestRecord("bob", "alice"))))
	require.NoError(t, s.Save(ctx, createTestSnapshot("alice", 2)))

	bobSnap, err := s.Load(ctx, "bob")
	require.NoError(t, err)
	assert.Contains(t, bobSnap.Contacts, "alice")

	owners, err := s.Owners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, owners)
}

func TestSave_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Save(ctx, createTestSnapshot("alice", 9, createTestRecord("alice", "bob"))))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.Version)
	assert.Contains(t, got.Contacts, "bob")
}

func TestSave_CancelledContextLeavesPreviousSnapshot(t *testing.T) {
	s := createTestStore(t)

	require.NoError(t, s.Save(context.Background(), createTestSnapshot("alice", 1, createTestRecord("alice", "bob"))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Save(ctx, createTestSnapshot("alice", 2, createTestRecord("alice", "carol")))
	require.Error(t, err)

	got, err := s.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Contains(t, got.Contacts, "bob")
	assert.NotContains(t, got.Contacts, "carol")
}

func TestIntents_Lifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	pending, err := s.PendingIntents(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.NotNil(t, pending)

	first := ports.Intent{ID: "i-1", Owner: "alice", Counterpart: "bob", Roles: contact.Roles{Responder: true}, CreatedAt: testTime}
	second := ports.Intent{ID: "i-2", Owner: "alice", Counterpart: "carol", CreatedAt: testTime.Add(time.Second)}
	other := ports.Intent{ID: "i-3", Owner: "bob", Counterpart: "alice", CreatedAt: testTime}

	require.NoError(t, s.BeginIntent(ctx, second))
	require.NoError(t, s.BeginIntent(ctx, first))
	require.NoError(t, s.BeginIntent(ctx, first), "duplicate begin is idempotent")
	require.NoError(t, s.BeginIntent(ctx, other))

	pending, err = s.PendingIntents(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []ports.Intent{first, second}, pending)

	require.NoError(t, s.CompleteIntent(ctx, "i-1"))
	require.NoError(t, s.CompleteIntent(ctx, "i-unknown"))

	pending, err = s.PendingIntents(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []ports.Intent{second}, pending)
}
