package redisremote

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/remote"
)

// setupRedis connects to LIFESIGNAL_TEST_REDIS_ADDR and returns a service
// whose keys live under a unique prefix.
func setupRedis(t *testing.T) *remote.Service {
	t.Helper()
	addr := os.Getenv("LIFESIGNAL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LIFESIGNAL_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Connect(ctx, Config{Addr: addr})
	require.NoError(t, err)

	prefix := fmt.Sprintf("lifesignal-test-%s:", uuid.NewString())
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		client.Close()
	})

	return remote.New(NewRepository(client, prefix), NewFeed(client, prefix, nil))
}

func TestRedis_CreateUpdateRemove(t *testing.T) {
	svc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, svc.PutProfile(ctx, contact.Profile{ID: "bob", Name: "Bob", CheckInInterval: time.Hour}))

	rec, err := svc.Create(ctx, "alice", "bob", contact.Roles{Responder: true})
	require.NoError(t, err)
	assert.Equal(t, "Bob", rec.Name)

	_, err = svc.Create(ctx, "alice", "bob", contact.Roles{})
	assert.True(t, contact.IsAlreadyExists(err))

	key := contact.Key{Owner: "alice", Counterpart: "bob"}
	ping := contact.Raised(time.Now().UTC())
	updated, err := svc.Update(ctx, key, contact.Patch{OutgoingPing: &ping})
	require.NoError(t, err)
	assert.True(t, updated.OutgoingPing.Active)

	all, err := svc.FetchAll(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].OutgoingPing.Active)

	require.NoError(t, svc.Remove(ctx, key))
	_, err = svc.Get(ctx, key)
	assert.True(t, contact.IsNotFound(err))
}

func TestRedis_FeedDeliversChanges(t *testing.T) {
	svc := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.PutProfile(ctx, contact.Profile{ID: "bob", Name: "Bob", CheckInInterval: time.Hour}))
	changes, err := svc.Subscribe(ctx, "alice")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "alice", "bob", contact.Roles{})
	require.NoError(t, err)

	select {
	case ch := <-changes:
		assert.Equal(t, contact.ChangeUpsert, ch.Kind)
		assert.Equal(t, "bob", ch.Record.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("no change received")
	}
}
