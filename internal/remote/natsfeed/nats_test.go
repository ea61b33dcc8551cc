package natsfeed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "alice", subjectToken("alice"))
	assert.Equal(t, "a_b_c_d", subjectToken("a.b*c>d"))
	assert.Equal(t, "+15550100", subjectToken("+15550100"))

	f := newFeed("", nil)
	assert.Equal(t, "lifesignal.contacts.user_1", f.Subject("user.1"))
}

func TestNATS_PublishSubscribe(t *testing.T) {
	url := os.Getenv("LIFESIGNAL_TEST_NATS_URL")
	if url == "" {
		t.Skip("LIFESIGNAL_TEST_NATS_URL not set")
	}

	feed, err := Connect(url, "lifesignal-test."+uuid.NewString(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = feed.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := feed.Subscribe(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, feed.nc.Flush())

	sent := contact.Change{Kind: contact.ChangeUpsert, Record: contact.Record{Owner: "alice", ID: "bob", Name: "Bob"}}
	require.NoError(t, feed.Publish(ctx, "alice", sent))

	select {
	case got := <-changes:
		assert.Equal(t, sent, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change received")
	}

	cancel()
	select {
	case _, ok := <-changes:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
