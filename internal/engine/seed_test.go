package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/reconcile"
)

func TestDemoSeeder_Deterministic(t *testing.T) {
	first := DemoSeeder{RandSeed: 42}.Seed("alice", t0)
	second := DemoSeeder{RandSeed: 42}.Seed("alice", t0)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("seeded records differ (-first +second):\n%s", diff)
	}

	byOwner := DemoSeeder{}.Seed("alice", t0)
	if diff := cmp.Diff(byOwner, DemoSeeder{}.Seed("alice", t0)); diff != "" {
		t.Errorf("owner-derived seed is not stable:\n%s", diff)
	}
}

func TestDemoSeeder_Shape(t *testing.T) {
	recs := DemoSeeder{RandSeed: 3}.Seed("alice", t0)
	require.Len(t, recs, 4)

	alerts := 0
	for i, r := range recs {
		assert.True(t, reconcile.IsDemo(r), "id %q", r.ID)
		assert.Equal(t, "alice", r.Owner)
		assert.NotEmpty(t, r.Name)
		require.NoError(t, r.Validate())

		overdue := r.Status(t0).Overdue()
		assert.Equal(t, i%3 == 2, overdue, "record %d overdue", i)
		if r.ManualAlert.Active {
			alerts++
			assert.True(t, r.Roles.Dependent)
		}
	}
	assert.Equal(t, 1, alerts)

	assert.Equal(t, contact.Roles{Responder: true}, recs[0].Roles)
	assert.Equal(t, contact.Roles{Dependent: true}, recs[1].Roles)
	assert.Equal(t, contact.Roles{Responder: true, Dependent: true}, recs[2].Roles)
}

func TestDemoSeeder_Count(t *testing.T) {
	assert.Len(t, DemoSeeder{Count: 7, RandSeed: 1}.Seed("bob", t0), 7)
}
