// Package ports defines the boundaries between the sync engine and the
// systems it talks to: the remote contact service and the local store.
//
// Implementations are chosen once at startup (see internal/config and
// cmd/lifesignal). The engine depends only on these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

// RemoteContactService is the authoritative store of relationship records
// and user profiles, shared by all users.
//
// Every method returns typed *contact.Error values: NOT_FOUND for missing
// records or users, ALREADY_EXISTS for duplicate creates, UNAUTHENTICATED
// for an empty owner and TRANSIENT_NETWORK for transport failures.
type RemoteContactService interface {
	// FetchAll returns every record owned by owner.
	FetchAll(ctx context.Context, owner string) ([]contact.Record, error)

	// Get returns one record.
	Get(ctx context.Context, key contact.Key) (contact.Record, error)

	// Create inserts owner's record about counterpart, copying the
	// counterpart's descriptive fields and schedule from its profile.
	Create(ctx context.Context, owner, counterpart string, roles contact.Roles) (contact.Record, error)

	// Update applies patch to an existing record and returns the result.
	Update(ctx context.Context, key contact.Key, patch contact.Patch) (contact.Record, error)

	// Remove deletes one record.
	Remove(ctx context.Context, key contact.Key) error

	// Subscribe streams changes to owner's records until ctx is cancelled
	// or the connection drops; either way the channel is closed.
	Subscribe(ctx context.Context, owner string) (<-chan contact.Change, error)

	// GetProfile reads a user's published profile.
	GetProfile(ctx context.Context, id string) (contact.Profile, error)

	// PutProfile publishes the user's own profile.
	PutProfile(ctx context.Context, p contact.Profile) error
}

// LocalStore persists the whole snapshot for an owner.
//
// Save replaces the previous snapshot atomically: a crash leaves either
// the old or the new snapshot, never a mix.
type LocalStore interface {
	Load(ctx context.Context, owner string) (contact.Snapshot, error)
	Save(ctx context.Context, s contact.Snapshot) error
}

// Intent is a write-ahead marker for a two-sided relationship create.
type Intent struct {
	ID          string
	Owner       string
	Counterpart string
	Roles       contact.Roles
	CreatedAt   time.Time
}

// IntentLog records two-sided creates in flight so that a crash between
// the two writes can be repaired on the next start.
type IntentLog interface {
	BeginIntent(ctx context.Context, in Intent) error
	CompleteIntent(ctx context.Context, id string) error
	PendingIntents(ctx context.Context, owner string) ([]Intent, error)
}
