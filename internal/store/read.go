package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/ports"
)

// Load returns the owner's saved snapshot.
//
// An owner with nothing saved gets an empty snapshot at Version 0, which
// the engine treats as a first run.
func (s *Store) Load(ctx context.Context, owner string) (contact.Snapshot, error) {
	if owner == "" {
		return contact.Snapshot{}, contact.NewUnauthenticated("load")
	}
	db, err := s.conn()
	if err != nil {
		return contact.Snapshot{}, err
	}

	snap := contact.NewSnapshot(owner)
	var updatedAt, selfJSON string
	err = db.QueryRowContext(ctx, `
		SELECT version, updated_at, self FROM snapshots WHERE owner = ?
	`, owner).Scan(&snap.Version, &updatedAt, &selfJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return contact.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	if snap.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return contact.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Self, err = unmarshalProfile(selfJSON); err != nil {
		return contact.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT record FROM contacts
		WHERE owner = ?
		ORDER BY id COLLATE BINARY ASC
	`, owner)
	if err != nil {
		return contact.Snapshot{}, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var recJSON string
		if err := rows.Scan(&recJSON); err != nil {
			return contact.Snapshot{}, fmt.Errorf("scan contact: %w", err)
		}
		r, err := unmarshalRecord(recJSON)
		if err != nil {
			return contact.Snapshot{}, err
		}
		snap.Contacts[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return contact.Snapshot{}, fmt.Errorf("iterate contacts: %w", err)
	}

	return snap, nil
}

// PendingIntents returns the owner's unfinished intents, oldest first.
// Returns an empty slice (not nil) when there are none.
func (s *Store) PendingIntents(ctx context.Context, owner string) ([]ports.Intent, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, owner, counterpart, roles, created_at
		FROM intents
		WHERE owner = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("query intents: %w", err)
	}
	defer rows.Close()

	intents := []ports.Intent{}
	for rows.Next() {
		var (
			in        ports.Intent
			rolesJSON string
			createdAt string
		)
		if err := rows.Scan(&in.ID, &in.Owner, &in.Counterpart, &rolesJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		if in.Roles, err = unmarshalRoles(rolesJSON); err != nil {
			return nil, err
		}
		if in.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		intents = append(intents, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intents: %w", err)
	}
	return intents, nil
}
