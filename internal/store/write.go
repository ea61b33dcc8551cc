package store

import (
	"context"
	"fmt"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/ports"
)

// Save replaces the owner's snapshot.
//
// The snapshot row and every contact row are rewritten in one
// transaction, so readers and crash recovery observe either the previous
// snapshot or this one in full.
func (s *Store) Save(ctx context.Context, snap contact.Snapshot) error {
	if snap.Owner == "" {
		return contact.NewUnauthenticated("save")
	}
	db, err := s.conn()
	if err != nil {
		return err
	}

	selfJSON, err := marshalProfile(snap.Self)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (owner, version, updated_at, self)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			version = excluded.version,
			updated_at = excluded.updated_at,
			self = excluded.self
	`, snap.Owner, snap.Version, formatTime(snap.UpdatedAt), selfJSON)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE owner = ?`, snap.Owner); err != nil {
		return fmt.Errorf("save snapshot: clear contacts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contacts (owner, id, responder, dependent, pending, record)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save snapshot: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range snap.Records() {
		recJSON, err := marshalRecord(r)
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			snap.Owner, r.ID, r.Roles.Responder, r.Roles.Dependent, r.Pending, recJSON,
		); err != nil {
			return fmt.Errorf("save snapshot: contact %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}

// BeginIntent records a two-sided create before its first remote write.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) BeginIntent(ctx context.Context, in ports.Intent) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	rolesJSON, err := marshalRoles(in.Roles)
	if err != nil {
		return fmt.Errorf("begin intent: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO intents (id, owner, counterpart, roles, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, in.ID, in.Owner, in.Counterpart, rolesJSON, formatTime(in.CreatedAt))
	if err != nil {
		return fmt.Errorf("begin intent: %w", err)
	}
	return nil
}

// CompleteIntent removes a finished (or repaired) intent.
// Completing an unknown intent is a no-op.
func (s *Store) CompleteIntent(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM intents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("complete intent: %w", err)
	}
	return nil
}
