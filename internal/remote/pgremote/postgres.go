// Package pgremote implements the remote backend on PostgreSQL.
//
// Records and profiles are stored as JSONB rows. Updates lock the row with
// SELECT ... FOR UPDATE inside a transaction. Changes are pushed with
// pg_notify and received with LISTEN on a dedicated pooled connection.
package pgremote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/remote"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS lifesignal_users (
		id         TEXT PRIMARY KEY,
		profile    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS lifesignal_relationships (
		owner_id       TEXT NOT NULL,
		counterpart_id TEXT NOT NULL,
		record         JSONB NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (owner_id, counterpart_id)
	)`,
}

// Connect creates a pool from a DSN and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Repository stores records and profiles in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

var _ remote.Repository = (*Repository)(nil)

// NewRepository creates a Repository on an existing pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) List(ctx context.Context, owner string) ([]contact.Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT record FROM lifesignal_relationships WHERE owner_id = $1 ORDER BY counterpart_id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []contact.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	contact.SortRecords(out)
	return out, nil
}

func (r *Repository) Get(ctx context.Context, key contact.Key) (contact.Record, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT record FROM lifesignal_relationships WHERE owner_id = $1 AND counterpart_id = $2`,
		key.Owner, key.Counterpart).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return contact.Record{}, contact.NewNotFound("get", key.Counterpart)
	}
	if err != nil {
		return contact.Record{}, fmt.Errorf("get contact: %w", err)
	}
	return decodeRecord(raw)
}

func (r *Repository) Insert(ctx context.Context, rec contact.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode contact: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO lifesignal_relationships (owner_id, counterpart_id, record)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, counterpart_id) DO NOTHING
	`, rec.Owner, rec.ID, string(data))
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contact.NewAlreadyExists("create", rec.ID)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, key contact.Key, fn func(contact.Record) (contact.Record, error)) (contact.Record, error) {
	var updated contact.Record
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, `
			SELECT record FROM lifesignal_relationships
			WHERE owner_id = $1 AND counterpart_id = $2
			FOR UPDATE
		`, key.Owner, key.Counterpart).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return contact.NewNotFound("update", key.Counterpart)
		}
		if err != nil {
			return fmt.Errorf("lock contact: %w", err)
		}

		current, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		updated, err = fn(current)
		if err != nil {
			return err
		}
		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode contact: %w", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE lifesignal_relationships
			SET record = $3, updated_at = now()
			WHERE owner_id = $1 AND counterpart_id = $2
		`, key.Owner, key.Counterpart, string(data))
		if err != nil {
			return fmt.Errorf("update contact: %w", err)
		}
		return nil
	})
	if err != nil {
		return contact.Record{}, err
	}
	return updated, nil
}

func (r *Repository) Delete(ctx context.Context, key contact.Key) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM lifesignal_relationships WHERE owner_id = $1 AND counterpart_id = $2`,
		key.Owner, key.Counterpart)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contact.NewNotFound("remove", key.Counterpart)
	}
	return nil
}

func (r *Repository) GetProfile(ctx context.Context, id string) (contact.Profile, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT profile FROM lifesignal_users WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return contact.Profile{}, contact.NewNotFound("get_profile", id)
	}
	if err != nil {
		return contact.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	var p contact.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return contact.Profile{}, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return p, nil
}

func (r *Repository) PutProfile(ctx context.Context, p contact.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO lifesignal_users (id, profile, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET profile = EXCLUDED.profile, updated_at = now()
	`, p.ID, string(data))
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

func decodeRecord(raw []byte) (contact.Record, error) {
	var rec contact.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return contact.Record{}, fmt.Errorf("decode contact: %w", err)
	}
	return rec, nil
}

// Feed pushes changes with NOTIFY and receives them with LISTEN.
type Feed struct {
	pool   *pgxpool.Pool
	buffer int
	logger *slog.Logger
}

var _ remote.Feed = (*Feed)(nil)

// NewFeed creates a LISTEN/NOTIFY feed on pool.
func NewFeed(pool *pgxpool.Pool, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{pool: pool, buffer: 256, logger: logger}
}

// channelName maps an owner id to a valid, bounded-length channel name.
func channelName(owner string) string {
	sum := sha256.Sum256([]byte(owner))
	return "lifesignal_" + hex.EncodeToString(sum[:16])
}

func (f *Feed) Publish(ctx context.Context, owner string, ch contact.Change) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if _, err := f.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, channelName(owner), string(data)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, owner string) (<-chan contact.Change, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	channel := pgx.Identifier{channelName(owner)}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	out := make(chan contact.Change, f.buffer)
	go func() {
		defer close(out)
		defer func() {
			// The connection returns to the pool; it must not keep listening.
			_, _ = conn.Exec(context.Background(), "UNLISTEN "+channel)
			conn.Release()
		}()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					f.logger.Warn("listen connection lost", "owner", owner, "error", err)
				}
				return
			}
			var ch contact.Change
			if err := json.Unmarshal([]byte(n.Payload), &ch); err != nil {
				f.logger.Warn("dropping malformed change", "owner", owner, "error", err)
				continue
			}
			select {
			case out <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
