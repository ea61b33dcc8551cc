// Package redisremote implements the remote backend on Redis.
//
// Layout:
//
//	<prefix>contacts:<owner>   hash  counterpart -> record JSON
//	<prefix>users:<id>         string profile JSON
//	<prefix>updates:<owner>    Pub/Sub channel of change JSON
//
// Record updates are read-modify-write inside WATCH/MULTI so concurrent
// writers (the owner and the counterpart's mirror writes) never lose an
// update.
package redisremote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/remote"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "lifesignal:"

const maxWatchRetries = 8

// Config configures the Redis client.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Connect opens a client and verifies it with PING.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Repository stores records and profiles in Redis.
type Repository struct {
	client *redis.Client
	prefix string
}

var _ remote.Repository = (*Repository)(nil)

// NewRepository creates a Repository. An empty prefix uses DefaultPrefix.
func NewRepository(client *redis.Client, prefix string) *Repository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Repository{client: client, prefix: prefix}
}

func (r *Repository) contactsKey(owner string) string { return r.prefix + "contacts:" + owner }
func (r *Repository) userKey(id string) string        { return r.prefix + "users:" + id }

func (r *Repository) List(ctx context.Context, owner string) ([]contact.Record, error) {
	raw, err := r.client.HGetAll(ctx, r.contactsKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	out := make([]contact.Record, 0, len(raw))
	for id, data := range raw {
		var rec contact.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode contact %s: %w", id, err)
		}
		out = append(out, rec)
	}
	contact.SortRecords(out)
	return out, nil
}

func (r *Repository) Get(ctx context.Context, key contact.Key) (contact.Record, error) {
	data, err := r.client.HGet(ctx, r.contactsKey(key.Owner), key.Counterpart).Result()
	if errors.Is(err, redis.Nil) {
		return contact.Record{}, contact.NewNotFound("get", key.Counterpart)
	}
	if err != nil {
		return contact.Record{}, fmt.Errorf("get contact: %w", err)
	}
	return decodeRecord(data)
}

func (r *Repository) Insert(ctx context.Context, rec contact.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode contact: %w", err)
	}
	ok, err := r.client.HSetNX(ctx, r.contactsKey(rec.Owner), rec.ID, data).Result()
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	if !ok {
		return contact.NewAlreadyExists("create", rec.ID)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, key contact.Key, fn func(contact.Record) (contact.Record, error)) (contact.Record, error) {
	hash := r.contactsKey(key.Owner)
	var updated contact.Record

	txf := func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, hash, key.Counterpart).Result()
		if errors.Is(err, redis.Nil) {
			return contact.NewNotFound("update", key.Counterpart)
		}
		if err != nil {
			return err
		}
		current, err := decodeRecord(data)
		if err != nil {
			return err
		}
		updated, err = fn(current)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode contact: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hash, key.Counterpart, encoded)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, txf, hash)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return contact.Record{}, err
		}
		return updated, nil
	}
	return contact.Record{}, fmt.Errorf("update contact %s: too much contention", key)
}

func (r *Repository) Delete(ctx context.Context, key contact.Key) error {
	n, err := r.client.HDel(ctx, r.contactsKey(key.Owner), key.Counterpart).Result()
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if n == 0 {
		return contact.NewNotFound("remove", key.Counterpart)
	}
	return nil
}

func (r *Repository) GetProfile(ctx context.Context, id string) (contact.Profile, error) {
	data, err := r.client.Get(ctx, r.userKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return contact.Profile{}, contact.NewNotFound("get_profile", id)
	}
	if err != nil {
		return contact.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	var p contact.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return contact.Profile{}, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return p, nil
}

func (r *Repository) PutProfile(ctx context.Context, p contact.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := r.client.Set(ctx, r.userKey(p.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

func decodeRecord(data string) (contact.Record, error) {
	var rec contact.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return contact.Record{}, fmt.Errorf("decode contact: %w", err)
	}
	return rec, nil
}

// Feed pushes changes over Redis Pub/Sub.
type Feed struct {
	client *redis.Client
	prefix string
	buffer int
	logger *slog.Logger
}

var _ remote.Feed = (*Feed)(nil)

// NewFeed creates a Pub/Sub feed. An empty prefix uses DefaultPrefix.
func NewFeed(client *redis.Client, prefix string, logger *slog.Logger) *Feed {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{client: client, prefix: prefix, buffer: 256, logger: logger}
}

func (f *Feed) channel(owner string) string { return f.prefix + "updates:" + owner }

func (f *Feed) Publish(ctx context.Context, owner string, ch contact.Change) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	return f.client.Publish(ctx, f.channel(owner), data).Err()
}

func (f *Feed) Subscribe(ctx context.Context, owner string) (<-chan contact.Change, error) {
	ps := f.client.Subscribe(ctx, f.channel(owner))
	// Wait for the subscription confirmation so no publish is missed
	// between Subscribe returning and the first receive.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", owner, err)
	}

	msgs := ps.Channel()
	out := make(chan contact.Change, f.buffer)
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ch contact.Change
				if err := json.Unmarshal([]byte(msg.Payload), &ch); err != nil {
					f.logger.Warn("dropping malformed change", "owner", owner, "error", err)
					continue
				}
				select {
				case out <- ch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
