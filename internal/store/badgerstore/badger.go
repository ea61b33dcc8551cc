// Package badgerstore implements the local store on BadgerDB.
//
// Each owner's snapshot is one key holding the whole snapshot as JSON, so
// a save is a single atomic key write. Intents are separate keys under a
// per-owner prefix.
//
// Key layout:
//
//	snapshot/<owner>          snapshot JSON
//	intent/<owner>/<id>       intent JSON
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/ports"
)

// Config configures the database.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	// InMemory keeps everything in RAM; used for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives Badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for a directory.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a Badger-backed local store.
type Store struct {
	db *badger.DB
}

var (
	_ ports.LocalStore = (*Store)(nil)
	_ ports.IntentLog  = (*Store)(nil)
)

// Open opens (or creates) the database.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func snapshotKey(owner string) []byte { return []byte("snapshot/" + owner) }
func intentPrefix(owner string) []byte { return []byte("intent/" + owner + "/") }
func intentKey(owner, id string) []byte {
	return append(intentPrefix(owner), id...)
}

// Load returns the owner's snapshot, or an empty one at Version 0.
func (s *Store) Load(ctx context.Context, owner string) (contact.Snapshot, error) {
	if owner == "" {
		return contact.Snapshot{}, contact.NewUnauthenticated("load")
	}
	if err := ctx.Err(); err != nil {
		return contact.Snapshot{}, err
	}

	snap := contact.NewSnapshot(owner)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(owner))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return contact.NewSnapshot(owner), nil
	}
	if err != nil {
		return contact.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Contacts == nil {
		snap.Contacts = map[string]contact.Record{}
	}
	return snap, nil
}

// Save replaces the owner's snapshot in one key write.
func (s *Store) Save(ctx context.Context, snap contact.Snapshot) error {
	if snap.Owner == "" {
		return contact.NewUnauthenticated("save")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.Owner), data)
	}); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// BeginIntent records a two-sided create in flight.
func (s *Store) BeginIntent(ctx context.Context, in ports.Intent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("begin intent: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(intentKey(in.Owner, in.ID), data)
	})
}

// CompleteIntent removes an intent. Unknown ids are a no-op.
func (s *Store) CompleteIntent(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("intent/")
		var doomed [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if strings.HasSuffix(string(key), "/"+id) {
				doomed = append(doomed, key)
			}
		}
		for _, k := range doomed {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// PendingIntents returns the owner's intents ordered by creation time.
func (s *Store) PendingIntents(ctx context.Context, owner string) ([]ports.Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	intents := []ports.Intent{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := intentPrefix(owner)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var in ports.Intent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &in)
			}); err != nil {
				return fmt.Errorf("decode intent: %w", err)
			}
			intents = append(intents, in)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pending intents: %w", err)
	}
	sort.SliceStable(intents, func(i, j int) bool {
		return intents[i].CreatedAt.Before(intents[j].CreatedAt)
	})
	return intents, nil
}
