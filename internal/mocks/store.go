package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/ports"
)

// Store is an in-memory LocalStore and IntentLog with injectable errors.
type Store struct {
	mu        sync.Mutex
	snapshots map[string]contact.Snapshot
	intents   map[string]ports.Intent
	loadErr   error
	saveErr   error
	saves     int
}

var (
	_ ports.LocalStore = (*Store)(nil)
	_ ports.IntentLog  = (*Store)(nil)
)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		snapshots: make(map[string]contact.Snapshot),
		intents:   make(map[string]ports.Intent),
	}
}

// FailLoad makes Load return err. A nil err clears it.
func (s *Store) FailLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// FailSave makes Save return err. A nil err clears it.
func (s *Store) FailSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves returns the number of successful saves.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Put seeds a snapshot without counting a save.
func (s *Store) Put(snap contact.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Owner] = snap.Clone()
}

// Load returns the stored snapshot or an empty one.
func (s *Store) Load(_ context.Context, owner string) (contact.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return contact.Snapshot{}, s.loadErr
	}
	if snap, ok := s.snapshots[owner]; ok {
		return snap.Clone(), nil
	}
	return contact.NewSnapshot(owner), nil
}

// Save stores a copy of snap.
func (s *Store) Save(_ context.Context, snap contact.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshots[snap.Owner] = snap.Clone()
	s.saves++
	return nil
}

func (s *Store) BeginIntent(_ context.Context, in ports.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[in.ID] = in
	return nil
}

func (s *Store) CompleteIntent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intents, id)
	return nil
}

func (s *Store) PendingIntents(_ context.Context, owner string) ([]ports.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ports.Intent{}
	for _, in := range s.intents {
		if in.Owner == owner {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
