package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

var testTime = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a record with minimal required fields.
func createTestRecord(owner, id string) contact.Record {
	return contact.Record{
		Owner:           owner,
		ID:              id,
		Name:            id,
		CheckInInterval: 24 * time.Hour,
		DateAdded:       testTime,
		LastUpdated:     testTime,
	}
}

// createTestSnapshot creates a snapshot holding the given records.
func createTestSnapshot(owner string, version int64, records ...contact.Record) contact.Snapshot {
	s := contact.NewSnapshot(owner)
	s.Version = version
	s.UpdatedAt = testTime
	s.Self = contact.Profile{ID: owner, Name: owner, CheckInInterval: 24 * time.Hour}
	for _, r := range records {
		s.Contacts[r.ID] = r
	}
	return s
}
