package contact

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Snapshot is the complete local state for one signed-in owner.
//
// A published Snapshot is immutable: readers may hold it indefinitely.
// Writers call Clone and publish the copy.
type Snapshot struct {
	Owner     string            `json:"owner"`
	Self      Profile           `json:"self"`
	Contacts  map[string]Record `json:"contacts"`
	Version   int64             `json:"version"`
	UpdatedAt time.Time         `json:"updated_at,omitzero"`
}

// NewSnapshot returns an empty snapshot for owner.
func NewSnapshot(owner string) Snapshot {
	return Snapshot{
		Owner:    owner,
		Self:     Profile{ID: owner},
		Contacts: map[string]Record{},
	}
}

// Clone returns a copy whose Contacts map can be mutated freely.
// Records are values, so copying the map copies them.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Contacts = make(map[string]Record, len(s.Contacts))
	maps.Copy(c.Contacts, s.Contacts)
	return c
}

// IsEmpty reports whether the snapshot has never held any contacts.
func (s Snapshot) IsEmpty() bool {
	return len(s.Contacts) == 0
}

// Get returns the record for counterpart id.
func (s Snapshot) Get(id string) (Record, bool) {
	r, ok := s.Contacts[id]
	return r, ok
}

// Records returns all records ordered by name, then id.
func (s Snapshot) Records() []Record {
	out := slices.Collect(maps.Values(s.Contacts))
	SortRecords(out)
	return out
}

// Responders returns records whose counterpart responds for the owner.
func (s Snapshot) Responders() []Record {
	return s.filter(func(r Record) bool { return r.Roles.Responder })
}

// Dependents returns records whose counterpart depends on the owner.
func (s Snapshot) Dependents() []Record {
	return s.filter(func(r Record) bool { return r.Roles.Dependent })
}

func (s Snapshot) filter(keep func(Record) bool) []Record {
	var out []Record
	for _, r := range s.Contacts {
		if keep(r) {
			out = append(out, r)
		}
	}
	SortRecords(out)
	return out
}

// SortRecords orders records by case-insensitive name, then id.
func SortRecords(rs []Record) {
	slices.SortFunc(rs, func(a, b Record) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// ChangeKind distinguishes stream change events.
type ChangeKind string

const (
	// ChangeUpsert carries the full current value of a record.
	ChangeUpsert ChangeKind = "upsert"
	// ChangeDelete reports that a record was removed.
	ChangeDelete ChangeKind = "delete"
)

// Change is one server-pushed update to an owner's record set.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Record Record     `json:"record"`
}
