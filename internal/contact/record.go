package contact

import (
	"time"
)

// Roles holds the two independent relationship roles of a record.
//
// On A's record of B, Responder means B responds for A (B watches A's
// check-ins) and Dependent means B depends on A (A watches B's check-ins).
// Both, either or neither may be set.
type Roles struct {
	Responder bool `json:"responder" yaml:"responder"`
	Dependent bool `json:"dependent" yaml:"dependent"`
}

// Reverse returns the roles as seen from the counterpart's record.
func (r Roles) Reverse() Roles {
	return Roles{Responder: r.Dependent, Dependent: r.Responder}
}

// IsZero reports whether neither role is set.
func (r Roles) IsZero() bool {
	return !r.Responder && !r.Dependent
}

// String renders roles for logs and traces.
func (r Roles) String() string {
	switch {
	case r.Responder && r.Dependent:
		return "responder+dependent"
	case r.Responder:
		return "responder"
	case r.Dependent:
		return "dependent"
	default:
		return "none"
	}
}

// Signal is one boolean signal axis (a ping direction or a manual alert).
//
// At is when the signal was raised. ClearedAt is set only when the local
// user cleared the signal; merges use it to tell a stale remote set from a
// genuinely new one.
type Signal struct {
	Active    bool      `json:"active"`
	At        time.Time `json:"at,omitzero"`
	ClearedAt time.Time `json:"cleared_at,omitzero"`
}

// Raised returns an active signal stamped at now.
func Raised(now time.Time) Signal {
	return Signal{Active: true, At: now}
}

// Cleared returns an inactive signal carrying the local clear marker.
func Cleared(now time.Time) Signal {
	return Signal{ClearedAt: now}
}

// Key addresses one directed record on the remote: the record Owner holds
// about Counterpart.
type Key struct {
	Owner       string
	Counterpart string
}

// Mirror returns the key of the counterpart's record about the owner.
func (k Key) Mirror() Key {
	return Key{Owner: k.Counterpart, Counterpart: k.Owner}
}

func (k Key) String() string {
	return k.Owner + "->" + k.Counterpart
}

// Record is one directed relationship record: what Owner knows about ID.
//
// Each accepted pair of users has two records, one per direction.
// Descriptive fields (Name, PhoneNumber, AvatarRef, Note) and the check-in
// schedule belong to the counterpart and are replicated from its profile.
type Record struct {
	Owner string `json:"owner"`
	ID    string `json:"id"`
	Roles Roles  `json:"roles"`

	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
	Note        string `json:"note,omitempty"`

	// LastCheckIn is the counterpart's last check-in; zero means never.
	LastCheckIn     time.Time     `json:"last_check_in,omitzero"`
	CheckInInterval time.Duration `json:"check_in_interval"`

	// IncomingPing: the counterpart asked the owner to respond.
	IncomingPing Signal `json:"incoming_ping"`
	// OutgoingPing: the owner asked the counterpart to respond.
	OutgoingPing Signal `json:"outgoing_ping"`
	// ManualAlert: the counterpart raised a manual alert.
	ManualAlert Signal `json:"manual_alert"`

	// NonResponsive caches the derived overdue flag for display.
	// It is recomputed from the schedule whenever a view is built.
	NonResponsive bool `json:"non_responsive"`

	DateAdded   time.Time `json:"date_added,omitzero"`
	LastUpdated time.Time `json:"last_updated,omitzero"`

	// Pending marks an optimistic local change the remote has not confirmed.
	// It is local-only state and never written to a remote backend.
	Pending bool `json:"pending,omitempty"`
}

// Key returns the remote key for this record.
func (r Record) Key() Key {
	return Key{Owner: r.Owner, Counterpart: r.ID}
}

// Status evaluates the counterpart's check-in schedule at now.
func (r Record) Status(now time.Time) Status {
	return Evaluate(r.LastCheckIn, r.CheckInInterval, r.ManualAlert.Active, now)
}

// Validate checks structural invariants.
func (r Record) Validate() error {
	if r.Owner == "" {
		return NewUnauthenticated("validate")
	}
	if r.ID == "" {
		return NewValidation("validate", "", "record has no counterpart id")
	}
	if r.ID == r.Owner {
		return NewValidation("validate", r.ID, "record cannot reference its own owner")
	}
	if r.CheckInInterval < 0 {
		return NewValidation("validate", r.ID, "negative check-in interval %s", r.CheckInInterval)
	}
	return nil
}

// Profile is a user's own state as published in the user directory.
//
// Creating a relationship copies the counterpart's profile into the new
// record; check-ins, alerts and profile edits fan out from it.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
	Note        string `json:"note,omitempty"`

	LastCheckIn     time.Time     `json:"last_check_in,omitzero"`
	CheckInInterval time.Duration `json:"check_in_interval"`
	ManualAlert     Signal        `json:"manual_alert"`

	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Status evaluates the user's own schedule at now.
func (p Profile) Status(now time.Time) Status {
	return Evaluate(p.LastCheckIn, p.CheckInInterval, p.ManualAlert.Active, now)
}

// RecordFor builds owner's record about this profile's user.
func (p Profile) RecordFor(owner string, roles Roles, now time.Time) Record {
	return Record{
		Owner:           owner,
		ID:              p.ID,
		Roles:           roles,
		Name:            p.Name,
		PhoneNumber:     p.PhoneNumber,
		AvatarRef:       p.AvatarRef,
		Note:            p.Note,
		LastCheckIn:     p.LastCheckIn,
		CheckInInterval: p.CheckInInterval,
		ManualAlert:     Signal{Active: p.ManualAlert.Active, At: p.ManualAlert.At},
		DateAdded:       now,
		LastUpdated:     now,
	}
}

// Validate checks the profile before it is published.
func (p Profile) Validate() error {
	if p.ID == "" {
		return NewUnauthenticated("put_profile")
	}
	if p.CheckInInterval <= 0 {
		return NewValidation("put_profile", p.ID, "check-in interval must be positive, got %s", p.CheckInInterval)
	}
	return nil
}
