package contact

import "time"

// Patch is a partial update to a record. Nil fields are left unchanged.
type Patch struct {
	Roles *Roles `json:"roles,omitempty"`

	Name        *string `json:"name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	AvatarRef   *string `json:"avatar_ref,omitempty"`
	Note        *string `json:"note,omitempty"`

	LastCheckIn     *time.Time     `json:"last_check_in,omitempty"`
	CheckInInterval *time.Duration `json:"check_in_interval,omitempty"`

	IncomingPing *Signal `json:"incoming_ping,omitempty"`
	OutgoingPing *Signal `json:"outgoing_ping,omitempty"`
	ManualAlert  *Signal `json:"manual_alert,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Roles == nil &&
		p.Name == nil && p.PhoneNumber == nil && p.AvatarRef == nil && p.Note == nil &&
		p.LastCheckIn == nil && p.CheckInInterval == nil &&
		p.IncomingPing == nil && p.OutgoingPing == nil && p.ManualAlert == nil
}

// Apply returns r with the patch applied and LastUpdated set to now.
func (p Patch) Apply(r Record, now time.Time) Record {
	if p.Roles != nil {
		r.Roles = *p.Roles
	}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.PhoneNumber != nil {
		r.PhoneNumber = *p.PhoneNumber
	}
	if p.AvatarRef != nil {
		r.AvatarRef = *p.AvatarRef
	}
	if p.Note != nil {
		r.Note = *p.Note
	}
	if p.LastCheckIn != nil {
		r.LastCheckIn = *p.LastCheckIn
	}
	if p.CheckInInterval != nil {
		r.CheckInInterval = *p.CheckInInterval
	}
	if p.IncomingPing != nil {
		r.IncomingPing = *p.IncomingPing
	}
	if p.OutgoingPing != nil {
		r.OutgoingPing = *p.OutgoingPing
	}
	if p.ManualAlert != nil {
		r.ManualAlert = *p.ManualAlert
	}
	if !now.IsZero() {
		r.LastUpdated = now
	}
	return r
}

// Revert returns a patch that restores every field p touches to its
// value in orig. It is used to compensate a remote write whose paired
// write failed.
func (p Patch) Revert(orig Record) Patch {
	var out Patch
	if p.Roles != nil {
		out.Roles = ptr(orig.Roles)
	}
	if p.Name != nil {
		out.Name = ptr(orig.Name)
	}
	if p.PhoneNumber != nil {
		out.PhoneNumber = ptr(orig.PhoneNumber)
	}
	if p.AvatarRef != nil {
		out.AvatarRef = ptr(orig.AvatarRef)
	}
	if p.Note != nil {
		out.Note = ptr(orig.Note)
	}
	if p.LastCheckIn != nil {
		out.LastCheckIn = ptr(orig.LastCheckIn)
	}
	if p.CheckInInterval != nil {
		out.CheckInInterval = ptr(orig.CheckInInterval)
	}
	if p.IncomingPing != nil {
		out.IncomingPing = ptr(orig.IncomingPing)
	}
	if p.OutgoingPing != nil {
		out.OutgoingPing = ptr(orig.OutgoingPing)
	}
	if p.ManualAlert != nil {
		out.ManualAlert = ptr(orig.ManualAlert)
	}
	return out
}

// Stamped returns p with every signal it sets restamped at now: a raised
// signal's At and a local clear's ClearedAt. The remote stamps patches
// with its own clock so that raises and clears written by different
// devices order against one time source.
func (p Patch) Stamped(now time.Time) Patch {
	p.IncomingPing = stampSignal(p.IncomingPing, now)
	p.OutgoingPing = stampSignal(p.OutgoingPing, now)
	p.ManualAlert = stampSignal(p.ManualAlert, now)
	return p
}

func stampSignal(s *Signal, now time.Time) *Signal {
	if s == nil {
		return nil
	}
	out := *s
	switch {
	case out.Active:
		out.At = now
	case !out.ClearedAt.IsZero():
		out.ClearedAt = now
	}
	return &out
}

// DescriptivePatch carries a profile's replicated fields to counterpart records.
func DescriptivePatch(p Profile) Patch {
	return Patch{
		Name:            ptr(p.Name),
		PhoneNumber:     ptr(p.PhoneNumber),
		AvatarRef:       ptr(p.AvatarRef),
		Note:            ptr(p.Note),
		CheckInInterval: ptr(p.CheckInInterval),
	}
}

func ptr[T any](v T) *T {
	return &v
}
