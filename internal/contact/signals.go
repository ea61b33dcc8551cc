package contact

import "time"

// Transition is the pair of patches one signal change produces: Local
// applies to the owner's record about the counterpart, Mirror to the
// counterpart's record about the owner.
type Transition struct {
	Local  Patch
	Mirror Patch
	// Noop is set when the transition changes nothing and needs no
	// remote call.
	Noop bool
}

// SendPing raises an outgoing ping on r and the matching incoming ping on
// the counterpart's record. A ping that is already pending is rejected.
func SendPing(r Record, now time.Time) (Transition, error) {
	if r.OutgoingPing.Active {
		return Transition{}, NewValidation("send_ping", r.ID, "a ping to this contact is already pending")
	}
	return Transition{
		Local:  Patch{OutgoingPing: ptr(Raised(now))},
		Mirror: Patch{IncomingPing: ptr(Raised(now))},
	}, nil
}

// ClearPing clears whichever ping directions are active on r, together
// with their counterparts on the mirror record. With nothing pending the
// transition is a no-op.
func ClearPing(r Record, now time.Time) Transition {
	var t Transition
	if r.IncomingPing.Active {
		t.Local.IncomingPing = ptr(Cleared(now))
		t.Mirror.OutgoingPing = ptr(Signal{})
	}
	if r.OutgoingPing.Active {
		t.Local.OutgoingPing = ptr(Cleared(now))
		t.Mirror.IncomingPing = ptr(Signal{})
	}
	t.Noop = t.Local.IsEmpty()
	return t
}

// CheckInPlan describes the effects of one check-in.
type CheckInPlan struct {
	// Self is the owner's profile after the check-in.
	Self Profile
	// Local holds patches for the owner's records that had an incoming
	// ping; the check-in answers it.
	Local map[string]Patch
	// Mirror holds, per counterpart, the patch for its record about the owner.
	Mirror map[string]Patch
}

// PlanCheckIn stamps a check-in at now. Every counterpart learns the new
// schedule; counterparts whose ping was pending see it answered.
func PlanCheckIn(self Profile, records []Record, now time.Time) CheckInPlan {
	self.LastCheckIn = now
	self.UpdatedAt = now
	plan := CheckInPlan{
		Self:   self,
		Local:  make(map[string]Patch),
		Mirror: make(map[string]Patch, len(records)),
	}
	for _, r := range records {
		mirror := Patch{
			LastCheckIn:     ptr(now),
			CheckInInterval: ptr(self.CheckInInterval),
		}
		if r.IncomingPing.Active {
			plan.Local[r.ID] = Patch{IncomingPing: ptr(Cleared(now))}
			mirror.OutgoingPing = ptr(Signal{})
		}
		plan.Mirror[r.ID] = mirror
	}
	return plan
}

// ActivateAlert raises the owner's manual alert. Activating an active
// alert changes nothing and reports changed=false.
func ActivateAlert(self Profile, now time.Time) (Profile, Patch, bool) {
	if self.ManualAlert.Active {
		return self, Patch{}, false
	}
	self.ManualAlert = Raised(now)
	self.UpdatedAt = now
	return self, Patch{ManualAlert: ptr(Raised(now))}, true
}

// DeactivateAlert clears the owner's manual alert. Deactivating an
// inactive alert changes nothing and reports changed=false.
func DeactivateAlert(self Profile, now time.Time) (Profile, Patch, bool) {
	if !self.ManualAlert.Active {
		return self, Patch{}, false
	}
	self.ManualAlert = Cleared(now)
	self.UpdatedAt = now
	return self, Patch{ManualAlert: ptr(Signal{})}, true
}

// ProfileUpdate edits the owner's own descriptive fields and interval.
type ProfileUpdate struct {
	Name            *string
	PhoneNumber     *string
	AvatarRef       *string
	Note            *string
	CheckInInterval *time.Duration
}

// Apply returns the edited profile, normalizing text fields.
func (u ProfileUpdate) Apply(p Profile, now time.Time) (Profile, error) {
	if u.Name != nil {
		p.Name = NormalizeText(*u.Name)
	}
	if u.PhoneNumber != nil {
		p.PhoneNumber = NormalizePhone(*u.PhoneNumber)
	}
	if u.AvatarRef != nil {
		p.AvatarRef = *u.AvatarRef
	}
	if u.Note != nil {
		p.Note = NormalizeText(*u.Note)
	}
	if u.CheckInInterval != nil {
		p.CheckInInterval = *u.CheckInInterval
	}
	p.UpdatedAt = now
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}
