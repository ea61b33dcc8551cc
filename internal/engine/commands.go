package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/reconcile"
)

// ContactUpdate edits the owner's record about a contact. Only roles are
// owned by the owner; every other field is replicated from the
// counterpart's profile.
type ContactUpdate struct {
	Roles *contact.Roles
}

// Refresh fetches every record and the owner's profile and merges them
// into the snapshot. Concurrent calls share one fetch; a caller whose ctx
// ends stops waiting without cancelling the fetch for the others.
//
// A failed fetch leaves the snapshot untouched, publishes a view carrying
// the error and returns it.
func (e *Engine) Refresh(ctx context.Context) error {
	if e.owner == "" {
		return contact.NewUnauthenticated("refresh")
	}
	if !e.started.Load() {
		return ErrNotStarted
	}
	select {
	case <-e.stopped:
		return ErrStopped
	default:
	}
	// The shared fetch must not inherit one caller's cancellation; each
	// remote call is still bounded by the request timeout.
	shared := context.WithoutCancel(ctx)
	ch := e.refresh.DoChan("refresh", func() (any, error) {
		return nil, e.doRefresh(shared)
	})
	select {
	case res := <-ch:
		if res.Shared {
			e.logger.Debug("refresh coalesced")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) doRefresh(ctx context.Context) error {
	log := e.logger.With("flow", e.ids.Generate())

	var records []contact.Record
	err := e.call(ctx, "fetch_all", func(ctx context.Context) error {
		var err error
		records, err = e.remote.FetchAll(ctx, e.owner)
		return err
	})
	if err != nil {
		log.Warn("refresh failed", "error", err)
		e.reportFailure(err)
		return err
	}

	var self *contact.Profile
	err = e.call(ctx, "get_profile", func(ctx context.Context) error {
		p, err := e.remote.GetProfile(ctx, e.owner)
		if err == nil {
			self = &p
		}
		return err
	})
	if err != nil && !contact.IsNotFound(err) {
		log.Warn("refresh failed", "error", err)
		e.reportFailure(err)
		return err
	}

	now := e.clock.Now()
	err = e.submit(ctx, "refresh", func(cur contact.Snapshot) (contact.Snapshot, bool, error) {
		next := reconcile.MergeSnapshot(cur, records, self, reconcile.Options{
			Seeder: e.seeder,
			Now:    now,
		})
		return next, true, nil
	})
	if err != nil {
		e.reportFailure(err)
		return err
	}
	log.Info("refreshed", "records", len(records))
	return nil
}

// AddContact creates a relationship with counterpart, writing both
// directed records, and returns the owner's new record.
func (e *Engine) AddContact(ctx context.Context, counterpart string, roles contact.Roles) (contact.Record, error) {
	if err := e.acquire(ctx); err != nil {
		return contact.Record{}, err
	}
	defer e.release()

	counterpart = strings.TrimSpace(counterpart)
	if counterpart == "" {
		return contact.Record{}, contact.NewValidation("add_contact", "", "contact id is required")
	}
	if _, ok := e.Snapshot().Get(counterpart); ok {
		return contact.Record{}, contact.NewAlreadyExists("add_contact", counterpart)
	}

	var rec contact.Record
	err := e.track("add_contact", func() error {
		var err error
		rec, err = e.linker.Link(ctx, e.owner, counterpart, roles)
		return err
	})
	if err != nil {
		e.logger.Warn("add contact failed", "id", counterpart, "error", err)
		return contact.Record{}, err
	}

	err = e.submit(ctx, "add_contact", upsert(rec))
	if err != nil {
		return contact.Record{}, err
	}
	e.logger.Info("contact added", "id", counterpart, "roles", roles.String())
	return rec, nil
}

// RemoveContact deletes the relationship with id on both sides. Demo
// records exist only locally and are removed without a remote call.
func (e *Engine) RemoveContact(ctx context.Context, id string) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	r, ok := e.Snapshot().Get(id)
	if !ok {
		return contact.NewNotFound("remove_contact", id)
	}

	if !reconcile.IsDemo(r) {
		err := e.track("remove_contact", func() error {
			return e.linker.Unlink(ctx, e.owner, id)
		})
		// Already gone remotely: drop the stale local copy.
		if err != nil && !contact.IsNotFound(err) {
			e.logger.Warn("remove contact failed", "id", id, "error", err)
			return err
		}
	}

	if err := e.submit(ctx, "remove_contact", remove(id)); err != nil {
		return err
	}
	e.logger.Info("contact removed", "id", id)
	return nil
}

// UpdateContact edits the owner's record about id.
//
// Role edits apply locally at once with Pending set, then are confirmed
// by the remote result or reverted if the remote rejects them. The
// counterpart's record gets the reversed roles on a best-effort basis.
func (e *Engine) UpdateContact(ctx context.Context, id string, u ContactUpdate) (contact.Record, error) {
	if err := e.acquire(ctx); err != nil {
		return contact.Record{}, err
	}
	defer e.release()

	orig, ok := e.Snapshot().Get(id)
	if !ok {
		return contact.Record{}, contact.NewNotFound("update_contact", id)
	}
	if u.Roles == nil || *u.Roles == orig.Roles {
		return orig, nil
	}
	patch := contact.Patch{Roles: u.Roles}
	now := e.clock.Now()

	if reconcile.IsDemo(orig) {
		rec := patch.Apply(orig, now)
		return rec, e.submit(ctx, "update_contact", upsert(rec))
	}

	optimistic := patch.Apply(orig, now)
	optimistic.Pending = true
	if err := e.submit(ctx, "update_contact", upsert(optimistic)); err != nil {
		return contact.Record{}, err
	}

	var rec contact.Record
	err := e.call(ctx, "update_contact", func(ctx context.Context) error {
		var err error
		rec, err = e.remote.Update(ctx, orig.Key(), patch)
		return err
	})
	if err != nil {
		e.logger.Warn("update contact failed, reverting", "id", id, "error", err)
		reverted := patch.Revert(orig).Apply(optimistic, now)
		if serr := e.submit(ctx, "revert_contact", revertPending(reverted)); serr != nil {
			e.logger.Error("revert optimistic update failed", "id", id, "error", serr)
		}
		return contact.Record{}, err
	}

	e.fanOut(ctx, "update_contact", map[string]contact.Patch{
		id: {Roles: ptr(u.Roles.Reverse())},
	})

	if err := e.submit(ctx, "update_contact", merge(rec)); err != nil {
		return contact.Record{}, err
	}
	return e.recordOr(id, rec), nil
}

// UpdateProfile edits the owner's own profile, publishes it and copies
// the replicated fields to every counterpart's record about the owner.
func (e *Engine) UpdateProfile(ctx context.Context, u contact.ProfileUpdate) (contact.Profile, error) {
	if err := e.acquire(ctx); err != nil {
		return contact.Profile{}, err
	}
	defer e.release()

	snap := e.Snapshot()
	cur := snap.Self
	cur.ID = e.owner
	next, err := u.Apply(cur, e.clock.Now())
	if err != nil {
		return contact.Profile{}, err
	}

	if err := e.putProfile(ctx, next); err != nil {
		return contact.Profile{}, err
	}
	if err := e.submit(ctx, "update_profile", setSelf(next, nil, time.Time{})); err != nil {
		return contact.Profile{}, err
	}

	e.fanOut(ctx, "update_profile", everyone(snap, contact.DescriptivePatch(next)))
	return next, nil
}

// SendPing asks id to check in. The owner's outgoing ping and the
// counterpart's incoming ping are written together; if the second write
// fails the first is reverted.
func (e *Engine) SendPing(ctx context.Context, id string) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	r, ok := e.Snapshot().Get(id)
	if !ok {
		return contact.NewNotFound("send_ping", id)
	}
	now := e.clock.Now()
	t, err := contact.SendPing(r, now)
	if err != nil {
		return err
	}
	if reconcile.IsDemo(r) {
		return e.submit(ctx, "send_ping", upsert(t.Local.Apply(r, now)))
	}

	rec, err := e.update(ctx, "send_ping", r.Key(), t.Local)
	if err != nil {
		return err
	}
	if _, err := e.update(ctx, "send_ping", r.Key().Mirror(), t.Mirror); err != nil {
		e.logger.Warn("ping not delivered, reverting", "id", id, "error", err)
		if _, rerr := e.update(context.WithoutCancel(ctx), "send_ping_revert", r.Key(), t.Local.Revert(r)); rerr != nil {
			e.logger.Error("revert outgoing ping failed", "id", id, "error", rerr)
		}
		return err
	}

	if err := e.submit(ctx, "send_ping", merge(rec)); err != nil {
		return err
	}
	e.logger.Info("ping sent", "id", id)
	return nil
}

// ClearPing clears the pings pending between the owner and id. With
// nothing pending it succeeds without a remote call. The counterpart's
// side is cleared on a best-effort basis.
func (e *Engine) ClearPing(ctx context.Context, id string) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	r, ok := e.Snapshot().Get(id)
	if !ok {
		return contact.NewNotFound("clear_ping", id)
	}
	now := e.clock.Now()
	t := contact.ClearPing(r, now)
	if t.Noop {
		return nil
	}
	if reconcile.IsDemo(r) {
		return e.submit(ctx, "clear_ping", upsert(t.Local.Apply(r, now)))
	}

	rec, err := e.update(ctx, "clear_ping", r.Key(), t.Local)
	if err != nil {
		return err
	}
	e.fanOut(ctx, "clear_ping", map[string]contact.Patch{id: t.Mirror})

	if err := e.submit(ctx, "clear_ping", merge(rec)); err != nil {
		return err
	}
	e.logger.Info("ping cleared", "id", id)
	return nil
}

// ActivateAlert raises the owner's manual alert and shows it on every
// counterpart's record. Activating an active alert is a no-op.
func (e *Engine) ActivateAlert(ctx context.Context) error {
	return e.setAlert(ctx, "activate_alert", contact.ActivateAlert)
}

// DeactivateAlert clears the owner's manual alert. Deactivating an
// inactive alert is a no-op.
func (e *Engine) DeactivateAlert(ctx context.Context) error {
	return e.setAlert(ctx, "deactivate_alert", contact.DeactivateAlert)
}

func (e *Engine) setAlert(ctx context.Context, op string, transition func(contact.Profile, time.Time) (contact.Profile, contact.Patch, bool)) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	snap := e.Snapshot()
	self := snap.Self
	self.ID = e.owner
	next, mirror, changed := transition(self, e.clock.Now())
	if !changed {
		return nil
	}

	if err := e.putProfile(ctx, next); err != nil {
		return err
	}
	if err := e.submit(ctx, op, setSelf(next, nil, time.Time{})); err != nil {
		return err
	}
	e.fanOut(ctx, op, everyone(snap, mirror))
	e.logger.Info("manual alert changed", "active", next.ManualAlert.Active)
	return nil
}

// CheckIn stamps a check-in, publishes it to every counterpart and
// answers any pending incoming pings.
func (e *Engine) CheckIn(ctx context.Context) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	snap := e.Snapshot()
	self := snap.Self
	self.ID = e.owner
	now := e.clock.Now()
	plan := contact.PlanCheckIn(self, snap.Records(), now)

	if err := e.putProfile(ctx, plan.Self); err != nil {
		return err
	}
	if err := e.submit(ctx, "check_in", setSelf(plan.Self, plan.Local, now)); err != nil {
		return err
	}

	// The owner's own records answer their incoming pings remotely too.
	// The confirmed copies carry the server's clear time.
	confirmed, _ := e.fanOutKeys(ctx, "check_in_local", withoutDemo(plan.Local), func(id string) contact.Key {
		return contact.Key{Owner: e.owner, Counterpart: id}
	})
	for _, rec := range confirmed {
		if err := e.submit(ctx, "check_in_local", merge(rec)); err != nil {
			return err
		}
	}
	e.fanOut(ctx, "check_in", withoutDemo(plan.Mirror))

	e.logger.Info("checked in", "at", now, "contacts", len(plan.Mirror))
	return nil
}

func (e *Engine) putProfile(ctx context.Context, p contact.Profile) error {
	return e.call(ctx, "put_profile", func(ctx context.Context) error {
		return e.remote.PutProfile(ctx, p)
	})
}

func (e *Engine) update(ctx context.Context, op string, key contact.Key, p contact.Patch) (contact.Record, error) {
	var rec contact.Record
	err := e.call(ctx, op, func(ctx context.Context) error {
		var err error
		rec, err = e.remote.Update(ctx, key, p)
		return err
	})
	return rec, err
}

// fanOut writes patches to each counterpart's record about the owner.
// Failures are logged and counted; it returns how many failed.
func (e *Engine) fanOut(ctx context.Context, op string, patches map[string]contact.Patch) int {
	_, failed := e.fanOutKeys(ctx, op, patches, func(id string) contact.Key {
		return contact.Key{Owner: id, Counterpart: e.owner}
	})
	return failed
}

// fanOutKeys is fanOut with explicit keys. It also returns the records
// the remote confirmed.
func (e *Engine) fanOutKeys(ctx context.Context, op string, patches map[string]contact.Patch, key func(id string) contact.Key) ([]contact.Record, int) {
	if len(patches) == 0 {
		return nil, 0
	}
	var (
		g      errgroup.Group
		failed atomic.Int32
		mu     sync.Mutex
		done   []contact.Record
	)
	g.SetLimit(fanOutLimit)
	for id, p := range patches {
		k := key(id)
		g.Go(func() error {
			rec, err := e.update(ctx, op, k, p)
			if err != nil {
				failed.Add(1)
				fanOutFailures.WithLabelValues(op).Inc()
				e.logger.Warn("counterpart update failed",
					slog.String("op", op),
					slog.String("key", k.String()),
					slog.Any("error", err))
				return err
			}
			mu.Lock()
			done = append(done, rec)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return done, int(failed.Load())
}

// recordOr returns the current local copy of id, or fallback.
func (e *Engine) recordOr(id string, fallback contact.Record) contact.Record {
	if r, ok := e.Snapshot().Get(id); ok {
		return r
	}
	return fallback
}

// everyone addresses p to every remote counterpart in s.
func everyone(s contact.Snapshot, p contact.Patch) map[string]contact.Patch {
	out := make(map[string]contact.Patch, len(s.Contacts))
	for id, r := range s.Contacts {
		if !reconcile.IsDemo(r) {
			out[id] = p
		}
	}
	return out
}

func withoutDemo(patches map[string]contact.Patch) map[string]contact.Patch {
	out := make(map[string]contact.Patch, len(patches))
	for id, p := range patches {
		if !strings.HasPrefix(id, reconcile.DemoPrefix) {
			out[id] = p
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
