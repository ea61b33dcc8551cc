package engine

import (
	"time"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/reconcile"
)

// Mutations run inside the writer loop. Each one clones the snapshot
// before changing it; the current snapshot is shared with readers.

// upsert stores r as given.
func upsert(r contact.Record) applyFunc {
	return func(cur contact.Snapshot) (contact.Snapshot, bool, error) {
		next := cur.Clone()
		next.Contacts[r.ID] = r
		return next, true, nil
	}
}

// merge folds a record returned by the remote into the snapshot using the
// reconciliation rule, so a concurrent local clear is not undone.
func merge(r contact.Record) applyFunc {
	return func(cur contact.Snapshot) (contact.Snapshot, bool, error) {
		next, ok := reconcile.ApplyChange(cur, contact.Change{Kind: contact.ChangeUpsert, Record: r})
		return next, ok, nil
	}
}

// revertPending restores r only while the optimistic copy is still
// unconfirmed. A confirmed record already holds the remote's answer.
func revertPending(r contact.Record) applyFunc {
	return func(cur contact.Snapshot) (contact.Snapshot, bool, error) {
		local, ok := cur.Get(r.ID)
		if !ok || !local.Pending {
			return cur, false, nil
		}
		next := cur.Clone()
		r.Pending = false
		next.Contacts[r.ID] = r
		return next, true, nil
	}
}

// remove deletes id if present.
func remove(id string) applyFunc {
	return func(cur contact.Snapshot) (contact.Snapshot, bool, error) {
		if _, ok := cur.Get(id); !ok {
			return cur, false, nil
		}
		next := cur.Clone()
		delete(next.Contacts, id)
		return next, true, nil
	}
}

// setSelf replaces the owner's profile and applies patches to the owner's
// records that still exist.
func setSelf(p contact.Profile, patches map[string]contact.Patch, now time.Time) applyFunc {
	return func(cur contact.Snapshot) (contact.Snapshot, bool, error) {
		next := cur.Clone()
		next.Self = p
		for id, patch := range patches {
			if r, ok := next.Contacts[id]; ok {
				next.Contacts[id] = patch.Apply(r, now)
			}
		}
		return next, true, nil
	}
}

// applyChange folds a stream change.
func applyChange(ch contact.Change) applyFunc {
	return func(cur contact.Snapshot) (contact.Snapshot, bool, error) {
		next, ok := reconcile.ApplyChange(cur, ch)
		return next, ok, nil
	}
}
