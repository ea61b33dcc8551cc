// Package reconcile merges remote data into the local snapshot.
//
// The rules are the same whether the data arrives from a full refresh or
// from a single stream change:
//
//  1. Signal fields (incoming ping, outgoing ping, manual alert) keep a
//     local clear when the remote still reports the signal raised at or
//     before the clear. Such a remote value is stale: the server has not
//     yet observed the clear. A signal raised after the clear is new and
//     wins. Both times come from the server clock once the clear is
//     confirmed.
//  2. Every other field takes the remote value.
//  3. Records the remote confirms are no longer Pending.
//
// All functions here are pure; the engine runs them inside its
// single-writer loop.
package reconcile

import (
	"strings"
	"time"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

// Seeder supplies demo records on a first run with no data.
// It is only configured outside production.
type Seeder interface {
	Seed(owner string, now time.Time) []contact.Record
}

// Options controls MergeSnapshot.
type Options struct {
	// Seeder, when non-nil, adds demo records on first run.
	Seeder Seeder
	// Now stamps the merge.
	Now time.Time
}

// MergeSignal resolves one signal axis.
//
// Remote raise and clear times are stamped by the server. A remote clear
// that carries its own ClearedAt replaces the local marker, so once a
// clear is confirmed the comparison no longer depends on the device clock.
func MergeSignal(local, remote contact.Signal) contact.Signal {
	clearedLocally := !local.Active && !local.ClearedAt.IsZero()
	if clearedLocally && remote.Active && !remote.At.After(local.ClearedAt) {
		return local
	}
	out := remote
	if !out.Active && out.ClearedAt.IsZero() && clearedLocally {
		out.ClearedAt = local.ClearedAt
	}
	return out
}

// MergeRecord combines a local record with the remote's version of it.
func MergeRecord(local, remote contact.Record) contact.Record {
	merged := remote
	merged.IncomingPing = MergeSignal(local.IncomingPing, remote.IncomingPing)
	merged.OutgoingPing = MergeSignal(local.OutgoingPing, remote.OutgoingPing)
	merged.ManualAlert = MergeSignal(local.ManualAlert, remote.ManualAlert)
	merged.Pending = false
	return merged
}

// MergeProfile combines the local self profile with the directory's copy.
func MergeProfile(local, remote contact.Profile) contact.Profile {
	merged := remote
	merged.ManualAlert = MergeSignal(local.ManualAlert, remote.ManualAlert)
	return merged
}

// MergeSnapshot folds a full remote fetch into local and returns the new
// snapshot. local is not modified.
//
// A first run (never-persisted, empty snapshot) takes the remote verbatim,
// plus any seeded demo records. Otherwise records are partitioned by id:
// present in both are merged field by field, remote-only are inserted,
// local-only are kept while Pending and dropped once confirmed, since a
// successful full fetch is the remote's complete answer.
func MergeSnapshot(local contact.Snapshot, remote []contact.Record, remoteSelf *contact.Profile, opts Options) contact.Snapshot {
	out := local.Clone()
	out.UpdatedAt = opts.Now
	if remoteSelf != nil {
		out.Self = MergeProfile(local.Self, *remoteSelf)
	}

	if local.Version == 0 && local.IsEmpty() {
		for _, r := range remote {
			r.Pending = false
			out.Contacts[r.ID] = r
		}
		if opts.Seeder != nil {
			for _, r := range opts.Seeder.Seed(local.Owner, opts.Now) {
				if _, taken := out.Contacts[r.ID]; !taken {
					out.Contacts[r.ID] = r
				}
			}
		}
		return out
	}

	seen := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		seen[r.ID] = struct{}{}
		if l, ok := local.Contacts[r.ID]; ok {
			out.Contacts[r.ID] = MergeRecord(l, r)
		} else {
			r.Pending = false
			out.Contacts[r.ID] = r
		}
	}
	for id, l := range local.Contacts {
		if _, ok := seen[id]; ok {
			continue
		}
		if !l.Pending && !IsDemo(l) {
			delete(out.Contacts, id)
		}
	}
	return out
}

// ApplyChange folds one stream change into s. It reports false when the
// change does not belong to s.Owner and was ignored.
func ApplyChange(s contact.Snapshot, ch contact.Change) (contact.Snapshot, bool) {
	if ch.Record.Owner != s.Owner || ch.Record.ID == "" {
		return s, false
	}
	out := s.Clone()
	switch ch.Kind {
	case contact.ChangeDelete:
		if _, ok := out.Contacts[ch.Record.ID]; !ok {
			return s, false
		}
		delete(out.Contacts, ch.Record.ID)
	case contact.ChangeUpsert:
		if l, ok := out.Contacts[ch.Record.ID]; ok {
			out.Contacts[ch.Record.ID] = MergeRecord(l, ch.Record)
		} else {
			r := ch.Record
			r.Pending = false
			out.Contacts[r.ID] = r
		}
	default:
		return s, false
	}
	return out, true
}

// DemoPrefix marks seeded demo records. They never exist remotely and are
// kept across refreshes.
const DemoPrefix = "demo-"

// IsDemo reports whether r was produced by a Seeder.
func IsDemo(r contact.Record) bool {
	return strings.HasPrefix(r.ID, DemoPrefix)
}
