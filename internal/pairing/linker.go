// Package pairing creates and removes the two directed records that make up
// one relationship.
//
// A relationship between A and B is stored as A's record about B and B's
// record about A. The remote service offers no multi-record transaction, so
// Link writes both halves in sequence and undoes whatever may have landed
// when either fails. A write-ahead intent makes a crash between the two writes
// repairable: Recover replays unfinished intents on the next start.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tojkuv/LifeSignal-sub007/internal/clock"
	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/ports"
)

var (
	// linkTotal counts Link outcomes.
	linkTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifesignal_pairing_link_total",
		Help: "Relationship creates by outcome",
	}, []string{"outcome"})

	// compensationFailures counts rollback writes that failed. When an
	// orphaned half could not be deleted the intent stays pending for
	// Recover.
	compensationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifesignal_pairing_compensation_failures_total",
		Help: "Rollbacks of a half-created relationship that failed",
	})

	// recoveredTotal counts intents resolved by Recover, by action taken.
	recoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifesignal_pairing_recovered_total",
		Help: "Unfinished relationship creates resolved at startup",
	}, []string{"action"})
)

// DefaultRequestTimeout bounds each remote call made by a Linker.
const DefaultRequestTimeout = 10 * time.Second

// IDGenerator produces intent ids.
type IDGenerator interface {
	Generate() string
}

type uuidV7 struct{}

func (uuidV7) Generate() string { return uuid.Must(uuid.NewV7()).String() }

// Linker runs the two-record transaction against a remote service.
type Linker struct {
	remote  ports.RemoteContactService
	intents ports.IntentLog
	ids     IDGenerator
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Linker.
type Option func(*Linker)

// WithIntentLog enables write-ahead intents.
func WithIntentLog(log ports.IntentLog) Option {
	return func(l *Linker) { l.intents = log }
}

// WithIDGenerator sets the intent id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Linker) { l.ids = g }
}

// WithClock sets the clock used to stamp intents.
func WithClock(c clock.Clock) Option {
	return func(l *Linker) { l.clock = c }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Linker) { l.logger = lg }
}

// WithRequestTimeout bounds each remote call. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(l *Linker) { l.timeout = d }
}

// New creates a Linker.
func New(remote ports.RemoteContactService, opts ...Option) *Linker {
	l := &Linker{
		remote:  remote,
		ids:     uuidV7{},
		clock:   clock.System{},
		logger:  slog.Default(),
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Link creates owner's record about counterpart and the mirror record,
// and returns owner's record.
//
// A forward create the remote rejects (unknown counterpart, validation)
// ends the link with that error. Otherwise both writes are attempted:
// when either fails, every write that may have landed is undone and a
// PARTIAL_TRANSACTION error wrapping the failure is returned; when both
// fail, the forward error is returned.
//
// If the counterpart already holds a record about owner, its roles are
// aligned instead of creating it, and a rollback restores the old roles
// rather than deleting the record.
func (l *Linker) Link(ctx context.Context, owner, counterpart string, roles contact.Roles) (contact.Record, error) {
	if owner == "" {
		return contact.Record{}, contact.NewUnauthenticated("add_contact")
	}
	if owner == counterpart {
		return contact.Record{}, contact.NewValidation("add_contact", counterpart, "cannot add yourself as a contact")
	}

	fwd := contact.Key{Owner: owner, Counterpart: counterpart}
	if err := l.expectAbsent(ctx, fwd); err != nil {
		return contact.Record{}, err
	}

	in := ports.Intent{
		ID:          l.ids.Generate(),
		Owner:       owner,
		Counterpart: counterpart,
		Roles:       roles,
		CreatedAt:   l.clock.Now(),
	}
	if l.intents != nil {
		if err := l.intents.BeginIntent(ctx, in); err != nil {
			return contact.Record{}, fmt.Errorf("begin intent: %w", err)
		}
	}

	rec, fwdErr := l.create(ctx, owner, counterpart, roles)
	if rejected(fwdErr) {
		linkTotal.WithLabelValues("rejected").Inc()
		l.complete(ctx, in)
		return contact.Record{}, fwdErr
	}
	rev := l.writeMirror(ctx, fwd.Mirror(), roles.Reverse())

	switch {
	case fwdErr == nil && rev.err == nil:
		linkTotal.WithLabelValues("ok").Inc()
		l.complete(ctx, in)
		return rec, nil

	case fwdErr != nil && rev.err != nil:
		linkTotal.WithLabelValues("failed").Inc()
		l.rollback(ctx, in, fwdErr, rev)
		return contact.Record{}, fwdErr

	case fwdErr == nil:
		linkTotal.WithLabelValues("compensated").Inc()
		l.rollback(ctx, in, nil, rev)
		return contact.Record{}, contact.NewPartial("add_contact", counterpart, rev.err)

	default:
		linkTotal.WithLabelValues("compensated").Inc()
		l.rollback(ctx, in, fwdErr, rev)
		return contact.Record{}, contact.NewPartial("add_contact", counterpart, fwdErr)
	}
}

// mirrorWrite is the outcome of writing the counterpart's half.
type mirrorWrite struct {
	key contact.Key
	err error
	// existed is set when the counterpart already had the record. orig
	// holds it as read before patch was sent; updated is set once the
	// update was attempted.
	existed bool
	updated bool
	orig    contact.Record
	patch   contact.Patch
}

func (l *Linker) writeMirror(ctx context.Context, key contact.Key, roles contact.Roles) mirrorWrite {
	w := mirrorWrite{key: key}
	_, w.err = l.create(ctx, key.Owner, key.Counterpart, roles)
	if !contact.IsAlreadyExists(w.err) {
		return w
	}

	// The counterpart kept a record about owner; align its roles.
	w.existed = true
	orig, err := l.get(ctx, key)
	if err != nil {
		w.err = err
		return w
	}
	w.orig = orig
	w.patch = contact.Patch{Roles: ptr(roles)}
	w.updated = true
	_, w.err = l.update(ctx, key, w.patch)
	return w
}

// mayHaveLanded reports whether a write that returned err could still
// have been applied by the remote.
func mayHaveLanded(err error) bool {
	return err == nil || !rejected(err)
}

// rollback undoes every write of in that may have landed. fwdErr is the
// forward create's outcome.
//
// The intent is completed unless a create could not be undone; Recover
// then resolves it. A failed restore of a pre-existing mirror is logged
// but never leaves the intent pending, since Recover would delete that
// record.
func (l *Linker) rollback(ctx context.Context, in ports.Intent, fwdErr error, rev mirrorWrite) {
	// The rollback must run even if the caller gave up.
	ctx = context.WithoutCancel(ctx)
	fwd := contact.Key{Owner: in.Owner, Counterpart: in.Counterpart}
	pending := false

	if mayHaveLanded(fwdErr) {
		if err := l.remove(ctx, fwd); err != nil && !contact.IsNotFound(err) {
			pending = true
			l.rollbackFailed(in, fwd, err)
		}
	}

	switch {
	case rev.existed:
		if rev.updated && mayHaveLanded(rev.err) {
			if _, err := l.update(ctx, rev.key, rev.patch.Revert(rev.orig)); err != nil {
				l.rollbackFailed(in, rev.key, err)
			}
		}
	case mayHaveLanded(rev.err):
		if err := l.remove(ctx, rev.key); err != nil && !contact.IsNotFound(err) {
			pending = true
			l.rollbackFailed(in, rev.key, err)
		}
	}

	if pending {
		return
	}
	l.complete(ctx, in)
}

func (l *Linker) rollbackFailed(in ports.Intent, key contact.Key, err error) {
	compensationFailures.Inc()
	l.logger.Error("rollback of half-created relationship failed",
		"intent", in.ID,
		"key", key.String(),
		"error", err)
}

// Unlink removes owner's record about counterpart, then the mirror record.
// Only the first removal can fail the call; a failed mirror removal is
// logged.
func (l *Linker) Unlink(ctx context.Context, owner, counterpart string) error {
	if owner == "" {
		return contact.NewUnauthenticated("remove_contact")
	}
	fwd := contact.Key{Owner: owner, Counterpart: counterpart}
	if err := l.remove(ctx, fwd); err != nil {
		return err
	}
	if err := l.remove(ctx, fwd.Mirror()); err != nil && !contact.IsNotFound(err) {
		l.logger.Warn("remove mirror record failed",
			"key", fwd.Mirror().String(),
			"error", err)
	}
	return nil
}

// Recover resolves owner's unfinished intents and returns how many were
// resolved. Relationships with both halves present are kept; a lone half
// is deleted. Intents whose state cannot be read stay pending.
func (l *Linker) Recover(ctx context.Context, owner string) (int, error) {
	if l.intents == nil {
		return 0, nil
	}
	pending, err := l.intents.PendingIntents(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("pending intents: %w", err)
	}

	var (
		resolved int
		errs     []error
	)
	for _, in := range pending {
		if err := l.recoverOne(ctx, in); err != nil {
			errs = append(errs, fmt.Errorf("intent %s: %w", in.ID, err))
			continue
		}
		resolved++
	}
	return resolved, errors.Join(errs...)
}

func (l *Linker) recoverOne(ctx context.Context, in ports.Intent) error {
	fwd := contact.Key{Owner: in.Owner, Counterpart: in.Counterpart}
	fwdOK, err := l.exists(ctx, fwd)
	if err != nil {
		return err
	}
	revOK, err := l.exists(ctx, fwd.Mirror())
	if err != nil {
		return err
	}

	action := "none"
	switch {
	case fwdOK && revOK:
		action = "kept"
	case fwdOK:
		action = "rolled_back"
		if err := l.remove(ctx, fwd); err != nil && !contact.IsNotFound(err) {
			return err
		}
	case revOK:
		action = "rolled_back"
		if err := l.remove(ctx, fwd.Mirror()); err != nil && !contact.IsNotFound(err) {
			return err
		}
	}

	l.logger.Info("recovered relationship intent",
		"intent", in.ID,
		"key", fwd.String(),
		"action", action)
	recoveredTotal.WithLabelValues(action).Inc()
	return l.intents.CompleteIntent(ctx, in.ID)
}

// rejected reports whether the remote refused a write outright, so that
// nothing was stored. A transient failure may still have landed.
func rejected(err error) bool {
	switch contact.CodeOf(err) {
	case contact.CodeNotFound, contact.CodeValidation, contact.CodeUnauthenticated, contact.CodeAlreadyExists:
		return true
	}
	return false
}

func (l *Linker) complete(ctx context.Context, in ports.Intent) {
	if l.intents == nil {
		return
	}
	if err := l.intents.CompleteIntent(context.WithoutCancel(ctx), in.ID); err != nil {
		l.logger.Warn("complete intent failed", "intent", in.ID, "error", err)
	}
}

func (l *Linker) expectAbsent(ctx context.Context, key contact.Key) error {
	ok, err := l.exists(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return contact.NewAlreadyExists("add_contact", key.Counterpart)
	}
	return nil
}

func (l *Linker) exists(ctx context.Context, key contact.Key) (bool, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()
	_, err := l.remote.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case contact.IsNotFound(err):
		return false, nil
	default:
		return false, contact.Classify("get", err)
	}
}

func (l *Linker) get(ctx context.Context, key contact.Key) (contact.Record, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()
	r, err := l.remote.Get(ctx, key)
	return r, contact.Classify("get", err)
}

func (l *Linker) create(ctx context.Context, owner, counterpart string, roles contact.Roles) (contact.Record, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()
	r, err := l.remote.Create(ctx, owner, counterpart, roles)
	return r, contact.Classify("create", err)
}

func (l *Linker) update(ctx context.Context, key contact.Key, p contact.Patch) (contact.Record, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()
	r, err := l.remote.Update(ctx, key, p)
	return r, contact.Classify("update", err)
}

func (l *Linker) remove(ctx context.Context, key contact.Key) error {
	ctx, cancel := l.bound(ctx)
	defer cancel()
	return contact.Classify("remove", l.remote.Remove(ctx, key))
}

func (l *Linker) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

func ptr[T any](v T) *T { return &v }
