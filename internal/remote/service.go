package remote

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tojkuv/LifeSignal-sub007/internal/clock"
	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/ports"
)

// Repository is the storage half of a remote backend.
//
// Implementations return *contact.Error for NOT_FOUND and ALREADY_EXISTS;
// any other error is treated as a transport failure.
type Repository interface {
	List(ctx context.Context, owner string) ([]contact.Record, error)
	Get(ctx context.Context, key contact.Key) (contact.Record, error)
	// Insert fails with ALREADY_EXISTS when the key is taken.
	Insert(ctx context.Context, r contact.Record) error
	// Update atomically reads the record, applies fn and writes the result.
	Update(ctx context.Context, key contact.Key, fn func(contact.Record) (contact.Record, error)) (contact.Record, error)
	Delete(ctx context.Context, key contact.Key) error
	GetProfile(ctx context.Context, id string) (contact.Profile, error)
	PutProfile(ctx context.Context, p contact.Profile) error
}

// Feed is the push half of a remote backend: per-owner change fan-out.
type Feed interface {
	Publish(ctx context.Context, owner string, ch contact.Change) error
	// Subscribe returns a channel closed when ctx ends or the feed drops
	// the subscriber.
	Subscribe(ctx context.Context, owner string) (<-chan contact.Change, error)
}

// Service implements ports.RemoteContactService over a Repository and a Feed.
//
// Every successful write publishes a Change to the owner of the written
// record. Publish failures are logged and do not fail the write: the next
// refresh delivers the same state.
type Service struct {
	repo   Repository
	feed   Feed
	clock  clock.Clock
	logger *slog.Logger
	tracer trace.Tracer
}

var _ ports.RemoteContactService = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source used for record timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(repo Repository, feed Feed, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		feed:   feed,
		clock:  clock.System{},
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/tojkuv/LifeSignal-sub007/internal/remote"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchAll returns every record owned by owner.
func (s *Service) FetchAll(ctx context.Context, owner string) (_ []contact.Record, err error) {
	ctx, span := s.start(ctx, "fetch_all", attribute.String("owner", owner))
	defer func() { finish(span, err) }()

	if owner == "" {
		return nil, contact.NewUnauthenticated("fetch_all")
	}
	recs, err := s.repo.List(ctx, owner)
	if err != nil {
		return nil, contact.Classify("fetch_all", err)
	}
	span.SetAttributes(attribute.Int("records", len(recs)))
	return recs, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, key contact.Key) (_ contact.Record, err error) {
	ctx, span := s.start(ctx, "get", keyAttrs(key)...)
	defer func() { finish(span, err) }()

	if key.Owner == "" {
		return contact.Record{}, contact.NewUnauthenticated("get")
	}
	r, err := s.repo.Get(ctx, key)
	if err != nil {
		return contact.Record{}, contact.Classify("get", err)
	}
	return r, nil
}

// Create inserts owner's record about counterpart, filled from the
// counterpart's profile.
func (s *Service) Create(ctx context.Context, owner, counterpart string, roles contact.Roles) (_ contact.Record, err error) {
	key := contact.Key{Owner: owner, Counterpart: counterpart}
	ctx, span := s.start(ctx, "create", keyAttrs(key)...)
	defer func() { finish(span, err) }()

	if owner == "" {
		return contact.Record{}, contact.NewUnauthenticated("create")
	}
	if owner == counterpart {
		return contact.Record{}, contact.NewValidation("create", counterpart, "cannot add yourself as a contact")
	}

	profile, err := s.repo.GetProfile(ctx, counterpart)
	if err != nil {
		return contact.Record{}, contact.Classify("create", err)
	}

	rec := profile.RecordFor(owner, roles, s.clock.Now())
	if err := rec.Validate(); err != nil {
		return contact.Record{}, err
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return contact.Record{}, contact.Classify("create", err)
	}

	s.publish(ctx, owner, contact.Change{Kind: contact.ChangeUpsert, Record: rec})
	return rec, nil
}

// Update applies patch to an existing record.
func (s *Service) Update(ctx context.Context, key contact.Key, patch contact.Patch) (_ contact.Record, err error) {
	ctx, span := s.start(ctx, "update", keyAttrs(key)...)
	defer func() { finish(span, err) }()

	if key.Owner == "" {
		return contact.Record{}, contact.NewUnauthenticated("update")
	}
	now := s.clock.Now()
	patch = patch.Stamped(now)
	rec, err := s.repo.Update(ctx, key, func(r contact.Record) (contact.Record, error) {
		r = patch.Apply(r, now)
		r.Pending = false
		return r, r.Validate()
	})
	if err != nil {
		return contact.Record{}, contact.Classify("update", err)
	}

	s.publish(ctx, key.Owner, contact.Change{Kind: contact.ChangeUpsert, Record: rec})
	return rec, nil
}

// Remove deletes one record.
func (s *Service) Remove(ctx context.Context, key contact.Key) (err error) {
	ctx, span := s.start(ctx, "remove", keyAttrs(key)...)
	defer func() { finish(span, err) }()

	if key.Owner == "" {
		return contact.NewUnauthenticated("remove")
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return contact.Classify("remove", err)
	}

	s.publish(ctx, key.Owner, contact.Change{
		Kind:   contact.ChangeDelete,
		Record: contact.Record{Owner: key.Owner, ID: key.Counterpart},
	})
	return nil
}

// Subscribe streams changes to owner's records.
func (s *Service) Subscribe(ctx context.Context, owner string) (<-chan contact.Change, error) {
	if owner == "" {
		return nil, contact.NewUnauthenticated("subscribe")
	}
	ch, err := s.feed.Subscribe(ctx, owner)
	if err != nil {
		return nil, contact.Classify("subscribe", err)
	}
	return ch, nil
}

// GetProfile reads a user's profile from the directory.
func (s *Service) GetProfile(ctx context.Context, id string) (_ contact.Profile, err error) {
	ctx, span := s.start(ctx, "get_profile", attribute.String("user", id))
	defer func() { finish(span, err) }()

	if id == "" {
		return contact.Profile{}, contact.NewUnauthenticated("get_profile")
	}
	p, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return contact.Profile{}, contact.Classify("get_profile", err)
	}
	return p, nil
}

// PutProfile publishes a user's profile to the directory.
func (s *Service) PutProfile(ctx context.Context, p contact.Profile) (err error) {
	ctx, span := s.start(ctx, "put_profile", attribute.String("user", p.ID))
	defer func() { finish(span, err) }()

	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.repo.PutProfile(ctx, p); err != nil {
		return contact.Classify("put_profile", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, owner string, ch contact.Change) {
	if err := s.feed.Publish(ctx, owner, ch); err != nil {
		s.logger.Warn("publish change failed",
			"owner", owner,
			"id", ch.Record.ID,
			"kind", ch.Kind,
			"error", err)
	}
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "remote."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("lifesignal.error_code", string(contact.CodeOf(err))))
	}
	span.End()
}

func keyAttrs(k contact.Key) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("owner", k.Owner),
		attribute.String("counterpart", k.Counterpart),
	}
}
