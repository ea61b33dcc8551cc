// Package natsfeed implements remote.Feed on NATS core subjects.
//
// Each owner has one subject, <prefix>.<owner-token>. Trace context is
// carried in message headers so a change can be followed from the writer's
// span to the subscriber.
package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/remote"
)

// DefaultSubjectPrefix is the subject namespace for change events.
const DefaultSubjectPrefix = "lifesignal.contacts"

// Feed publishes and subscribes to per-owner change subjects.
type Feed struct {
	nc     *nats.Conn
	prefix string
	buffer int
	logger *slog.Logger
	closed chan struct{}
}

var _ remote.Feed = (*Feed)(nil)

// Connect dials url and returns a Feed that owns the connection.
// Subscribers see their channels close when the connection is closed for good.
func Connect(url, prefix string, logger *slog.Logger) (*Feed, error) {
	f := newFeed(prefix, logger)
	nc, err := nats.Connect(url,
		nats.Name("lifesignal"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				f.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			f.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			close(f.closed)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	f.nc = nc
	return f, nil
}

// New wraps an existing connection. The caller keeps ownership of nc.
func New(nc *nats.Conn, prefix string, logger *slog.Logger) *Feed {
	f := newFeed(prefix, logger)
	f.nc = nc
	return f
}

func newFeed(prefix string, logger *slog.Logger) *Feed {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{prefix: prefix, buffer: 256, logger: logger, closed: make(chan struct{})}
}

// Close drains and closes the connection.
func (f *Feed) Close() error {
	return f.nc.Drain()
}

// Subject returns the subject carrying owner's changes.
func (f *Feed) Subject(owner string) string {
	return f.prefix + "." + subjectToken(owner)
}

// subjectToken makes an id safe to use as a single subject token.
func subjectToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}

func (f *Feed) Publish(ctx context.Context, owner string, ch contact.Change) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	msg := &nats.Msg{
		Subject: f.Subject(owner),
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))
	return f.nc.PublishMsg(msg)
}

func (f *Feed) Subscribe(ctx context.Context, owner string) (<-chan contact.Change, error) {
	msgs := make(chan *nats.Msg, f.buffer)
	sub, err := f.nc.ChanSubscribe(f.Subject(owner), msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", owner, err)
	}

	out := make(chan contact.Change, f.buffer)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.closed:
				return
			case msg := <-msgs:
				var ch contact.Change
				if err := json.Unmarshal(msg.Data, &ch); err != nil {
					f.logger.Warn("dropping malformed change", "subject", msg.Subject, "error", err)
					continue
				}
				select {
				case out <- ch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
