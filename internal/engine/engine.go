package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tojkuv/LifeSignal-sub007/internal/clock"
	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/pairing"
	"github.com/tojkuv/LifeSignal-sub007/internal/ports"
	"github.com/tojkuv/LifeSignal-sub007/internal/reconcile"
)

const (
	// DefaultRequestTimeout bounds every remote call.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultResubscribeInterval is the minimum spacing between stream
	// reconnect attempts.
	DefaultResubscribeInterval = 2 * time.Second

	// fanOutLimit caps concurrent best-effort writes to counterpart records.
	fanOutLimit = 8
)

// Engine owns one signed-in user's contact snapshot and keeps it in sync
// with the remote contact service.
//
// All snapshot mutations happen in the single-writer Run loop. Commands
// call the remote outside the loop and enqueue the result; the stream
// consumer does the same with server-pushed changes. Readers get an
// immutable snapshot through an atomic pointer and never block the writer.
//
// Thread-safety model:
//   - commands: safe from any goroutine, serialized end to end
//   - Snapshot(), View(), Observe(): safe from any goroutine
//   - Start/Stop: call once each
type Engine struct {
	owner   string
	remote  ports.RemoteContactService
	local   ports.LocalStore
	intents ports.IntentLog
	linker  *pairing.Linker

	clock   clock.Clock
	logger  *slog.Logger
	ids     IDGenerator
	seeder  reconcile.Seeder
	timeout time.Duration
	resub   time.Duration

	snap  atomic.Pointer[contact.Snapshot]
	seq   *clock.Sequence
	queue *mutationQueue

	// cmd serializes command handlers; capacity 1.
	cmd     chan struct{}
	refresh singleflight.Group

	started  atomic.Bool
	lifetime context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	streamMu sync.Mutex
	stream   *streamHandle
	limiter  *rate.Limiter

	obsMu     sync.Mutex
	observers map[int]chan View
	obsNext   int
	obsClosed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the wall clock used for timestamps and status evaluation.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRequestTimeout bounds every remote call.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithResubscribeInterval sets the minimum spacing between stream
// reconnect attempts.
func WithResubscribeInterval(d time.Duration) Option {
	return func(e *Engine) { e.resub = d }
}

// WithIntentLog enables the write-ahead intent log for relationship creates.
func WithIntentLog(l ports.IntentLog) Option {
	return func(e *Engine) { e.intents = l }
}

// WithSeeder adds demo records on first run. Never set in production.
func WithSeeder(s reconcile.Seeder) Option {
	return func(e *Engine) { e.seeder = s }
}

// WithIDGenerator sets the source of command and intent ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// New creates an Engine for owner. Call Start before issuing commands.
func New(owner string, remote ports.RemoteContactService, local ports.LocalStore, opts ...Option) *Engine {
	e := &Engine{
		owner:     owner,
		remote:    remote,
		local:     local,
		clock:     clock.System{},
		logger:    slog.Default(),
		ids:       UUIDv7Generator{},
		timeout:   DefaultRequestTimeout,
		resub:     DefaultResubscribeInterval,
		seq:       clock.NewSequence(),
		queue:     newMutationQueue(),
		cmd:       make(chan struct{}, 1),
		loopDone:  make(chan struct{}),
		stopped:   make(chan struct{}),
		observers: make(map[int]chan View),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("owner", owner)
	e.limiter = rate.NewLimiter(rate.Every(e.resub), 1)
	e.linker = pairing.New(remote,
		pairing.WithIntentLog(e.intents),
		pairing.WithIDGenerator(e.ids),
		pairing.WithClock(e.clock),
		pairing.WithLogger(e.logger),
		pairing.WithRequestTimeout(e.timeout))

	empty := contact.NewSnapshot(owner)
	e.snap.Store(&empty)
	return e
}

// Owner returns the signed-in user id.
func (e *Engine) Owner() string {
	return e.owner
}

// Start loads the persisted snapshot, repairs unfinished relationship
// creates and starts the writer loop. It does not contact the remote
// beyond intent recovery; call Refresh and StartStream for that.
func (e *Engine) Start(ctx context.Context) error {
	if e.owner == "" {
		return contact.NewUnauthenticated("start")
	}
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("engine: already started")
	}

	snap, err := e.local.Load(ctx, e.owner)
	if err != nil {
		e.started.Store(false)
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Self.ID == "" {
		snap.Self.ID = e.owner
	}
	e.snap.Store(&snap)
	e.seq = clock.NewSequenceAt(snap.Version)

	if n, err := e.linker.Recover(ctx, e.owner); err != nil {
		e.logger.Warn("intent recovery incomplete", "resolved", n, "error", err)
	} else if n > 0 {
		e.logger.Info("recovered unfinished relationship creates", "resolved", n)
	}

	e.lifetime, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go e.run(e.lifetime)

	e.logger.Info("engine started", "version", snap.Version, "contacts", len(snap.Contacts))
	e.publish(e.View())
	return nil
}

// Stop cancels the stream, drains queued mutations and closes observers.
// Commands issued afterwards return ErrStopped.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.StopStream()
		e.queue.Close()
		if e.started.Load() && e.cancel != nil {
			<-e.loopDone
			e.cancel()
		}
		close(e.stopped)
		e.closeObservers()
		e.logger.Info("engine stopped")
	})
}

// Snapshot returns the current snapshot. Callers must not modify it.
func (e *Engine) Snapshot() contact.Snapshot {
	return *e.snap.Load()
}

// QueueLen returns the number of mutations waiting for the writer.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// run is the single-writer loop. It returns when the queue is closed and
// drained, or when ctx is cancelled.
func (e *Engine) run(ctx context.Context) {
	defer close(e.loopDone)
	e.logger.Debug("writer loop starting")

	for {
		if m, ok := e.queue.TryDequeue(); ok {
			m.done <- e.applyMutation(ctx, m)
			continue
		}

		select {
		case <-ctx.Done():
			e.queue.Close()
			e.failQueued(ctx.Err())
			return
		case _, open := <-e.queue.Wait():
			if !open && e.queue.Len() == 0 {
				e.logger.Debug("writer loop stopping: queue closed")
				return
			}
		}
	}
}

// applyMutation runs one mutation against the current snapshot, persists
// the result and swaps it in. On any failure the previous snapshot stays.
func (e *Engine) applyMutation(ctx context.Context, m mutation) error {
	cur := e.Snapshot()
	next, changed, err := m.apply(cur)
	if err != nil {
		mutationsTotal.WithLabelValues(m.name, "rejected").Inc()
		return err
	}
	if !changed {
		mutationsTotal.WithLabelValues(m.name, "noop").Inc()
		return nil
	}

	next.Version = e.seq.Next()
	next.UpdatedAt = e.clock.Now()
	if err := e.local.Save(ctx, next); err != nil {
		mutationsTotal.WithLabelValues(m.name, "save_failed").Inc()
		e.logger.Error("save snapshot failed",
			"mutation", m.name,
			"version", next.Version,
			"error", err)
		return fmt.Errorf("save snapshot: %w", err)
	}

	e.snap.Store(&next)
	mutationsTotal.WithLabelValues(m.name, "applied").Inc()
	e.logger.Debug("snapshot updated",
		"mutation", m.name,
		"version", next.Version,
		"contacts", len(next.Contacts))
	e.publish(buildView(next, e.clock.Now()))
	return nil
}

func (e *Engine) failQueued(err error) {
	for {
		m, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		m.done <- err
	}
}

// submit enqueues a mutation and waits for the writer to apply it.
//
// If ctx ends first the mutation still runs; its outcome is dropped.
func (e *Engine) submit(ctx context.Context, name string, fn applyFunc) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	m := mutation{name: name, apply: fn, done: make(chan error, 1)}
	if !e.queue.Enqueue(m) {
		return ErrStopped
	}
	select {
	case err := <-m.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acquire takes the command slot.
func (e *Engine) acquire(ctx context.Context) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	select {
	case <-e.stopped:
		return ErrStopped
	default:
	}
	select {
	case e.cmd <- struct{}{}:
		return nil
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	<-e.cmd
}

// call runs one remote operation under the request timeout and converts
// its failure to a typed error.
func (e *Engine) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.track(op, func() error { return fn(ctx) })
}

// track records metrics for a remote operation that bounds its own calls,
// such as the two-record pairing transaction.
func (e *Engine) track(op string, fn func() error) error {
	start := time.Now()
	err := contact.Classify(op, fn())
	remoteCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	remoteCallsTotal.WithLabelValues(op, codeLabel(err)).Inc()
	return err
}

// reportFailure publishes the unchanged snapshot with err attached.
func (e *Engine) reportFailure(err error) {
	v := e.View()
	v.Err = err
	e.publish(v)
}
