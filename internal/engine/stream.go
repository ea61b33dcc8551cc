package engine

import (
	"context"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

type streamHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartStream starts consuming server-pushed changes. A consumer that is
// already running is cancelled and joined first, so there is never more
// than one.
//
// When the stream closes the consumer resubscribes, paced by the
// resubscribe interval, and refreshes to pick up changes it missed.
// The consumer runs until StopStream, Stop, or ctx ends.
func (e *Engine) StartStream(ctx context.Context) error {
	if e.owner == "" {
		return contact.NewUnauthenticated("subscribe")
	}
	if !e.started.Load() {
		return ErrNotStarted
	}
	select {
	case <-e.stopped:
		return ErrStopped
	default:
	}

	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	e.stopStreamLocked()

	sctx, cancel := context.WithCancel(ctx)
	// Sign-out cancels every stream.
	stop := context.AfterFunc(e.lifetime, cancel)
	h := &streamHandle{cancel: cancel, done: make(chan struct{})}
	e.stream = h

	go func() {
		defer close(h.done)
		defer stop()
		e.consume(sctx)
	}()
	return nil
}

// StopStream cancels the running consumer, if any, and waits for it.
func (e *Engine) StopStream() {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	e.stopStreamLocked()
}

// Streaming reports whether a consumer is running.
func (e *Engine) Streaming() bool {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	if e.stream == nil {
		return false
	}
	select {
	case <-e.stream.done:
		return false
	default:
		return true
	}
}

func (e *Engine) stopStreamLocked() {
	if e.stream == nil {
		return
	}
	e.stream.cancel()
	<-e.stream.done
	e.stream = nil
}

func (e *Engine) consume(ctx context.Context) {
	log := e.logger.With("stream", e.ids.Generate())
	log.Info("stream starting")
	defer log.Info("stream stopped")

	reconnect := false
	for {
		if reconnect {
			if err := e.limiter.Wait(ctx); err != nil {
				return
			}
			resubscribesTotal.Inc()
		}

		changes, err := e.remote.Subscribe(ctx, e.owner)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("subscribe failed", "error", err)
			reconnect = true
			continue
		}

		if reconnect {
			log.Info("stream reconnected, refreshing")
			if err := e.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Warn("catch-up refresh failed", "error", err)
			}
		}

		for ch := range changes {
			if err := e.submit(ctx, "stream_"+string(ch.Kind), applyChange(ch)); err != nil {
				if ctx.Err() != nil {
					// Drain so the feed can release the subscription.
					continue
				}
				log.Warn("apply stream change failed",
					"id", ch.Record.ID,
					"kind", ch.Kind,
					"error", err)
			}
		}

		if ctx.Err() != nil {
			return
		}
		log.Info("stream closed by remote, resubscribing")
		reconnect = true
	}
}
