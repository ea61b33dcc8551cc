package engine

import (
	"context"
	"time"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

// ContactView is a record with its status evaluated at the view's time.
type ContactView struct {
	contact.Record
	Status contact.Status
}

// View is the read model published to observers.
type View struct {
	Owner   string
	Version int64
	At      time.Time

	Self       contact.Profile
	SelfStatus contact.Status

	// Responders and Dependents are sorted by name. A contact holding
	// both roles appears in both lists.
	Responders []ContactView
	Dependents []ContactView

	// PendingPings counts contacts waiting for the owner to respond.
	PendingPings int
	// Alerting lists contacts with an active manual alert.
	Alerting []ContactView

	// Err is the last refresh or command failure, if the view was
	// published because of one. The data is the unchanged snapshot.
	Err error
}

// Contact returns the view of one contact.
func (v View) Contact(id string) (ContactView, bool) {
	for _, list := range [][]ContactView{v.Responders, v.Dependents} {
		for _, c := range list {
			if c.ID == id {
				return c, true
			}
		}
	}
	return ContactView{}, false
}

// buildView projects s at now.
func buildView(s contact.Snapshot, now time.Time) View {
	v := View{
		Owner:      s.Owner,
		Version:    s.Version,
		At:         now,
		Self:       s.Self,
		SelfStatus: s.Self.Status(now),
	}
	for _, r := range s.Records() {
		cv := ContactView{Record: r, Status: r.Status(now)}
		cv.NonResponsive = cv.Status.Overdue()
		if r.Roles.Responder {
			v.Responders = append(v.Responders, cv)
		}
		if r.Roles.Dependent {
			v.Dependents = append(v.Dependents, cv)
		}
		if r.IncomingPing.Active {
			v.PendingPings++
		}
		if r.ManualAlert.Active {
			v.Alerting = append(v.Alerting, cv)
		}
	}
	return v
}

// View returns a projection of the current snapshot.
func (e *Engine) View() View {
	return buildView(e.Snapshot(), e.clock.Now())
}

// Observe returns a channel of views. The current view is delivered
// first; afterwards only the latest view is kept for a slow reader. The
// channel is closed when ctx ends or the engine stops.
func (e *Engine) Observe(ctx context.Context) <-chan View {
	ch := make(chan View, 1)
	ch <- e.View()

	e.obsMu.Lock()
	if e.obsClosed {
		e.obsMu.Unlock()
		close(ch)
		return ch
	}
	id := e.obsNext
	e.obsNext++
	e.observers[id] = ch
	e.obsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-e.stopped:
		}
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		if _, ok := e.observers[id]; ok {
			delete(e.observers, id)
			close(ch)
		}
	}()
	return ch
}

// publish delivers v to every observer, replacing any undelivered view.
func (e *Engine) publish(v View) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	for _, ch := range e.observers {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// closeObservers closes every observer channel. Called once from Stop.
func (e *Engine) closeObservers() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.obsClosed = true
	for id, ch := range e.observers {
		delete(e.observers, id)
		close(ch)
	}
}
