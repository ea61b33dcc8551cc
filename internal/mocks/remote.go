// Package mocks provides port doubles for testing.
package mocks

import (
	"context"
	"sync"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/ports"
)

// Op names a RemoteContactService method.
type Op string

const (
	OpFetchAll   Op = "fetch_all"
	OpGet        Op = "get"
	OpCreate     Op = "create"
	OpUpdate     Op = "update"
	OpRemove     Op = "remove"
	OpSubscribe  Op = "subscribe"
	OpGetProfile Op = "get_profile"
	OpPutProfile Op = "put_profile"
)

// Remote wraps a RemoteContactService and injects failures per operation.
//
// Failures can be scoped to all calls of an op, to the next call only, or
// to calls whose record owner matches. Calls that fail are not forwarded.
type Remote struct {
	Inner ports.RemoteContactService

	mu      sync.Mutex
	errs    map[Op]error
	once    map[Op][]error
	byOwner map[Op]map[string]error
	holds   map[Op]chan struct{}
	calls   map[Op]int
}

var _ ports.RemoteContactService = (*Remote)(nil)

// NewRemote wraps inner.
func NewRemote(inner ports.RemoteContactService) *Remote {
	return &Remote{
		Inner:   inner,
		errs:    make(map[Op]error),
		once:    make(map[Op][]error),
		byOwner: make(map[Op]map[string]error),
		holds:   make(map[Op]chan struct{}),
		calls:   make(map[Op]int),
	}
}

// Fail makes every call of op return err. A nil err clears it.
func (m *Remote) Fail(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// FailOnce queues err for the next call of op.
func (m *Remote) FailOnce(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.once[op] = append(m.once[op], err)
}

// FailFor makes calls of op on records owned by owner return err.
func (m *Remote) FailFor(op Op, owner string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byOwner[op] == nil {
		m.byOwner[op] = make(map[string]error)
	}
	m.byOwner[op][owner] = err
}

// Hold blocks calls of op until the returned release func is called or
// the call's context ends.
func (m *Remote) Hold(op Op) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.holds[op] = ch
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.holds[op] == ch {
				delete(m.holds, op)
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Reset clears all injected failures and holds. Call counts are kept.
func (m *Remote) Reset() {
	m.mu.Lock()
	holds := m.holds
	m.errs = make(map[Op]error)
	m.once = make(map[Op][]error)
	m.byOwner = make(map[Op]map[string]error)
	m.holds = make(map[Op]chan struct{})
	m.mu.Unlock()
	for _, ch := range holds {
		close(ch)
	}
}

// Calls returns how many times op was invoked, including failed calls.
func (m *Remote) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Remote) enter(ctx context.Context, op Op, owner string) error {
	m.mu.Lock()
	m.calls[op]++
	hold := m.holds[op]
	var err error
	if q := m.once[op]; len(q) > 0 {
		err, m.once[op] = q[0], q[1:]
	} else if e, ok := m.byOwner[op][owner]; ok && e != nil {
		err = e
	} else {
		err = m.errs[op]
	}
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *Remote) FetchAll(ctx context.Context, owner string) ([]contact.Record, error) {
	if err := m.enter(ctx, OpFetchAll, owner); err != nil {
		return nil, err
	}
	return m.Inner.FetchAll(ctx, owner)
}

func (m *Remote) Get(ctx context.Context, key contact.Key) (contact.Record, error) {
	if err := m.enter(ctx, OpGet, key.Owner); err != nil {
		return contact.Record{}, err
	}
	return m.Inner.Get(ctx, key)
}

func (m *Remote) Create(ctx context.Context, owner, counterpart string, roles contact.Roles) (contact.Record, error) {
	if err := m.enter(ctx, OpCreate, owner); err != nil {
		return contact.Record{}, err
	}
	return m.Inner.Create(ctx, owner, counterpart, roles)
}

func (m *Remote) Update(ctx context.Context, key contact.Key, patch contact.Patch) (contact.Record, error) {
	if err := m.enter(ctx, OpUpdate, key.Owner); err != nil {
		return contact.Record{}, err
	}
	return m.Inner.Update(ctx, key, patch)
}

func (m *Remote) Remove(ctx context.Context, key contact.Key) error {
	if err := m.enter(ctx, OpRemove, key.Owner); err != nil {
		return err
	}
	return m.Inner.Remove(ctx, key)
}

func (m *Remote) Subscribe(ctx context.Context, owner string) (<-chan contact.Change, error) {
	if err := m.enter(ctx, OpSubscribe, owner); err != nil {
		return nil, err
	}
	return m.Inner.Subscribe(ctx, owner)
}

func (m *Remote) GetProfile(ctx context.Context, id string) (contact.Profile, error) {
	if err := m.enter(ctx, OpGetProfile, id); err != nil {
		return contact.Profile{}, err
	}
	return m.Inner.GetProfile(ctx, id)
}

func (m *Remote) PutProfile(ctx context.Context, p contact.Profile) error {
	if err := m.enter(ctx, OpPutProfile, p.ID); err != nil {
		return err
	}
	return m.Inner.PutProfile(ctx, p)
}
