package remote

import (
	"context"
	"sync"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

// MemoryRepository is an in-process Repository shared by every session
// in the process. Scenario runs and tests use it as the "server".
//
// Thread-safety: All methods are safe for concurrent use.
type MemoryRepository struct {
	mu       sync.RWMutex
	records  map[string]map[string]contact.Record
	profiles map[string]contact.Profile
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records:  make(map[string]map[string]contact.Record),
		profiles: make(map[string]contact.Profile),
	}
}

func (m *MemoryRepository) List(_ context.Context, owner string) ([]contact.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]contact.Record, 0, len(m.records[owner]))
	for _, r := range m.records[owner] {
		out = append(out, r)
	}
	contact.SortRecords(out)
	return out, nil
}

func (m *MemoryRepository) Get(_ context.Context, key contact.Key) (contact.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[key.Owner][key.Counterpart]
	if !ok {
		return contact.Record{}, contact.NewNotFound("get", key.Counterpart)
	}
	return r, nil
}

func (m *MemoryRepository) Insert(_ context.Context, r contact.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.records[r.Owner]
	if !ok {
		set = make(map[string]contact.Record)
		m.records[r.Owner] = set
	}
	if _, taken := set[r.ID]; taken {
		return contact.NewAlreadyExists("create", r.ID)
	}
	set[r.ID] = r
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, key contact.Key, fn func(contact.Record) (contact.Record, error)) (contact.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key.Owner][key.Counterpart]
	if !ok {
		return contact.Record{}, contact.NewNotFound("update", key.Counterpart)
	}
	updated, err := fn(r)
	if err != nil {
		return contact.Record{}, err
	}
	m.records[key.Owner][key.Counterpart] = updated
	return updated, nil
}

func (m *MemoryRepository) Delete(_ context.Context, key contact.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key.Owner][key.Counterpart]; !ok {
		return contact.NewNotFound("remove", key.Counterpart)
	}
	delete(m.records[key.Owner], key.Counterpart)
	return nil
}

func (m *MemoryRepository) GetProfile(_ context.Context, id string) (contact.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return contact.Profile{}, contact.NewNotFound("get_profile", id)
	}
	return p, nil
}

func (m *MemoryRepository) PutProfile(_ context.Context, p contact.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return nil
}

// MemoryFeed fans changes out to in-process subscribers.
//
// A subscriber whose buffer is full is disconnected rather than blocking
// the publisher; it sees its channel close and resubscribes.
type MemoryFeed struct {
	mu     sync.Mutex
	subs   map[string]map[int]*memorySub
	nextID int
	buffer int
}

var _ Feed = (*MemoryFeed)(nil)

type memorySub struct {
	ch   chan contact.Change
	done chan struct{}
	once sync.Once
}

func (s *memorySub) close() {
	s.once.Do(func() {
		close(s.done)
		close(s.ch)
	})
}

// NewMemoryFeed creates a feed whose subscribers buffer up to buffer changes.
func NewMemoryFeed(buffer int) *MemoryFeed {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryFeed{
		subs:   make(map[string]map[int]*memorySub),
		buffer: buffer,
	}
}

// Publish delivers ch to every current subscriber of owner.
func (f *MemoryFeed) Publish(_ context.Context, owner string, ch contact.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sub := range f.subs[owner] {
		select {
		case sub.ch <- ch:
		default:
			sub.close()
			delete(f.subs[owner], id)
		}
	}
	return nil
}

// Subscribe registers a subscriber for owner's changes.
func (f *MemoryFeed) Subscribe(ctx context.Context, owner string) (<-chan contact.Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memorySub{
		ch:   make(chan contact.Change, f.buffer),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	if f.subs[owner] == nil {
		f.subs[owner] = make(map[int]*memorySub)
	}
	f.subs[owner][id] = sub
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
		}
		f.mu.Lock()
		delete(f.subs[owner], id)
		sub.close()
		f.mu.Unlock()
	}()
	return sub.ch, nil
}

// Disconnect drops every subscriber of owner, as a lost connection would.
func (f *MemoryFeed) Disconnect(owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sub := range f.subs[owner] {
		sub.close()
		delete(f.subs[owner], id)
	}
}

// Subscribers reports how many live subscribers owner has.
func (f *MemoryFeed) Subscribers(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[owner])
}

// NewMemory returns a Service backed by a fresh in-memory repository and
// feed, plus the feed for tests that need to simulate disconnects.
func NewMemory(opts ...Option) (*Service, *MemoryFeed) {
	feed := NewMemoryFeed(0)
	return New(NewMemoryRepository(), feed, opts...), feed
}
