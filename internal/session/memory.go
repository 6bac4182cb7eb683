package session

import (
	"context"
	"sync"
	"time"
)

// entry guards one session key. lock is a one-slot semaphore so waiters can honour ctx and the
// sweeper can try-acquire without blocking.
type entry struct {
	lock    chan struct{}
	session *Session
	dead    bool
}

// MemoryStore is an in-process Store. Requests for different keys never contend on the same lock.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
}

// NewMemoryStore creates an in-process store. A non-positive ttl selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{entries: make(map[string]*entry), ttl: ttl}
}

func (m *MemoryStore) entry(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{lock: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	return e
}

type memoryLock struct {
	store *MemoryStore
	key   string
	e     *entry
	once  sync.Once
}

// Owned is always true: in-process locks do not expire.
func (l *memoryLock) Owned(context.Context) bool { return true }

func (l *memoryLock) Release() {
	l.once.Do(func() { l.store.unlock(l.key, l.e) })
}

func (m *MemoryStore) Lock(ctx context.Context, key string) (KeyLock, error) {
	for {
		e := m.entry(key)
		select {
		case e.lock <- struct{}{}:
		case <-ctx.Done():
			return nil, ErrLocked
		}

		m.mu.Lock()
		dead := e.dead
		m.mu.Unlock()
		if dead {
			// removed by the sweeper or an unlock while we waited; retry on a fresh entry
			<-e.lock
			continue
		}
		return &memoryLock{store: m, key: key, e: e}, nil
	}
}

func (m *MemoryStore) unlock(key string, e *entry) {
	m.mu.Lock()
	if e.session == nil && m.entries[key] == e {
		delete(m.entries, key)
		e.dead = true
	}
	m.mu.Unlock()
	<-e.lock
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.session == nil {
		return nil, ErrNotFound
	}
	return e.session.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[s.Key]
	if !ok {
		e = &entry{lock: make(chan struct{}, 1)}
		m.entries[s.Key] = e
	}
	e.session = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.session = nil
	}
	return nil
}

func (m *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	candidates := make(map[string]*entry, len(m.entries))
	for key, e := range m.entries {
		candidates[key] = e
	}
	m.mu.Unlock()

	removed := 0
	for key, e := range candidates {
		select {
		case e.lock <- struct{}{}:
		default:
			continue
		}
		m.mu.Lock()
		if !e.dead && e.session != nil && e.session.Expired(now, m.ttl) && m.entries[key] == e {
			delete(m.entries, key)
			e.dead = true
			e.session = nil
			removed++
		}
		m.mu.Unlock()
		<-e.lock
	}
	return removed, nil
}

func (m *MemoryStore) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.session != nil {
			n++
		}
	}
	return n, nil
}
