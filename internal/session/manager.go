package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/congo_ussd/internal/walletid"
)

// Bootstrap decides the starting step, and the account if one exists, for a phone opening a new session.
type Bootstrap func(ctx context.Context, phone string) (Step, *Account, error)

// Manager implements getOrCreate/touch/delete on top of a Store under the store's per-key lock.
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager wraps a store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Lease is exclusive access to one session for the duration of a request. It must be closed.
type Lease struct {
	Session *Session
	Created bool

	manager *Manager
	lock    KeyLock
	deleted bool
	closed  bool
}

// Open returns the session for key, creating it through bootstrap when the key is unseen.
// The session's lastActivity is set to now in both cases.
func (m *Manager) Open(ctx context.Context, key, phone string, bootstrap Bootstrap) (*Lease, error) {
	if key == "" {
		return nil, errors.New("session key is required")
	}
	lock, err := m.store.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	now := m.now()
	s, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		s.LastActivity = now
		return &Lease{Session: s, manager: m, lock: lock}, nil
	case !errors.Is(err, ErrNotFound):
		lock.Release()
		return nil, err
	}

	step, account, err := bootstrap(ctx, phone)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("bootstrap session: %w", err)
	}
	s = &Session{
		Key:          key,
		PhoneHash:    walletid.HashPhone(phone),
		Step:         step,
		Account:      account,
		CreatedAt:    now,
		LastActivity: now,
	}
	return &Lease{Session: s, Created: true, manager: m, lock: lock}, nil
}

// Delete removes the leased session. Close still has to be called to release the lock.
func (l *Lease) Delete(ctx context.Context) error {
	l.deleted = true
	return l.manager.store.Delete(ctx, l.Session.Key)
}

// Close persists the session with a fresh lastActivity, unless it was deleted, and releases the lock.
// A session whose lock was lost is not written back, so a newer holder's state is never overwritten.
func (l *Lease) Close(ctx context.Context) error {
	if l.closed {
		return nil
	}
	l.closed = true
	defer l.lock.Release()
	if l.deleted {
		return nil
	}
	if !l.lock.Owned(ctx) {
		return ErrLockLost
	}
	l.Session.LastActivity = l.manager.now()
	return l.manager.store.Put(ctx, l.Session)
}

// Touch refreshes lastActivity of an existing session.
func (m *Manager) Touch(ctx context.Context, key string) error {
	lock, err := m.store.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer lock.Release()
	s, err := m.store.Get(ctx, key)
	if err != nil {
		return err
	}
	s.LastActivity = m.now()
	return m.store.Put(ctx, s)
}

// Delete removes the session for key, waiting for any in-flight request on it. Missing keys are ignored.
func (m *Manager) Delete(ctx context.Context, key string) error {
	lock, err := m.store.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer lock.Release()
	return m.store.Delete(ctx, key)
}

// SweepExpired removes idle sessions as of now.
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	return m.store.SweepExpired(ctx, now)
}

// Active reports the number of stored sessions.
func (m *Manager) Active(ctx context.Context) (int, error) {
	return m.store.Len(ctx)
}

// Sweeper periodically removes expired sessions.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger
	observe  func(removed, active int)
}

// NewSweeper creates a sweeper. observe, if non-nil, is called after every pass.
func NewSweeper(manager *Manager, interval time.Duration, logger *slog.Logger, observe func(removed, active int)) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{manager: manager, interval: interval, logger: logger, observe: observe}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.manager.SweepExpired(ctx, s.manager.now())
	if err != nil {
		s.logger.Warn("session sweep failed", slog.Any("error", err))
		return
	}
	active, err := s.manager.Active(ctx)
	if err != nil {
		s.logger.Warn("session count failed", slog.Any("error", err))
	}
	if removed > 0 {
		s.logger.Debug("expired sessions removed", slog.Int("removed", removed), slog.Int("active", active))
	}
	if s.observe != nil {
		s.observe(removed, active)
	}
}
