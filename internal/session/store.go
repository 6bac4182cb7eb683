package session

import (
	"context"
	"time"
)

// Store keeps sessions keyed by session id. Callers must hold the key's lock (see Lock) around
// Get/Put/Delete so that at most one request mutates a session at a time.
type Store interface {
	// Lock blocks until the key is exclusively held or ctx ends.
	Lock(ctx context.Context, key string) (KeyLock, error)
	Get(ctx context.Context, key string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	// Delete removes the session. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
	// SweepExpired removes sessions idle longer than the store's TTL at now and reports how many.
	// A session whose lock is currently held is skipped.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	// Len reports how many sessions are stored.
	Len(ctx context.Context) (int, error)
}

// KeyLock is exclusive access to one session key.
type KeyLock interface {
	// Owned reports whether the lock is still held. A distributed lock can be lost if its
	// holder stalls past the lock TTL, after which the session must not be written back.
	Owned(ctx context.Context) bool
	// Release gives the key up. Calling it more than once is a no-op.
	Release()
}
