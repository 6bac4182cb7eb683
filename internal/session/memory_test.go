package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreSweepRespectsTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	store.Put(ctx, &Session{Key: "stale", Step: MainMenu{}, LastActivity: now.Add(-time.Hour - time.Second)})
	store.Put(ctx, &Session{Key: "edge", Step: MainMenu{}, LastActivity: now.Add(-time.Hour)})
	store.Put(ctx, &Session{Key: "fresh", Step: MainMenu{}, LastActivity: now.Add(-time.Minute)})

	removed, err := store.SweepExpired(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := store.Get(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale session should be gone, got %v", err)
	}
	for _, key := range []string{"edge", "fresh"} {
		if _, err := store.Get(ctx, key); err != nil {
			t.Fatalf("%s should survive: %v", key, err)
		}
	}
}

func TestMemoryStoreSweepSkipsLockedSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	now := time.Now()

	lock, err := store.Lock(ctx, "busy")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	store.Put(ctx, &Session{Key: "busy", Step: MainMenu{}, LastActivity: now.Add(-2 * time.Hour)})

	removed, _ := store.SweepExpired(ctx, now)
	if removed != 0 {
		t.Fatalf("locked session must not be swept")
	}
	if _, err := store.Get(ctx, "busy"); err != nil {
		t.Fatalf("session should still exist: %v", err)
	}
	lock.Release()

	removed, _ = store.SweepExpired(ctx, now)
	if removed != 1 {
		t.Fatalf("expected sweep after unlock, got %d", removed)
	}
}

func TestMemoryStoreLockSerialisesKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	store.Put(ctx, &Session{Key: "k", Step: MainMenu{}, LastActivity: time.Now()})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := store.Lock(ctx, "k")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			lock.Release()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxSeen)
	}
}

func TestMemoryStoreLockHonoursContext(t *testing.T) {
	store := NewMemoryStore(0)
	lock, err := store.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer lock.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := store.Lock(ctx, "k"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	other, err := store.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("different keys must not contend: %v", err)
	}
	other.Release()
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	store.Put(ctx, &Session{Key: "k", Step: MainMenu{}})
	store.Delete(ctx, "k")
	store.Delete(ctx, "k")
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := store.Len(ctx); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
}
