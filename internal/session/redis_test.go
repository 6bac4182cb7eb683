package session

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_ussd/internal/transaction"
)

func setupRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedisStore(client, ttl), mr
}

func TestRedisStoreRoundTripsSteps(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t, time.Hour)

	order := Order{ID: "order-1", Kind: transaction.KindTransfer, Amount: decimal.RequireFromString("12.5"), Recipient: "0xabc"}
	in := &Session{
		Key:          "sess-1",
		PhoneHash:    "hash",
		Step:         Confirmation{Order: order, PIN: "1234"},
		Account:      &Account{UserID: "u1", WalletAddress: "0xdef"},
		LastInput:    "4*0801*12.5*1234",
		LastReply:    "CON Confirm",
		LastActivity: time.Now().UTC().Truncate(time.Second),
	}
	if err := store.Put(ctx, in); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	step, ok := out.Step.(Confirmation)
	if !ok {
		t.Fatalf("expected Confirmation step, got %T", out.Step)
	}
	if step.Order.ID != order.ID || !step.Order.Amount.Equal(order.Amount) || step.PIN != "1234" {
		t.Fatalf("unexpected step %+v", step)
	}
	if out.Account == nil || out.Account.WalletAddress != "0xdef" || out.LastReply != in.LastReply {
		t.Fatalf("unexpected session %+v", out)
	}

	in.Step = AmountEntry{Kind: transaction.KindWithdrawal}
	store.Put(ctx, in)
	out, _ = store.Get(ctx, "sess-1")
	if out.State() != StateWithdraw {
		t.Fatalf("expected WITHDRAW, got %s", out.State())
	}
}

func TestRedisStoreExpiresIdleSessions(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t, time.Hour)

	store.Put(ctx, &Session{Key: "k", Step: MainMenu{}})
	if n, _ := store.Len(ctx); n != 1 {
		t.Fatalf("expected 1 session, got %d", n)
	}
	mr.FastForward(time.Hour + time.Second)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisStoreLockIsExclusive(t *testing.T) {
	store, _ := setupRedisStore(t, time.Hour)

	lock, err := store.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if _, err := store.Lock(ctx, "k"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	lock.Release()
	again, err := store.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("relock after unlock: %v", err)
	}
	again.Release()
}

func TestRedisLockRenewsWhileHeld(t *testing.T) {
	store, mr := setupRedisStore(t, time.Hour)
	store.WithLockTTL(300 * time.Millisecond)

	lock, err := store.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer lock.Release()

	// Let most of the TTL elapse on the server, then give the renewer a couple of ticks.
	mr.FastForward(250 * time.Millisecond)
	time.Sleep(250 * time.Millisecond)

	if ttl := mr.TTL(redisLockPrefix + "k"); ttl <= 100*time.Millisecond {
		t.Fatalf("expected renewed lock TTL, got %s", ttl)
	}
	if !lock.Owned(context.Background()) {
		t.Fatalf("renewed lock should still be owned")
	}
}

func TestLeaseDoesNotWriteBackAfterLosingLock(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t, time.Hour)
	manager := NewManager(store)
	store.Put(ctx, &Session{Key: "k", Step: MainMenu{}, LastInput: "first"})

	lease, err := manager.Open(ctx, "k", "+2348000000000", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// The lock expired and another request took the key and stored its own state.
	mr.Del(redisLockPrefix + "k")
	mr.Set(redisLockPrefix+"k", "other-holder")
	store.Put(ctx, &Session{Key: "k", Step: MainMenu{}, LastInput: "second"})

	lease.Session.LastInput = "stale"
	if err := lease.Close(ctx); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastInput != "second" {
		t.Fatalf("stale lease overwrote the session: %q", got.LastInput)
	}
	if v, _ := mr.Get(redisLockPrefix + "k"); v != "other-holder" {
		t.Fatalf("release must not remove another holder's lock, got %q", v)
	}
}

func TestLockTTLForCoversCallTimeouts(t *testing.T) {
	if got := LockTTLFor(time.Second); got != redisLockTTL {
		t.Fatalf("short timeouts keep the default, got %s", got)
	}
	if got := LockTTLFor(60 * time.Second); got < 4*60*time.Second {
		t.Fatalf("lock must outlive four sequential calls, got %s", got)
	}
}
