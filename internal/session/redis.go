package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisSessionPrefix = "ussd:session:v1:"
	redisLockPrefix    = "ussd:session:lock:"
	redisLockTTL       = 30 * time.Second
	redisLockRetry     = 25 * time.Millisecond
	redisUnlockTimeout = 2 * time.Second
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// LockTTLFor sizes the session lock for requests whose collaborator calls are each bounded by
// callTimeout. A confirmation makes up to four such calls in sequence (bootstrap or record lookup,
// rail or chain call, record write, balance read), so the TTL covers that with margin and never
// drops below the default.
func LockTTLFor(callTimeout time.Duration) time.Duration {
	ttl := 4*callTimeout + 10*time.Second
	if ttl < redisLockTTL {
		return redisLockTTL
	}
	return ttl
}

// RedisStore keeps sessions in Redis so several gateway instances can share them.
// Expiry is delegated to Redis key TTLs, refreshed on every Put.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

// NewRedisStore creates a Redis-backed store. A non-positive ttl selects DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, lockTTL: redisLockTTL}
}

// WithLockTTL sets how long a session lock survives without renewal. Held locks are renewed
// every third of the TTL, so it only bounds how long a crashed holder blocks the session.
func (r *RedisStore) WithLockTTL(ttl time.Duration) *RedisStore {
	if ttl > 0 {
		r.lockTTL = ttl
	}
	return r
}

func (r *RedisStore) Lock(ctx context.Context, key string) (KeyLock, error) {
	lockKey := redisLockPrefix + key
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.lockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrLocked
			}
			return nil, fmt.Errorf("acquire session lock: %w", err)
		}
		if ok {
			l := &redisLock{
				client: r.client,
				key:    lockKey,
				token:  token,
				ttl:    r.lockTTL,
				stop:   make(chan struct{}),
				done:   make(chan struct{}),
			}
			go l.renew()
			return l, nil
		}

		timer := time.NewTimer(redisLockRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ErrLocked
		case <-timer.C:
		}
	}
}

// redisLock is a SETNX lock owned through a random token and kept alive while held.
type redisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	lost atomic.Bool
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (l *redisLock) renew() {
	defer close(l.done)
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			// transient; the next tick retries while the TTL still has two thirds left
			continue
		}
		if n == 0 {
			l.lost.Store(true)
			return
		}
	}
}

func (l *redisLock) Owned(ctx context.Context) bool {
	if l.lost.Load() {
		return false
	}
	holder, err := l.client.Get(ctx, l.key).Result()
	if err != nil {
		return false
	}
	return holder == l.token
}

func (l *redisLock) Release() {
	l.once.Do(func() {
		close(l.stop)
		<-l.done
		ctx, cancel := context.WithTimeout(context.Background(), redisUnlockTimeout)
		defer cancel()
		unlockScript.Run(ctx, l.client, []string{l.key}, l.token) // best effort; the lock expires anyway
	})
}

func (r *RedisStore) Get(ctx context.Context, key string) (*Session, error) {
	raw, err := r.client.Get(ctx, redisSessionPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.client.Set(ctx, redisSessionPrefix+s.Key, payload, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisSessionPrefix+key).Err()
}

// SweepExpired is a no-op: Redis expires idle sessions itself.
func (r *RedisStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r *RedisStore) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisSessionPrefix+"*", 500).Result()
		if err != nil {
			return 0, err
		}
		n += len(keys)
		if next == 0 {
			return n, nil
		}
		cursor = next
	}
}
