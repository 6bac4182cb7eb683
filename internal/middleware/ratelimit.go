package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// TooManyRequestsReply is the USSD body returned to a throttled subscriber.
const TooManyRequestsReply = "END Too many requests. Please try again in a minute."

// hitScript counts a hit and (re)arms the window in one step, so a key can never be left without a TTL.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RateLimit caps requests per key and minute. With Redis the window is shared across instances;
// without it a per-process token bucket is used. Keyless requests are not limited.
func RateLimit(cache *redis.Client, perMinute int, key func(*fiber.Ctx) string) fiber.Handler {
	if perMinute <= 0 {
		perMinute = 30
	}
	local := NewKeyLimiter(float64(perMinute)/60, perMinute, 10*time.Minute)

	return func(c *fiber.Ctx) error {
		k := key(c)
		if k == "" {
			return c.Next()
		}

		allowed := true
		if cache != nil {
			rk := "rl:ussd:" + k
			cnt, err := hitScript.Run(c.UserContext(), cache, []string{rk}, time.Minute.Milliseconds()).Int64()
			if err != nil {
				allowed = local.Allow(k, time.Now()) // fall back to the local bucket on cache errors
			} else {
				allowed = cnt <= int64(perMinute)
			}
		} else {
			allowed = local.Allow(k, time.Now())
		}

		if !allowed {
			c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
			return c.Status(fiber.StatusOK).SendString(TooManyRequestsReply)
		}
		return c.Next()
	}
}

// KeyLimiter applies a token bucket per string key and periodically evicts idle entries.
type KeyLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byKey   map[string]*limiterEntry
	hits    uint64
	idleTTL time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyLimiter creates a key-based limiter; returns nil if args are invalid.
func NewKeyLimiter(rps float64, burst int, idleTTL time.Duration) *KeyLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &KeyLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		byKey:   make(map[string]*limiterEntry),
		idleTTL: idleTTL,
	}
}

// Allow reports whether one token can be consumed for the key at now.
func (l *KeyLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}
