package middleware

import (
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/congo_ussd/internal/logging"
	"github.com/congo-pay/congo_ussd/internal/walletid"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return cache
}

func ussdForm(session, phone, text string) string {
	return url.Values{"sessionId": {session}, "phoneNumber": {phone}, "text": {text}}.Encode()
}

func post(t *testing.T, app *fiber.App, body string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/ussd", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload), resp.Header.Get(requestIDHeader)
}

func TestReplayReturnsStoredResponse(t *testing.T) {
	cache := setupRedis(t)
	calls := 0
	app := fiber.New()
	app.Use(Replay(cache, time.Minute, USSDRequestKey, logging.Discard()))
	app.Post("/ussd", func(c *fiber.Ctx) error {
		calls++
		return c.SendString("CON call " + strings.Repeat("x", calls))
	})

	_, first, _ := post(t, app, ussdForm("s1", "+234", "1"))
	_, second, _ := post(t, app, ussdForm("s1", "+234", "1"))
	if first != second || calls != 1 {
		t.Fatalf("expected cached reply, calls=%d first=%q second=%q", calls, first, second)
	}

	post(t, app, ussdForm("s1", "+234", "1*2"))
	if calls != 2 {
		t.Fatalf("new text must reach the handler, calls=%d", calls)
	}
}

func TestReplayPassesThroughWithoutKey(t *testing.T) {
	cache := setupRedis(t)
	calls := 0
	app := fiber.New()
	app.Use(Replay(cache, time.Minute, USSDRequestKey, logging.Discard()))
	app.Post("/ussd", func(c *fiber.Ctx) error {
		calls++
		return c.SendString("ok")
	})

	post(t, app, "garbage")
	post(t, app, "garbage")
	if calls != 2 {
		t.Fatalf("requests without a key are not cached, calls=%d", calls)
	}
}

func TestRateLimitWithRedis(t *testing.T) {
	cache := setupRedis(t)
	app := fiber.New()
	app.Use(RateLimit(cache, 2, USSDPhoneKey))
	app.Post("/ussd", func(c *fiber.Ctx) error { return c.SendString("CON ok") })

	for i := 0; i < 2; i++ {
		if _, body, _ := post(t, app, ussdForm("s", "+2341", "")); body != "CON ok" {
			t.Fatalf("request %d should pass, got %q", i, body)
		}
	}
	status, body, _ := post(t, app, ussdForm("s", "+2341", ""))
	if status != fiber.StatusOK || body != TooManyRequestsReply {
		t.Fatalf("expected throttled END reply, got %d %q", status, body)
	}
	if _, body, _ := post(t, app, ussdForm("s", "+2342", "")); body != "CON ok" {
		t.Fatalf("other phones are not throttled, got %q", body)
	}
}

func TestRateLimitWindowAlwaysExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Use(RateLimit(cache, 2, USSDPhoneKey))
	app.Post("/ussd", func(c *fiber.Ctx) error { return c.SendString("CON ok") })

	key := "rl:ussd:" + walletid.HashPhone("+2341")
	post(t, app, ussdForm("s", "+2341", ""))
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("first hit must open a one minute window, ttl=%s", ttl)
	}

	// A counter left without a TTL (e.g. a lost EXPIRE) is re-armed on the next hit.
	mr.Del(key)
	mr.Set(key, "5")
	if _, body, _ := post(t, app, ussdForm("s", "+2341", "")); body != TooManyRequestsReply {
		t.Fatalf("expected throttled reply, got %q", body)
	}
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("stuck counter was not given a TTL")
	}
	mr.FastForward(time.Minute + time.Second)
	if _, body, _ := post(t, app, ussdForm("s", "+2341", "")); body != "CON ok" {
		t.Fatalf("subscriber must be released after the window, got %q", body)
	}
}

func TestRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimit(nil, 1, USSDPhoneKey))
	app.Post("/ussd", func(c *fiber.Ctx) error { return c.SendString("CON ok") })

	post(t, app, ussdForm("s", "+2341", ""))
	if _, body, _ := post(t, app, ussdForm("s", "+2341", "")); body != TooManyRequestsReply {
		t.Fatalf("expected local bucket to throttle, got %q", body)
	}
}

func TestKeyLimiterRefills(t *testing.T) {
	l := NewKeyLimiter(1, 1, time.Minute)
	now := time.Now()
	if !l.Allow("a", now) || l.Allow("a", now) {
		t.Fatalf("burst of one expected")
	}
	if !l.Allow("a", now.Add(time.Second)) {
		t.Fatalf("bucket should refill after a second")
	}
	if NewKeyLimiter(0, 1, 0) != nil {
		t.Fatalf("invalid rate should yield nil limiter")
	}
	var nilLimiter *KeyLimiter
	if !nilLimiter.Allow("a", now) {
		t.Fatalf("nil limiter allows everything")
	}
}

func TestRequestIDIsKeptOrAssigned(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Audit(logging.Discard()))
	app.Post("/ussd", func(c *fiber.Ctx) error { return c.SendString(RequestIDFrom(c)) })

	_, body, header := post(t, app, ussdForm("s", "1", ""))
	if body == "" || header != body {
		t.Fatalf("expected generated request id echoed in header, body=%q", body)
	}

	req := httptest.NewRequest(fiber.MethodPost, "/ussd", nil)
	req.Header.Set(requestIDHeader, "gw-123")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	payload, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(payload) != "gw-123" {
		t.Fatalf("gateway request id should be kept, got %q", payload)
	}
}
