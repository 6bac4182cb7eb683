package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	replayPrefix     = "ussd:replay:v1:"
	inProgressMarker = "__in_progress__"
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Replay answers a re-delivered request from the response stored in Redis for the same key, so a
// gateway retry never reaches the handler twice. Requests with an empty key pass through. Cache
// failures fail open: the gateway must always get an answer.
func Replay(cache *redis.Client, ttl time.Duration, key func(*fiber.Ctx) string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || c.Method() != fiber.MethodPost {
			return c.Next()
		}
		k := key(c)
		if k == "" {
			return c.Next()
		}
		cacheKey := replayPrefix + k

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil && cached != inProgressMarker:
			var stored storedResponse
			decodeErr := json.Unmarshal([]byte(cached), &stored)
			if decodeErr == nil {
				for header, value := range stored.Headers {
					if strings.EqualFold(header, fiber.HeaderContentLength) {
						continue
					}
					c.Set(header, value)
				}
				return c.Status(stored.Status).SendString(stored.Body)
			}
			logger.Warn("failed to decode stored replay response", slog.Any("error", decodeErr))
		case err == nil:
			// the first delivery is still running; the session lock serialises us behind it
			return c.Next()
		case !errors.Is(err, redis.Nil):
			logger.Warn("replay lookup failed", slog.Any("error", err))
			return c.Next()
		}

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Warn("replay reservation failed", slog.Any("error", err))
			return c.Next()
		}

		if err := c.Next(); err != nil {
			if reserved {
				cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				cache.Del(cleanupCtx, cacheKey) // best effort cleanup
			}
			return err
		}

		stored := storedResponse{
			Status:  c.Response().StatusCode(),
			Body:    string(c.Response().Body()),
			Headers: map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})

		payload, err := json.Marshal(stored)
		if err != nil {
			logger.Warn("failed to encode replay response", slog.Any("error", err))
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Warn("failed to persist replay response", slog.Any("error", err))
		}
		return nil
	}
}
