// Package middleware provides HTTP middleware shared by the API server:
// structured logging, metrics, tracing, token parsing and rate limiting.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"studiodesk/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var errNoStore = errors.New("rate limit store unavailable")

// Quota is a fixed-window allowance for one action.
type Quota struct {
	Name   string
	Limit  int
	Window time.Duration
	// FailClosed rejects requests with 503 while Redis is unreachable.
	// The default lets them through.
	FailClosed bool
}

// Limiter counts requests per quota and subject in Redis. Counters are
// shared by every API instance.
type Limiter struct {
	rdb    *redis.Client
	bypass bool
}

// NewLimiter builds a limiter. Development, test and stress environments
// are never throttled.
func NewLimiter(rdb *redis.Client, env string) *Limiter {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "development", "test", "stress":
		return &Limiter{rdb: rdb, bypass: true}
	}
	return &Limiter{rdb: rdb}
}

func quotaKey(q Quota, subject string) string {
	return "rl:" + q.Name + ":" + subject
}

// Allow counts one request by subject against q. When the quota is spent
// it reports how long until the window resets.
func (l *Limiter) Allow(ctx context.Context, q Quota, subject string) (bool, time.Duration, error) {
	if l.bypass {
		return true, 0, nil
	}
	if l.rdb == nil {
		return false, 0, errNoStore
	}

	key := quotaKey(q, subject)
	var count *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, q.Window)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	if count.Val() <= int64(q.Limit) {
		return true, 0, nil
	}
	wait := ttl.Val()
	if wait <= 0 {
		wait = q.Window
	}
	return false, wait, nil
}

// subject keys signed-in users by id and everyone else by address.
func subject(c *fiber.Ctx) string {
	if uid, ok := c.Locals("userID").(uint); ok && uid != 0 {
		return "user:" + strconv.FormatUint(uint64(uid), 10)
	}
	return "ip:" + c.IP()
}

// Middleware enforces q on a route.
func (l *Limiter) Middleware(q Quota) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ok, wait, err := l.Allow(c.UserContext(), q, subject(c))
		if err != nil {
			if !q.FailClosed {
				return c.Next()
			}
			Logger.WarnContext(c.UserContext(), "rate limit store down, rejecting",
				slog.String("quota", q.Name), slog.String("error", err.Error()))
			return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
				Error: "Service temporarily unavailable",
				Code:  models.CodeInternal,
			})
		}
		if !ok {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(wait.Round(time.Second).Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later",
				Code:  models.CodeRateLimited,
			})
		}
		return c.Next()
	}
}
