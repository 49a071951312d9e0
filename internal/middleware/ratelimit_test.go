package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studiodesk/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

var voteQuota = Quota{Name: "vote", Limit: 3, Window: time.Minute}

func TestLimiterBypassEnvironments(t *testing.T) {
	for _, env := range []string{"", "development", "test", "stress"} {
		ok, _, err := NewLimiter(nil, env).Allow(context.Background(), voteQuota, "user:1")
		assert.NoError(t, err, env)
		assert.True(t, ok, env)
	}

	_, _, err := NewLimiter(nil, "production").Allow(context.Background(), voteQuota, "user:1")
	assert.ErrorIs(t, err, errNoStore)
}

func TestLimiterFixedWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewLimiter(rdb, "production")
	ctx := context.Background()

	for i := 0; i < voteQuota.Limit; i++ {
		ok, _, err := l.Allow(ctx, voteQuota, "user:9")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	mr.FastForward(20 * time.Second)
	ok, wait, err := l.Allow(ctx, voteQuota, "user:9")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, wait, "the window is not extended by later hits")

	// Other subjects have their own counter.
	ok, _, err = l.Allow(ctx, voteQuota, "user:10")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(41 * time.Second)
	ok, _, err = l.Allow(ctx, voteQuota, "user:9")
	require.NoError(t, err)
	assert.True(t, ok)
}

func limitedApp(l *Limiter, q Quota) *fiber.App {
	app := fiber.New()
	app.Post("/api/forum/votes", func(c *fiber.Ctx) error {
		if c.Get("X-Test-User") != "" {
			c.Locals("userID", uint(42))
		}
		return c.Next()
	}, l.Middleware(q), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestLimiterMiddleware(t *testing.T) {
	_, rdb := newTestRedis(t)
	q := Quota{Name: "vote", Limit: 1, Window: time.Minute}
	app := limitedApp(NewLimiter(rdb, "production"), q)

	post := func(user bool) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/forum/votes", nil)
		if user {
			req.Header.Set("X-Test-User", "1")
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusOK, post(true).StatusCode)
	limited := post(true)
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.Equal(t, "60", limited.Header.Get(fiber.HeaderRetryAfter))
	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(limited.Body).Decode(&body))
	assert.Equal(t, models.CodeRateLimited, body.Code)

	assert.Equal(t, http.StatusOK, post(false).StatusCode, "anonymous callers are keyed by address")
}

func TestLimiterFailurePolicy(t *testing.T) {
	l := NewLimiter(nil, "production")

	open := limitedApp(l, Quota{Name: "vote", Limit: 1, Window: time.Minute})
	resp, err := open.Test(httptest.NewRequest(http.MethodPost, "/api/forum/votes", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	closed := limitedApp(l, Quota{Name: "login", Limit: 1, Window: time.Minute, FailClosed: true})
	resp, err = closed.Test(httptest.NewRequest(http.MethodPost, "/api/forum/votes", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
