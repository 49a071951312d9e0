package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"studiodesk/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Lookup reads key as JSON. ok is false on a miss or when the cache is
// disabled.
func Lookup[T any](ctx context.Context, key string) (v T, ok bool, err error) {
	if client == nil {
		return v, false, nil
	}
	raw, err := client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return v, false, nil
	case err != nil:
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

// Store writes v as JSON under key. It is a no-op without Redis.
func Store(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, raw, ttl).Err()
}

// Aside serves key from Redis or, on a miss, from load, storing what load
// returns for ttl. Unreadable entries count as misses and Redis errors
// never fail the call.
func Aside[T any](ctx context.Context, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	family := keyFamily(key)
	if v, ok, err := Lookup[T](ctx, key); err == nil && ok {
		observability.CacheLookups.WithLabelValues(family, "hit").Inc()
		return v, nil
	}
	observability.CacheLookups.WithLabelValues(family, "miss").Inc()

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	_ = Store(ctx, key, v, ttl)
	return v, nil
}

// keyFamily is the metric label for a key: "forum:post:42" -> "forum:post".
func keyFamily(key string) string {
	head, rest, _ := strings.Cut(key, ":")
	if second, _, _ := strings.Cut(rest, ":"); second != "" {
		return head + ":" + second
	}
	return head
}
