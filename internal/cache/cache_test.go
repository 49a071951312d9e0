package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"studiodesk/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	Use(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		_ = client.Close()
		Use(nil)
	})
	return mr
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStoreAndLookup(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, Store(ctx, "forum:test", payload{Name: "rig", Count: 3}, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("forum:test"))

	got, ok, err := Lookup[payload](ctx, "forum:test")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload{Name: "rig", Count: 3}, got)

	_, ok, err = Lookup[payload](ctx, "forum:missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAsideLoadsOnceUntilExpiry(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (payload, error) {
		calls++
		return payload{Name: "stats", Count: calls}, nil
	}

	first, err := Aside(ctx, StatsKey, StatsTTL, load)
	require.NoError(t, err)
	second, err := Aside(ctx, StatsKey, StatsTTL, load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	mr.FastForward(StatsTTL + time.Second)

	third, err := Aside(ctx, StatsKey, StatsTTL, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, third.Count)
}

func TestAsideReplacesCorruptEntry(t *testing.T) {
	mr := setupMiniredis(t)
	require.NoError(t, mr.Set(StatsKey, "{not json"))

	got, err := Aside(context.Background(), StatsKey, StatsTTL, func(context.Context) (payload, error) {
		return payload{Name: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Name)

	raw, err := mr.Get(StatsKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"fresh","count":0}`, raw)
}

func TestAsidePropagatesLoadError(t *testing.T) {
	mr := setupMiniredis(t)
	_, err := Aside(context.Background(), CategoriesKey, CategoriesTTL, func(context.Context) ([]payload, error) {
		return nil, errors.New("db down")
	})
	assert.EqualError(t, err, "db down")
	assert.False(t, mr.Exists(CategoriesKey))
}

func TestAsideWithoutRedis(t *testing.T) {
	Use(nil)
	calls := 0
	for range 2 {
		_, err := Aside(context.Background(), StatsKey, StatsTTL, func(context.Context) (payload, error) {
			calls++
			return payload{}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestKeyFamily(t *testing.T) {
	assert.Equal(t, "forum:post", keyFamily("forum:post:42"))
	assert.Equal(t, "forum:stats", keyFamily("forum:stats"))
	assert.Equal(t, "plain", keyFamily("plain"))
}

func TestInvalidatePostLeavesCategories(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	listKey := PostListKey(models.PostFilters{Sort: models.SortNew, Page: 1})
	for _, k := range []string{CategoriesKey, StatsKey, listKey, PostKey(4), PostKey(5)} {
		require.NoError(t, mr.Set(k, "{}"))
	}

	InvalidatePost(ctx, 4)

	assert.True(t, mr.Exists(CategoriesKey))
	assert.True(t, mr.Exists(PostKey(5)))
	assert.False(t, mr.Exists(PostKey(4)))
	assert.False(t, mr.Exists(listKey))
	assert.False(t, mr.Exists(StatsKey))

	InvalidateForum(ctx)
	assert.False(t, mr.Exists(CategoriesKey))
	assert.False(t, mr.Exists(PostKey(5)))
}

func TestPostListKeyIsCanonical(t *testing.T) {
	a := models.PostFilters{Sort: models.SortTop, Search: "lens", Page: 2}
	b := models.PostFilters{Page: 2, Search: "lens", Sort: models.SortTop}
	assert.Equal(t, PostListKey(a), PostListKey(b))
	assert.NotEqual(t, PostListKey(a), PostListKey(models.PostFilters{Sort: models.SortTop, Page: 3}))
}

func TestAcquireLock(t *testing.T) {
	setupMiniredis(t)
	ctx := context.Background()
	key := GenerationLockKey("aria")

	ok, err := AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ReleaseLock(ctx, key)
	ok, err = AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireLockWithoutRedis(t *testing.T) {
	Use(nil)
	ok, err := AcquireLock(context.Background(), GenerationLockKey("aria"), time.Minute)
	assert.ErrorIs(t, err, ErrNoLocks)
	assert.False(t, ok)
}

func TestConnectAcceptsURLAndAddr(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Cleanup(func() { Use(nil) })

	for _, addr := range []string{mr.Addr(), "redis://" + mr.Addr() + "/0"} {
		c, err := Connect(context.Background(), addr)
		require.NoError(t, err, addr)
		assert.Same(t, c, Client())
		_ = c.Close()
	}

	_, err := Connect(context.Background(), "redis://%zz")
	assert.ErrorContains(t, err, "parse redis url")
}

func TestConnectOptionalDisablesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	assert.Nil(t, ConnectOptional(context.Background(), addr))
	assert.Nil(t, Client())

	_, ok, err := Lookup[payload](context.Background(), "forum:any")
	require.NoError(t, err)
	assert.False(t, ok)
}
