package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiodesk/internal/models"
)

const (
	ForumPrefix          = "forum:"
	CategoriesKey        = "forum:categories"
	StatsKey             = "forum:stats"
	PostListKeyPrefix    = "forum:posts:%s"
	PostKeyPrefix        = "forum:post:%d"
	SheetLinksKeyPrefix  = "sheets:links:%s"
	UsernameKeyPrefix    = "user:%d:username"
	GenerationLockPrefix = "sheets:lock:%s"
)

// Staleness windows mirror the client query cache.
const (
	CategoriesTTL = 10 * time.Minute
	StatsTTL      = 2 * time.Minute
	PostListTTL   = 5 * time.Minute
	PostTTL       = 5 * time.Minute
	SheetLinksTTL = 5 * time.Minute
	UsernameTTL   = 10 * time.Minute
)

// PostListKey keys a list query by its canonical filter encoding.
func PostListKey(f models.PostFilters) string {
	return fmt.Sprintf(PostListKeyPrefix, f.Values().Encode())
}

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func SheetLinksKey(modelName string) string {
	return fmt.Sprintf(SheetLinksKeyPrefix, modelName)
}

func UsernameKey(userID uint) string {
	return fmt.Sprintf(UsernameKeyPrefix, userID)
}

func GenerationLockKey(modelName string) string {
	return fmt.Sprintf(GenerationLockPrefix, modelName)
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidatePrefix deletes every key starting with prefix using SCAN, so it
// never blocks Redis the way KEYS would.
func InvalidatePrefix(ctx context.Context, prefix string) error {
	if client == nil {
		return nil
	}
	iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return client.Del(ctx, batch...).Err()
	}
	return nil
}

// InvalidatePostLists drops every cached list page plus the stats summary.
func InvalidatePostLists(ctx context.Context) {
	_ = InvalidatePrefix(ctx, "forum:posts:")
	Invalidate(ctx, StatsKey)
}

// InvalidatePost drops one post's detail along with all lists and stats.
func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID))
	InvalidatePostLists(ctx)
}

// InvalidateForum drops everything under the forum namespace, categories included.
func InvalidateForum(ctx context.Context) {
	_ = InvalidatePrefix(ctx, ForumPrefix)
}

// ErrNoLocks is returned by AcquireLock when Redis is not configured.
var ErrNoLocks = errors.New("locks need redis")

// AcquireLock sets key if absent. It reports whether the caller now holds it.
func AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if client == nil {
		return false, ErrNoLocks
	}
	return client.SetNX(ctx, key, "1", ttl).Result()
}

func ReleaseLock(ctx context.Context, key string) {
	Invalidate(ctx, key)
}
