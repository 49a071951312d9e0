// Package forumquery reads forum posts, categories and stats through a
// shared query cache and invalidates it after forum writes.
package forumquery

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"studiodesk/internal/apiclient"
	"studiodesk/internal/models"
	"studiodesk/internal/querycache"
	"studiodesk/internal/validation"
)

// Query kinds stored in the cache.
const (
	KindPosts      = "posts"
	KindPost       = "post"
	KindCategories = "categories"
	KindStats      = "stats"
)

// Staleness windows.
const (
	PostsTTL      = 5 * time.Minute
	CategoriesTTL = 10 * time.Minute
	StatsTTL      = 2 * time.Minute
)

// NewCache returns a cache configured with the forum staleness windows.
func NewCache(opts ...querycache.Option) *querycache.Cache {
	base := []querycache.Option{
		querycache.WithTTL(KindPosts, PostsTTL),
		querycache.WithTTL(KindPost, PostsTTL),
		querycache.WithTTL(KindCategories, CategoriesTTL),
		querycache.WithTTL(KindStats, StatsTTL),
	}
	return querycache.New(append(base, opts...)...)
}

// API is the part of the HTTP client the layer uses.
type API interface {
	ListPosts(ctx context.Context, filters models.PostFilters) (*models.PostPage, error)
	GetPost(ctx context.Context, id uint) (*models.Post, error)
	Categories(ctx context.Context) ([]models.Category, error)
	Stats(ctx context.Context) (*models.ForumStats, error)
	CreatePost(ctx context.Context, in apiclient.CreatePostInput) (*models.Post, error)
	CreateComment(ctx context.Context, in apiclient.CreateCommentInput) (*models.Comment, error)
}

// Layer serves forum reads from the cache and refetches when entries are
// missing or stale.
type Layer struct {
	api    API
	cache  *querycache.Cache
	logger *slog.Logger
}

func New(api API, cache *querycache.Cache, logger *slog.Logger) *Layer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Layer{api: api, cache: cache, logger: logger}
}

// PostsKey is the cache key of a post listing. Filters are normalized
// first so equivalent requests share an entry.
func PostsKey(filters models.PostFilters) querycache.Key {
	return querycache.NewKey(KindPosts, filters.Normalize().Values())
}

// PostKey is the cache key of one post's detail.
func PostKey(id uint) querycache.Key {
	return querycache.NewKey(KindPost, url.Values{"id": {strconv.FormatUint(uint64(id), 10)}})
}

// GetPosts returns one page of posts.
func (l *Layer) GetPosts(ctx context.Context, filters models.PostFilters) (*models.PostPage, error) {
	filters = filters.Normalize()
	key := PostsKey(filters)
	if page, ok := querycache.Get[*models.PostPage](l.cache, key); ok {
		return page, nil
	}

	page, err := l.api.ListPosts(ctx, filters)
	if err != nil {
		return nil, err
	}
	l.cache.Write(key, page)
	return page, nil
}

// GetPost returns a post with its comments.
func (l *Layer) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	key := PostKey(id)
	if post, ok := querycache.Get[*models.Post](l.cache, key); ok {
		return post, nil
	}

	post, err := l.api.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	l.cache.Write(key, post)
	return post, nil
}

func (l *Layer) Categories(ctx context.Context) ([]models.Category, error) {
	key := querycache.NewKey(KindCategories, nil)
	if categories, ok := querycache.Get[[]models.Category](l.cache, key); ok {
		return categories, nil
	}

	categories, err := l.api.Categories(ctx)
	if err != nil {
		return nil, err
	}
	l.cache.Write(key, categories)
	return categories, nil
}

func (l *Layer) Stats(ctx context.Context) (*models.ForumStats, error) {
	key := querycache.NewKey(KindStats, nil)
	if stats, ok := querycache.Get[*models.ForumStats](l.cache, key); ok {
		return stats, nil
	}

	stats, err := l.api.Stats(ctx)
	if err != nil {
		return nil, err
	}
	l.cache.Write(key, stats)
	return stats, nil
}

// CreatePost validates the draft locally, sends it, and marks listings,
// category counts and stats stale.
func (l *Layer) CreatePost(ctx context.Context, in apiclient.CreatePostInput) (*models.Post, error) {
	if err := validation.ValidatePost(in.Title, in.Body); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	post, err := l.api.CreatePost(ctx, in)
	if err != nil {
		return nil, err
	}
	n := l.cache.Invalidate(querycache.OfKind(KindPosts, KindCategories, KindStats))
	l.logger.DebugContext(ctx, "post created", slog.Uint64("post_id", uint64(post.ID)), slog.Int("invalidated", n))
	return post, nil
}

// CreateComment validates and sends a comment, then marks its post, the
// listings (comment counts feed hot rank) and stats stale.
func (l *Layer) CreateComment(ctx context.Context, in apiclient.CreateCommentInput) (*models.Comment, error) {
	if in.PostID == 0 {
		return nil, models.NewValidationError("post_id is required")
	}
	if err := validation.ValidateComment(in.Body); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	comment, err := l.api.CreateComment(ctx, in)
	if err != nil {
		return nil, err
	}
	detail := PostKey(in.PostID)
	l.cache.Invalidate(func(k querycache.Key) bool {
		return k == detail || k.Kind == KindPosts || k.Kind == KindStats
	})
	return comment, nil
}

// PostsChanged marks every post listing and detail stale. Votes call it
// after the server accepted a change in scores.
func (l *Layer) PostsChanged() {
	l.cache.Invalidate(querycache.OfKind(KindPosts, KindPost))
}
