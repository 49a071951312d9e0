package repository

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"studiodesk/internal/models"
	"studiodesk/internal/observability"

	"gorm.io/gorm"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context, filters models.PostFilters) (*models.PostPage, error)
	SetPinned(ctx context.Context, id uint, pinned bool) error
	SetLocked(ctx context.Context, id uint, locked bool) error
	Delete(ctx context.Context, id uint) error
}

type postRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db, now: time.Now}
}

// likeEscaper keeps search text literal inside LIKE ... ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// hotRankSQL mirrors HotRank for PostgreSQL ordering.
const hotRankSQL = "(posts.upvotes - posts.downvotes + posts.comment_count * 2.0) / " +
	"POWER(EXTRACT(EPOCH FROM (NOW() - posts.created_at)) / 3600.0 + 2, 1.5) DESC"

// HotRank scores a post for the "hot" sort: net votes plus weighted comments,
// decayed by age in hours.
func HotRank(p *models.Post, now time.Time) float64 {
	ageHours := now.Sub(p.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	points := float64(p.Upvotes-p.Downvotes) + float64(p.CommentCount)*2
	return points / math.Pow(ageHours+2, 1.5)
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery("create", "posts")()
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	defer observability.TrackQuery("get", "posts")()
	ctx, span := observability.StartRepositorySpan(ctx, "PostRepository.GetByID", "posts")
	defer span.End()

	var post models.Post
	err := readDB(r.db).WithContext(ctx).
		Preload("User").
		Preload("Category").
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.created_at ASC, comments.id ASC")
		}).
		Preload("Comments.User").
		First(&post, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}

	attachPostAuthor(&post)
	for i := range post.Comments {
		attachCommentAuthor(&post.Comments[i])
	}
	return &post, nil
}

// List applies filters and sort. Pinned posts lead every sort order.
func (r *postRepository) List(ctx context.Context, filters models.PostFilters) (*models.PostPage, error) {
	defer observability.TrackQuery("list", "posts")()
	ctx, span := observability.StartRepositorySpan(ctx, "PostRepository.List", "posts")
	defer span.End()

	f := filters.Normalize()
	db := readDB(r.db)

	base := db.WithContext(ctx).Model(&models.Post{})
	if f.CategoryID != nil {
		base = base.Where("posts.category_id = ?", *f.CategoryID)
	}
	if f.GeneralOnly {
		base = base.Where("(posts.model_name IS NULL OR posts.model_name = '')")
	} else if f.ModelName != "" {
		base = base.Where("posts.model_name = ?", f.ModelName)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
		base = base.Where(`(LOWER(posts.title) LIKE ? ESCAPE '\' OR LOWER(posts.body) LIKE ? ESCAPE '\')`, like, like)
	}
	base = base.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	page := &models.PostPage{Page: f.Page, PageSize: f.PageSize, Total: total}

	var posts []models.Post
	var err error
	if f.Sort == models.SortHot && !isPostgres(db) {
		posts, err = r.listHotInMemory(base, f)
	} else {
		q := base.Preload("User").Preload("Category").Order("posts.pinned DESC")
		switch f.Sort {
		case models.SortHot:
			q = q.Order(hotRankSQL)
		case models.SortTop:
			q = q.Order("(posts.upvotes - posts.downvotes) DESC").Order("posts.created_at DESC")
		default:
			q = q.Order("posts.created_at DESC")
		}
		err = q.Order("posts.id DESC").Limit(f.PageSize).Offset(f.Offset()).Find(&posts).Error
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	for i := range posts {
		attachPostAuthor(&posts[i])
	}
	if posts == nil {
		posts = []models.Post{}
	}
	page.Posts = posts
	page.HasMore = int64(f.Offset()+len(posts)) < total
	return page, nil
}

// listHotInMemory ranks in Go for dialects without POWER/EXTRACT (SQLite).
func (r *postRepository) listHotInMemory(base *gorm.DB, f models.PostFilters) ([]models.Post, error) {
	var all []models.Post
	if err := base.Preload("User").Preload("Category").Find(&all).Error; err != nil {
		return nil, err
	}

	now := r.now()
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Pinned != all[j].Pinned {
			return all[i].Pinned
		}
		ri, rj := HotRank(&all[i], now), HotRank(&all[j], now)
		if ri != rj {
			return ri > rj
		}
		return all[i].ID > all[j].ID
	})

	start := f.Offset()
	if start >= len(all) {
		return []models.Post{}, nil
	}
	end := start + f.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *postRepository) SetPinned(ctx context.Context, id uint, pinned bool) error {
	return r.setFlag(ctx, id, "pinned", pinned)
}

func (r *postRepository) SetLocked(ctx context.Context, id uint, locked bool) error {
	return r.setFlag(ctx, id, "locked", locked)
}

func (r *postRepository) setFlag(ctx context.Context, id uint, column string, value bool) error {
	res := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

// Delete soft-deletes the post; comments and votes stay for audit.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

func authorOf(u *models.User) *models.AuthorSummary {
	if u == nil || u.ID == 0 {
		return nil
	}
	return &models.AuthorSummary{ID: u.ID, Username: u.Handle(), Avatar: u.Avatar}
}

func attachPostAuthor(p *models.Post) {
	p.Author = authorOf(&p.User)
}

func attachCommentAuthor(c *models.Comment) {
	c.Author = authorOf(&c.User)
}
