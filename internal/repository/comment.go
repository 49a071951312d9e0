package repository

import (
	"context"
	"errors"

	"studiodesk/internal/models"
	"studiodesk/internal/observability"

	"gorm.io/gorm"
)

// CommentRepository stores comments. Comments are flat per post; replies
// are linked by ParentID and ordered by the caller.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByPost(ctx context.Context, postID uint) ([]models.Comment, error)
}

type commentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

// Create stores the comment and bumps posts.comment_count atomically.
func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	defer observability.TrackQuery("create", "comments")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		bump := gorm.Expr("comment_count + ?", 1)
		return tx.Model(&models.Post{}).Where("id = ?", comment.PostID).UpdateColumn("comment_count", bump).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// withAuthors reads from the replica and loads each comment's user.
func (r *commentRepository) withAuthors(ctx context.Context) *gorm.DB {
	return readDB(r.db).WithContext(ctx).Preload("User")
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	defer observability.TrackQuery("get", "comments")()

	var c models.Comment
	err := r.withAuthors(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Comment", id)
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	attachCommentAuthor(&c)
	return &c, nil
}

// ListByPost returns the thread oldest first.
func (r *commentRepository) ListByPost(ctx context.Context, postID uint) ([]models.Comment, error) {
	defer observability.TrackQuery("list", "comments")()

	var thread []models.Comment
	err := r.withAuthors(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&thread).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	for i := range thread {
		attachCommentAuthor(&thread[i])
	}
	return thread, nil
}
