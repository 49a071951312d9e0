package repository

import (
	"context"
	"time"

	"studiodesk/internal/models"

	"gorm.io/gorm"
)

// StatsRepository aggregates forum-wide totals.
type StatsRepository interface {
	Forum(ctx context.Context) (*models.ForumStats, error)
}

type statsRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db, now: time.Now}
}

const activeAuthorsSQL = `SELECT COUNT(*) FROM (
	SELECT user_id FROM posts WHERE created_at >= ? AND deleted_at IS NULL
	UNION
	SELECT user_id FROM comments WHERE created_at >= ? AND deleted_at IS NULL
) active_authors`

// Forum counts live posts, comments, votes and members, plus distinct
// authors active in the last 24 hours.
func (r *statsRepository) Forum(ctx context.Context) (*models.ForumStats, error) {
	db := readDB(r.db).WithContext(ctx)
	stats := &models.ForumStats{}

	if err := db.Model(&models.Post{}).Count(&stats.Posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := db.Model(&models.Comment{}).Count(&stats.Comments).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := db.Model(&models.Vote{}).Count(&stats.Votes).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := db.Model(&models.User{}).Count(&stats.Members).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	since := r.now().Add(-24 * time.Hour)
	if err := db.Raw(activeAuthorsSQL, since, since).Scan(&stats.ActiveToday).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return stats, nil
}
