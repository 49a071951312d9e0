package repository

import (
	"context"
	"errors"

	"studiodesk/internal/models"
	"studiodesk/internal/observability"

	"gorm.io/gorm"
)

// VoteRepository records per-user votes and keeps target counters in step.
type VoteRepository interface {
	Toggle(ctx context.Context, userID uint, targetType string, targetID uint, value int) (*models.VoteResult, error)
	UserVotes(ctx context.Context, userID uint, targetType string, targetIDs []uint) (map[uint]int, error)
	Count(ctx context.Context) (int64, error)
}

type voteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) VoteRepository {
	return &voteRepository{db: db}
}

func targetTable(targetType string) (string, bool) {
	switch targetType {
	case models.VoteTargetPost:
		return "posts", true
	case models.VoteTargetComment:
		return "comments", true
	}
	return "", false
}

// counterDelta returns the (upvotes, downvotes) change for adding (sign=1)
// or removing (sign=-1) a vote of value v.
func counterDelta(v, sign int) (int, int) {
	if v > 0 {
		return sign, 0
	}
	return 0, sign
}

// Toggle applies the vote with toggle semantics in a single transaction:
// no vote inserts, the same value removes, the opposite value flips.
// The result's Vote is the user's vote afterwards (0 = none).
func (r *voteRepository) Toggle(ctx context.Context, userID uint, targetType string, targetID uint, value int) (*models.VoteResult, error) {
	defer observability.TrackQuery("toggle", "votes")()

	table, ok := targetTable(targetType)
	if !ok {
		return nil, models.NewValidationError("target_type must be post or comment")
	}
	if value != 1 && value != -1 {
		return nil, models.NewValidationError("vote value must be 1 or -1")
	}

	result := &models.VoteResult{TargetType: targetType, TargetID: targetID}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Table(table).Where("id = ? AND deleted_at IS NULL", targetID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return models.NewNotFoundError(targetType, targetID)
		}

		var existing models.Vote
		err := tx.Where("user_id = ? AND target_type = ? AND target_id = ?", userID, targetType, targetID).
			First(&existing).Error

		up, down := 0, 0
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.Vote{
				UserID: userID, TargetType: targetType, TargetID: targetID, Value: value,
			}).Error; err != nil {
				return err
			}
			up, down = counterDelta(value, 1)
			result.Vote = value
		case err != nil:
			return err
		case existing.Value == value:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			up, down = counterDelta(value, -1)
			result.Vote = 0
		default:
			// Update writes the new value back into existing.
			previous := existing.Value
			if err := tx.Model(&existing).Update("value", value).Error; err != nil {
				return err
			}
			u1, d1 := counterDelta(previous, -1)
			u2, d2 := counterDelta(value, 1)
			up, down = u1+u2, d1+d2
			result.Vote = value
		}

		if err := tx.Table(table).Where("id = ?", targetID).Updates(map[string]any{
			"upvotes":   gorm.Expr("upvotes + ?", up),
			"downvotes": gorm.Expr("downvotes + ?", down),
		}).Error; err != nil {
			return err
		}

		var counts struct {
			Upvotes   int
			Downvotes int
		}
		if err := tx.Table(table).Select("upvotes, downvotes").Where("id = ?", targetID).Scan(&counts).Error; err != nil {
			return err
		}
		result.Upvotes, result.Downvotes = counts.Upvotes, counts.Downvotes
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		if isUniqueConstraintError(err) {
			return nil, models.NewConflictError("A concurrent vote was recorded; retry")
		}
		return nil, models.NewInternalError(err)
	}

	observability.ForumVotes.WithLabelValues(targetType, voteLabel(result.Vote)).Inc()
	return result, nil
}

func voteLabel(v int) string {
	switch {
	case v > 0:
		return "up"
	case v < 0:
		return "down"
	}
	return "none"
}

// UserVotes returns targetID -> value for the targets the user voted on.
func (r *voteRepository) UserVotes(ctx context.Context, userID uint, targetType string, targetIDs []uint) (map[uint]int, error) {
	out := make(map[uint]int, len(targetIDs))
	if userID == 0 || len(targetIDs) == 0 {
		return out, nil
	}

	var votes []models.Vote
	err := readDB(r.db).WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND target_id IN ?", userID, targetType, targetIDs).
		Find(&votes).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, v := range votes {
		out[v.TargetID] = v.Value
	}
	return out, nil
}

func (r *voteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := readDB(r.db).WithContext(ctx).Model(&models.Vote{}).Count(&n).Error
	return n, err
}
