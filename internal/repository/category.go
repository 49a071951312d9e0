package repository

import (
	"context"
	"errors"

	"studiodesk/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CategoryRepository reads and maintains forum categories.
type CategoryRepository interface {
	List(ctx context.Context, includeInactive bool) ([]models.Category, error)
	GetByID(ctx context.Context, id uint) (*models.Category, error)
	Upsert(ctx context.Context, category *models.Category) error
}

type categoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

const categorySelect = "categories.*, " +
	"(SELECT COUNT(*) FROM posts WHERE posts.category_id = categories.id AND posts.deleted_at IS NULL) AS post_count"

func (r *categoryRepository) List(ctx context.Context, includeInactive bool) ([]models.Category, error) {
	var categories []models.Category
	q := readDB(r.db).WithContext(ctx).Model(&models.Category{}).Select(categorySelect)
	if !includeInactive {
		q = q.Where("categories.active = ?", true)
	}
	if err := q.Order("categories.sort_order ASC, categories.name ASC").Find(&categories).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return categories, nil
}

func (r *categoryRepository) GetByID(ctx context.Context, id uint) (*models.Category, error) {
	var category models.Category
	err := readDB(r.db).WithContext(ctx).Model(&models.Category{}).Select(categorySelect).
		Where("categories.id = ?", id).First(&category).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Category", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &category, nil
}

// Upsert inserts the category or refreshes the existing row with the same name.
func (r *categoryRepository) Upsert(ctx context.Context, category *models.Category) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "color", "active", "sort_order", "updated_at"}),
	}).Create(category).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
