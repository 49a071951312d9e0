package repository

import (
	"context"
	"errors"

	"studiodesk/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreatorRepository stores creator models and their generated sheet links.
type CreatorRepository interface {
	GetModelByName(ctx context.Context, name string) (*models.CreatorModel, error)
	ListModels(ctx context.Context) ([]models.CreatorModel, error)
	UpsertModel(ctx context.Context, model *models.CreatorModel) error
	ListSheetLinks(ctx context.Context, modelID uint) ([]models.SheetLink, error)
	CreateSheetLink(ctx context.Context, link *models.SheetLink) error
}

type creatorRepository struct {
	db *gorm.DB
}

func NewCreatorRepository(db *gorm.DB) CreatorRepository {
	return &creatorRepository{db: db}
}

func (r *creatorRepository) GetModelByName(ctx context.Context, name string) (*models.CreatorModel, error) {
	var m models.CreatorModel
	if err := readDB(r.db).WithContext(ctx).Where("name = ?", name).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Model", name)
		}
		return nil, models.NewInternalError(err)
	}
	return &m, nil
}

func (r *creatorRepository) ListModels(ctx context.Context) ([]models.CreatorModel, error) {
	var out []models.CreatorModel
	if err := readDB(r.db).WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func (r *creatorRepository) UpsertModel(ctx context.Context, model *models.CreatorModel) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "bio", "owner_id", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListSheetLinks returns links newest first.
func (r *creatorRepository) ListSheetLinks(ctx context.Context, modelID uint) ([]models.SheetLink, error) {
	var links []models.SheetLink
	err := readDB(r.db).WithContext(ctx).
		Where("creator_model_id = ?", modelID).
		Order("created_at DESC, id DESC").
		Find(&links).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return links, nil
}

func (r *creatorRepository) CreateSheetLink(ctx context.Context, link *models.SheetLink) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Sheet link already recorded for this job")
		}
		return models.NewInternalError(err)
	}
	return nil
}
