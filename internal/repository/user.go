package repository

import (
	"context"
	"errors"
	"fmt"

	"studiodesk/internal/models"

	"gorm.io/gorm"
)

// UserRepository reads and mutates member accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	// GetByEmail and GetByUsername return (nil, nil) on a miss.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	SetUsername(ctx context.Context, id uint, username string) error
	SetAdmin(ctx context.Context, id uint, admin bool) error
	ListAdmins(ctx context.Context) ([]models.User, error)
	EnsureRoot(ctx context.Context, root RootAccount) (created bool, err error)
}

// RootAccount describes the administrator pinned to user ID 1.
type RootAccount struct {
	Username     string
	Email        string
	PasswordHash string
	// Overwrite replaces the credentials of an existing user 1.
	Overwrite bool
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns the gorm-backed UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// lookupUser runs q against the read replica. found is false on a miss.
func lookupUser(ctx context.Context, db *gorm.DB, q func(*gorm.DB) *gorm.DB) (*models.User, bool, error) {
	var u models.User
	err := q(readDB(db).WithContext(ctx)).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, models.NewInternalError(err)
	}
	return &u, true, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	u, ok, err := lookupUser(ctx, r.db, func(tx *gorm.DB) *gorm.DB { return tx.Where("id = ?", id) })
	if err == nil && !ok {
		err = models.NewNotFoundError("User", id)
	}
	return u, err
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, _, err := lookupUser(ctx, r.db, func(tx *gorm.DB) *gorm.DB { return tx.Where("email = ?", email) })
	return u, err
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u, _, err := lookupUser(ctx, r.db, func(tx *gorm.DB) *gorm.DB { return tx.Where("username = ?", username) })
	return u, err
}

// updateColumn writes one column of user id. Unique index violations come
// back as conflicts so concurrent username claims have exactly one winner.
func (r *userRepository) updateColumn(ctx context.Context, id uint, column string, value any, conflictMsg string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update(column, value)
	switch {
	case res.Error != nil && conflictMsg != "" && isUniqueConstraintError(res.Error):
		return models.NewConflictError(conflictMsg)
	case res.Error != nil:
		return models.NewInternalError(res.Error)
	case res.RowsAffected == 0:
		return models.NewNotFoundError("User", id)
	}
	return nil
}

func (r *userRepository) SetUsername(ctx context.Context, id uint, username string) error {
	return r.updateColumn(ctx, id, "username", username, "Username is already taken")
}

func (r *userRepository) SetAdmin(ctx context.Context, id uint, admin bool) error {
	return r.updateColumn(ctx, id, "is_admin", admin, "")
}

func (r *userRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	var admins []models.User
	err := readDB(r.db).WithContext(ctx).
		Where("is_admin = ?", true).
		Order("id ASC").
		Find(&admins).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return admins, nil
}

// EnsureRoot creates user 1 as an administrator, or promotes the existing
// user 1. On Postgres the id sequence is moved past the explicit insert.
func (r *userRepository) EnsureRoot(ctx context.Context, root RootAccount) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.User
		err := tx.Select("id").First(&existing, 1).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			username := root.Username
			u := models.User{
				ID:          1,
				Username:    &username,
				Email:       root.Email,
				DisplayName: "Studio Root",
				Password:    root.PasswordHash,
				IsAdmin:     true,
			}
			if err := tx.Create(&u).Error; err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			fields := map[string]any{"is_admin": true}
			if root.Overwrite {
				fields["username"] = root.Username
				fields["email"] = root.Email
				fields["password"] = root.PasswordHash
			}
			if err := tx.Model(&models.User{}).Where("id = ?", 1).Updates(fields).Error; err != nil {
				return err
			}
		}

		if !isPostgres(tx) {
			return nil
		}
		const bump = `SELECT setval(pg_get_serial_sequence('users', 'id'), GREATEST((SELECT COALESCE(MAX(id), 1) FROM users), 1), true)`
		if err := tx.Exec(bump).Error; err != nil {
			return fmt.Errorf("advance users id sequence: %w", err)
		}
		return nil
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return false, models.NewConflictError("Root username or email belongs to another user")
		}
		return false, models.NewInternalError(err)
	}
	return created, nil
}
