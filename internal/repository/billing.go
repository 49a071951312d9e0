package repository

import (
	"context"
	"errors"

	"studiodesk/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BillingRepository reads and adjusts prepaid balances.
type BillingRepository interface {
	GetAccount(ctx context.Context, userID uint) (*models.BillingAccount, error)
	Credit(ctx context.Context, userID uint, cents int64) (*models.BillingAccount, error)
	Debit(ctx context.Context, userID uint, cents int64) error
}

// ErrInsufficientBalance is returned by Debit when the balance would go negative.
var ErrInsufficientBalance = errors.New("insufficient balance")

type billingRepository struct {
	db *gorm.DB
}

func NewBillingRepository(db *gorm.DB) BillingRepository {
	return &billingRepository{db: db}
}

// GetAccount returns (nil, nil) for users without an account.
func (r *billingRepository) GetAccount(ctx context.Context, userID uint) (*models.BillingAccount, error) {
	var acct models.BillingAccount
	if err := readDB(r.db).WithContext(ctx).Where("user_id = ?", userID).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &acct, nil
}

// Credit adds cents, creating the account on first use.
func (r *billingRepository) Credit(ctx context.Context, userID uint, cents int64) (*models.BillingAccount, error) {
	if cents <= 0 {
		return nil, models.NewValidationError("credit must be positive")
	}
	acct := &models.BillingAccount{UserID: userID, BalanceCents: cents, Currency: "USD"}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance_cents": gorm.Expr("billing_accounts.balance_cents + ?", cents),
		}),
	}).Create(acct).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return r.GetAccount(ctx, userID)
}

// Debit subtracts cents only if the balance covers it.
func (r *billingRepository) Debit(ctx context.Context, userID uint, cents int64) error {
	if cents <= 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.BillingAccount{}).
		Where("user_id = ? AND balance_cents >= ?", userID, cents).
		UpdateColumn("balance_cents", gorm.Expr("balance_cents - ?", cents))
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}
