package service

import (
	"context"

	"studiodesk/internal/models"
	"studiodesk/internal/repository"
)

const defaultCurrency = "USD"

type BillingService struct {
	billing   repository.BillingRepository
	costCents int64
}

func NewBillingService(billing repository.BillingRepository, costCents int64) *BillingService {
	return &BillingService{billing: billing, costCents: costCents}
}

// CostCents is the price of one sheet generation.
func (s *BillingService) CostCents() int64 { return s.costCents }

// CheckBalance compares the balance against count generations. Users without
// an account have a zero balance.
func (s *BillingService) CheckBalance(ctx context.Context, userID uint, count int) (*models.BalanceCheck, error) {
	if count < 1 {
		count = 1
	}
	if count > 100 {
		return nil, models.NewValidationError("count must be at most 100")
	}

	acct, err := s.billing.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &models.BalanceCheck{
		RequiredCents: s.costCents * int64(count),
		Currency:      defaultCurrency,
	}
	if acct != nil {
		out.BalanceCents = acct.BalanceCents
		out.Currency = acct.Currency
	}
	out.Sufficient = out.BalanceCents >= out.RequiredCents
	return out, nil
}

func (s *BillingService) Credit(ctx context.Context, userID uint, cents int64) (*models.BillingAccount, error) {
	return s.billing.Credit(ctx, userID, cents)
}
