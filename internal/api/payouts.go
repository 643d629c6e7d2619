package api

import (
	"context"
	"errors"
	"fmt"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"go.uber.org/zap"
)

// GetPayoutStatus returns a single payout request
func (s *LedgerService) GetPayoutStatus(ctx context.Context, payoutId string) (*models.PayoutRequest, error) {
	if payoutId == "" {
		return nil, store.Invalid("payout_request", payoutId, "payout_id is required")
	}

	payout, err := s.store.GetPayout(ctx, payoutId)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Error("Failed to get payout", zap.String("payout_id", payoutId), zap.Error(err))
		}
		return nil, fmt.Errorf("failed to retrieve payout: %w", err)
	}
	return payout, nil
}

// ListPayouts returns an owner's payout requests, optionally filtered by status
func (s *LedgerService) ListPayouts(ctx context.Context, ownerId string, statuses ...models.PayoutStatus) ([]models.PayoutRequest, error) {
	if ownerId == "" {
		return nil, store.Invalid("payout_request", ownerId, "owner_id is required")
	}

	payouts, err := s.store.ListPayouts(ctx, ownerId, statuses...)
	if err != nil {
		zap.L().Error("Failed to list payouts", zap.String("owner_id", ownerId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve payouts: %w", err)
	}
	if payouts == nil {
		payouts = []models.PayoutRequest{}
	}
	return payouts, nil
}
