/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"go.uber.org/zap"
)

// GetWalletBalance returns the wallet projection for an owner, including the
// amount promised to open payout requests
func (s *LedgerService) GetWalletBalance(ctx context.Context, ownerId string) (*models.WalletBalance, error) {
	if ownerId == "" {
		return nil, store.Invalid("wallet", ownerId, "owner_id is required")
	}

	wallet, err := s.store.GetWalletBalance(ctx, ownerId)
	if err != nil {
		zap.L().Error("Failed to get wallet balance", zap.String("owner_id", ownerId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balance: %w", err)
	}

	return wallet, nil
}

// GetLedgerHistory returns paginated transaction history for an owner, newest first
func (s *LedgerService) GetLedgerHistory(ctx context.Context, ownerId string, limit, offset int) ([]models.LedgerTransaction, error) {
	if ownerId == "" {
		return nil, store.Invalid("wallet", ownerId, "owner_id is required")
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	transactions, err := s.store.GetLedgerHistory(ctx, ownerId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get ledger history",
			zap.String("owner_id", ownerId),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve ledger history: %w", err)
	}

	if transactions == nil {
		transactions = []models.LedgerTransaction{}
	}
	return transactions, nil
}

// GetTaxLiabilities returns the withholding recorded against an owner
func (s *LedgerService) GetTaxLiabilities(ctx context.Context, ownerId string) ([]models.TaxLiability, error) {
	if ownerId == "" {
		return nil, store.Invalid("wallet", ownerId, "owner_id is required")
	}

	liabilities, err := s.store.ListTaxLiabilities(ctx, ownerId)
	if err != nil {
		zap.L().Error("Failed to get tax liabilities", zap.String("owner_id", ownerId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve tax liabilities: %w", err)
	}
	if liabilities == nil {
		liabilities = []models.TaxLiability{}
	}
	return liabilities, nil
}
