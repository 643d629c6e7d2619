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
	"errors"
	"fmt"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"go.uber.org/zap"
)

// EscrowStatus is a payment together with the plan attached to it, if any
type EscrowStatus struct {
	Payment *models.EscrowPayment    `json:"payment"`
	Plan    *models.DistributionPlan `json:"plan,omitempty"`
}

// GetEscrowStatus returns the current state of an escrow payment
func (s *LedgerService) GetEscrowStatus(ctx context.Context, paymentId string) (*EscrowStatus, error) {
	if paymentId == "" {
		return nil, store.Invalid("escrow_payment", paymentId, "payment_id is required")
	}

	payment, err := s.store.GetPayment(ctx, paymentId)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Error("Failed to get escrow payment", zap.String("payment_id", paymentId), zap.Error(err))
		}
		return nil, fmt.Errorf("failed to retrieve escrow payment: %w", err)
	}

	plan, err := s.store.GetPlanForPayment(ctx, paymentId)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		zap.L().Error("Failed to get distribution plan", zap.String("payment_id", paymentId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve distribution plan: %w", err)
	}

	return &EscrowStatus{Payment: payment, Plan: plan}, nil
}

// GetGatewayMismatches returns confirmations awaiting operator review
func (s *LedgerService) GetGatewayMismatches(ctx context.Context, limit int) ([]models.GatewayEvent, error) {
	events, err := s.store.ListGatewayMismatches(ctx, limit)
	if err != nil {
		zap.L().Error("Failed to get gateway mismatches", zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve gateway mismatches: %w", err)
	}
	if events == nil {
		events = []models.GatewayEvent{}
	}
	return events, nil
}
