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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func scanPayout(row scanner) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	var approvedAt, processingAt, completedAt, rejectedAt, failedAt sql.NullTime
	err := row.Scan(&p.Id, &p.OwnerId, &p.Amount, &p.Currency, &p.TaxCategory, &p.TaxWithheld, &p.NetAmount,
		&p.Status, &p.Destination, &p.ApproverId, &p.TransferRef, &p.ExternalRef, &p.Reason, &p.RequestedAt,
		&approvedAt, &processingAt, &completedAt, &rejectedAt, &failedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ApprovedAt = timePtr(approvedAt)
	p.ProcessingAt = timePtr(processingAt)
	p.CompletedAt = timePtr(completedAt)
	p.RejectedAt = timePtr(rejectedAt)
	p.FailedAt = timePtr(failedAt)
	return &p, nil
}

func getPayout(ctx context.Context, q querier, payoutId string) (*models.PayoutRequest, error) {
	payout, err := scanPayout(q.QueryRowContext(ctx, queryGetPayout, payoutId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: payout request %s", store.ErrNotFound, payoutId)
		}
		return nil, fmt.Errorf("unable to query payout request: %w", err)
	}
	return payout, nil
}

func insertPayout(ctx context.Context, q querier, p *models.PayoutRequest) error {
	_, err := q.ExecContext(ctx, queryInsertPayout, p.Id, p.OwnerId, p.Amount.String(), p.Currency,
		p.TaxCategory, p.TaxWithheld.String(), p.NetAmount.String(), p.Status, p.Destination,
		p.RequestedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: payout request %s", store.ErrDuplicateTransaction, p.Id)
		}
		return fmt.Errorf("unable to insert payout request: %w", err)
	}
	return nil
}

func updatePayout(ctx context.Context, q querier, p *models.PayoutRequest, expected models.PayoutStatus) error {
	result, err := q.ExecContext(ctx, queryUpdatePayout, p.Status, p.ApproverId, p.TransferRef, p.ExternalRef, p.Reason,
		nullTime(p.ApprovedAt), nullTime(p.ProcessingAt), nullTime(p.CompletedAt), nullTime(p.RejectedAt),
		nullTime(p.FailedAt), p.UpdatedAt, p.Id, expected)
	if err != nil {
		return fmt.Errorf("unable to update payout request: %w", err)
	}
	return requireOneRow(result, "payout request")
}

// openPayoutTotals sums the owner's open requests: pending covers every open
// status, committed only APPROVED and PROCESSING, both excluding excludeId
func openPayoutTotals(ctx context.Context, q querier, ownerId, excludeId string) (pending, committed decimal.Decimal, err error) {
	rows, err := q.QueryContext(ctx, queryGetPayoutAmountsByStatus, ownerId)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unable to query open payouts: %w", err)
	}
	defer closeRows(rows)

	pending, committed = decimal.Zero, decimal.Zero
	for rows.Next() {
		var id string
		var status models.PayoutStatus
		var amount decimal.Decimal
		if err := rows.Scan(&id, &status, &amount); err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("unable to scan payout amount: %w", err)
		}
		if id == excludeId {
			continue
		}
		pending = pending.Add(amount)
		if status == models.PayoutApproved || status == models.PayoutProcessing {
			committed = committed.Add(amount)
		}
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("error iterating payout rows: %w", err)
	}
	return pending, committed, nil
}

func (s *Service) GetPayout(ctx context.Context, payoutId string) (*models.PayoutRequest, error) {
	return getPayout(ctx, s.db, payoutId)
}

// ListPayouts returns the owner's requests, newest first, optionally filtered by status
func (s *Service) ListPayouts(ctx context.Context, ownerId string, statuses ...models.PayoutStatus) ([]models.PayoutRequest, error) {
	rows, err := s.db.QueryContext(ctx, queryGetOwnerPayouts, ownerId)
	if err != nil {
		return nil, fmt.Errorf("unable to query payouts: %w", err)
	}
	defer closeRows(rows)

	want := make(map[models.PayoutStatus]bool, len(statuses))
	for _, status := range statuses {
		want[status] = true
	}

	var payouts []models.PayoutRequest
	for rows.Next() {
		payout, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan payout: %w", err)
		}
		if len(want) > 0 && !want[payout.Status] {
			continue
		}
		payouts = append(payouts, *payout)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payout rows: %w", err)
	}
	return payouts, nil
}
