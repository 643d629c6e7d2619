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
	"time"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"go.uber.org/zap"
)

func scanPayment(row scanner) (*models.EscrowPayment, error) {
	var p models.EscrowPayment
	var heldAt, distributedAt, refundedAt, disputedAt sql.NullTime
	err := row.Scan(&p.Id, &p.GrossAmount, &p.Currency, &p.SourceRequestRef, &p.PayerType, &p.Status,
		&p.GatewayRef, &p.DistributionId, &p.DisputedFrom, &p.RefundedAmount,
		&p.CreatedAt, &heldAt, &distributedAt, &refundedAt, &disputedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.HeldAt = timePtr(heldAt)
	p.DistributedAt = timePtr(distributedAt)
	p.RefundedAt = timePtr(refundedAt)
	p.DisputedAt = timePtr(disputedAt)
	return &p, nil
}

func getPayment(ctx context.Context, q querier, paymentId string) (*models.EscrowPayment, error) {
	payment, err := scanPayment(q.QueryRowContext(ctx, queryGetPayment, paymentId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: escrow payment %s", store.ErrNotFound, paymentId)
		}
		return nil, fmt.Errorf("unable to query escrow payment: %w", err)
	}
	return payment, nil
}

func insertPayment(ctx context.Context, q querier, p *models.EscrowPayment) error {
	_, err := q.ExecContext(ctx, queryInsertPayment, p.Id, p.GrossAmount.String(), p.Currency,
		p.SourceRequestRef, p.PayerType, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: escrow payment %s", store.ErrDuplicateTransaction, p.Id)
		}
		return fmt.Errorf("unable to insert escrow payment: %w", err)
	}
	return nil
}

func updatePayment(ctx context.Context, q querier, p *models.EscrowPayment, expected models.EscrowStatus) error {
	result, err := q.ExecContext(ctx, queryUpdatePayment,
		p.Status, nullString(p.GatewayRef), p.DisputedFrom, p.RefundedAmount.String(),
		nullTime(p.HeldAt), nullTime(p.RefundedAt), nullTime(p.DisputedAt), p.UpdatedAt,
		p.Id, expected)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: gateway reference %s", store.ErrDuplicateTransaction, p.GatewayRef)
		}
		return fmt.Errorf("unable to update escrow payment: %w", err)
	}
	return requireOneRow(result, "escrow payment")
}

func markDistributed(ctx context.Context, q querier, paymentId, distributionId string, at time.Time) error {
	result, err := q.ExecContext(ctx, queryMarkDistributed, distributionId, at, at, paymentId)
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("unable to mark payment distributed: %w", err)
	}

	var rowsAffected int64
	if err == nil {
		if rowsAffected, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
	}
	if rowsAffected == 1 {
		return nil
	}

	current, getErr := getPayment(ctx, q, paymentId)
	if getErr != nil {
		return getErr
	}
	zap.L().Warn("Distribution gate rejected execution",
		zap.String("payment_id", paymentId),
		zap.String("status", string(current.Status)),
		zap.String("existing_distribution_id", current.DistributionId))
	return &store.InvalidStateError{
		Entity:    "escrow_payment",
		Id:        paymentId,
		State:     string(current.Status),
		Invariant: "payment must be HELD and not yet distributed",
	}
}

func scanGatewayEvent(row scanner) (*models.GatewayEvent, error) {
	var e models.GatewayEvent
	err := row.Scan(&e.GatewayRef, &e.EscrowPaymentId, &e.ConfirmedAmount, &e.Currency, &e.Status, &e.Detail, &e.ReceivedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func getGatewayEvent(ctx context.Context, q querier, gatewayRef string) (*models.GatewayEvent, error) {
	event, err := scanGatewayEvent(q.QueryRowContext(ctx, queryGetGatewayEvent, gatewayRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: gateway event %s", store.ErrNotFound, gatewayRef)
		}
		return nil, fmt.Errorf("unable to query gateway event: %w", err)
	}
	return event, nil
}

func insertGatewayEvent(ctx context.Context, q querier, e models.GatewayEvent) error {
	_, err := q.ExecContext(ctx, queryInsertGatewayEvent, e.GatewayRef, e.EscrowPaymentId,
		e.ConfirmedAmount.String(), e.Currency, e.Status, e.Detail, e.ReceivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: gateway reference %s", store.ErrDuplicateTransaction, e.GatewayRef)
		}
		return fmt.Errorf("unable to insert gateway event: %w", err)
	}
	return nil
}

func (s *Service) GetPayment(ctx context.Context, paymentId string) (*models.EscrowPayment, error) {
	zap.L().Debug("Querying escrow payment", zap.String("payment_id", paymentId))
	return getPayment(ctx, s.db, paymentId)
}

// ListGatewayMismatches returns the operator review queue, newest first
func (s *Service) ListGatewayMismatches(ctx context.Context, limit int) ([]models.GatewayEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, queryGetGatewayMismatches, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query gateway mismatches: %w", err)
	}
	defer closeRows(rows)

	var events []models.GatewayEvent
	for rows.Next() {
		event, err := scanGatewayEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan gateway event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gateway event rows: %w", err)
	}
	return events, nil
}
