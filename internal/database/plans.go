package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"
)

func insertPlan(ctx context.Context, q querier, plan *models.DistributionPlan) error {
	_, err := q.ExecContext(ctx, queryInsertPlan, plan.Id, plan.PaymentId, plan.Type, plan.Status,
		plan.CommissionRate.String(), plan.PrimaryShareId, plan.CreatedBy, plan.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &store.InvalidStateError{
				Entity:    "escrow_payment",
				Id:        plan.PaymentId,
				State:     "PLANNED",
				Invariant: "a payment carries at most one distribution plan",
			}
		}
		return fmt.Errorf("unable to insert distribution plan: %w", err)
	}

	for _, share := range plan.Shares {
		_, err := q.ExecContext(ctx, queryInsertShare, share.Id, plan.Id, share.Position, share.RecipientId,
			share.Role, share.Percentage.String(), share.Bonus.String(), share.TaxCategory,
			share.Approved, share.ApproverSignature, share.ApprovedBy, nullTime(share.ApprovedAt))
		if err != nil {
			return fmt.Errorf("unable to insert share %s: %w", share.Id, err)
		}
	}
	return nil
}

func getPlan(ctx context.Context, q querier, query, key string) (*models.DistributionPlan, error) {
	var plan models.DistributionPlan
	var executedAt sql.NullTime
	err := q.QueryRowContext(ctx, query, key).Scan(&plan.Id, &plan.PaymentId, &plan.Type, &plan.Status,
		&plan.CommissionRate, &plan.PrimaryShareId, &plan.CreatedBy, &plan.CreatedAt, &executedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: distribution plan %s", store.ErrNotFound, key)
		}
		return nil, fmt.Errorf("unable to query distribution plan: %w", err)
	}
	plan.ExecutedAt = timePtr(executedAt)

	rows, err := q.QueryContext(ctx, queryGetShares, plan.Id)
	if err != nil {
		return nil, fmt.Errorf("unable to query shares: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		var share models.Share
		var approvedAt sql.NullTime
		err := rows.Scan(&share.Id, &share.PlanId, &share.Position, &share.RecipientId, &share.Role,
			&share.Percentage, &share.Bonus, &share.TaxCategory, &share.Approved,
			&share.ApproverSignature, &share.ApprovedBy, &approvedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan share: %w", err)
		}
		share.ApprovedAt = timePtr(approvedAt)
		plan.Shares = append(plan.Shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating share rows: %w", err)
	}
	return &plan, nil
}

func deleteDraftPlan(ctx context.Context, q querier, planId string) error {
	if _, err := q.ExecContext(ctx, queryDeleteShares, planId); err != nil {
		return fmt.Errorf("unable to delete shares: %w", err)
	}
	result, err := q.ExecContext(ctx, queryDeleteDraftPlan, planId)
	if err != nil {
		return fmt.Errorf("unable to delete distribution plan: %w", err)
	}
	return requireOneRow(result, "distribution plan")
}

func updateShareApproval(ctx context.Context, q querier, share models.Share) error {
	result, err := q.ExecContext(ctx, queryUpdateShareApproval, share.Approved, share.ApproverSignature,
		share.ApprovedBy, nullTime(share.ApprovedAt), share.Id, share.PlanId)
	if err != nil {
		return fmt.Errorf("unable to update share approval: %w", err)
	}
	return requireOneRow(result, "share")
}

func markPlanExecuted(ctx context.Context, q querier, planId string, at time.Time) error {
	result, err := q.ExecContext(ctx, queryMarkPlanExecuted, at, planId)
	if err != nil {
		return fmt.Errorf("unable to mark plan executed: %w", err)
	}
	return requireOneRow(result, "distribution plan")
}

func (s *Service) GetPlan(ctx context.Context, planId string) (*models.DistributionPlan, error) {
	return getPlan(ctx, s.db, queryGetPlan, planId)
}

func (s *Service) GetPlanForPayment(ctx context.Context, paymentId string) (*models.DistributionPlan, error) {
	return getPlan(ctx, s.db, queryGetPlanForPayment, paymentId)
}
