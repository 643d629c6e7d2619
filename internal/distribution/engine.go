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

package distribution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/store"
	"escrow-ledger-go/internal/tax"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecipientInput is one requested share of a SINGLE_RECIPIENT or CUSTOM plan
type RecipientInput struct {
	RecipientId string
	Percentage  decimal.Decimal
	Bonus       decimal.Decimal
	TaxCategory string // overrides the member's category when set
}

// PolicyInput describes the split requested by an admin or firm admin
type PolicyInput struct {
	Type       models.PlanType
	Recipients []RecipientInput

	// ROLE_BASED only
	FirmId   string
	Template string
	Bonuses  map[string]decimal.Decimal // member id -> bonus

	PrimaryRecipientId string
}

type Engine struct {
	store  store.Store
	tax    *tax.Calculator
	policy models.Policy
	authz  *policy.Table
}

func NewEngine(s store.Store, calc *tax.Calculator, pol models.Policy, authz *policy.Table) *Engine {
	return &Engine{store: s, tax: calc, policy: pol, authz: authz}
}

// BuildPlan validates input and attaches a DRAFT plan to the payment,
// replacing any earlier draft.
func (e *Engine) BuildPlan(ctx context.Context, actor policy.Actor, paymentId string, input PolicyInput) (*models.DistributionPlan, error) {
	if err := e.authz.Authorize(actor, policy.ActionCreatePlan); err != nil {
		return nil, err
	}

	var plan *models.DistributionPlan
	err := e.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		payment, err := tx.GetPayment(ctx, paymentId)
		if err != nil {
			return err
		}
		if payment.Status != models.EscrowPending && payment.Status != models.EscrowHeld {
			return &store.InvalidStateError{
				Entity:    "escrow_payment",
				Id:        paymentId,
				State:     string(payment.Status),
				Invariant: "a plan can only be attached before distribution",
			}
		}

		existing, err := tx.GetPlanForPayment(ctx, paymentId)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case existing.Status != models.PlanDraft:
			return &store.InvalidStateError{Entity: "distribution_plan", Id: existing.Id, State: string(existing.Status),
				Invariant: "an executed plan cannot be replaced"}
		default:
			if err := tx.DeleteDraftPlan(ctx, existing.Id); err != nil {
				return err
			}
			zap.L().Info("Replacing draft plan", zap.String("payment_id", paymentId), zap.String("old_plan_id", existing.Id))
		}

		rate, ok := e.policy.Commission[payment.PayerType]
		if !ok {
			return store.Invalid("escrow_payment", paymentId, "no commission rule for payer type %s", payment.PayerType)
		}

		plan = &models.DistributionPlan{
			Id:             uuid.New().String(),
			PaymentId:      paymentId,
			Type:           input.Type,
			Status:         models.PlanDraft,
			CommissionRate: rate,
			CreatedBy:      actor.Id,
			CreatedAt:      time.Now().UTC(),
		}

		shares, err := e.resolveShares(ctx, tx, plan, input)
		if err != nil {
			return err
		}
		plan.Shares = shares

		if err := e.validateShares(ctx, tx, plan); err != nil {
			return err
		}

		plan.PrimaryShareId, err = choosePrimary(plan.Shares, input.PrimaryRecipientId)
		if err != nil {
			return err
		}

		// catches bonuses that the gross cannot fund and unknown tax categories
		if _, err := e.allocate(payment, plan); err != nil {
			return err
		}

		return tx.InsertPlan(ctx, plan)
	})
	if err != nil {
		zap.L().Warn("Distribution plan rejected",
			zap.String("payment_id", paymentId),
			zap.String("type", string(input.Type)),
			zap.String("actor", actor.String()),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Distribution plan created",
		zap.String("plan_id", plan.Id),
		zap.String("payment_id", paymentId),
		zap.String("type", string(plan.Type)),
		zap.Int("shares", len(plan.Shares)),
		zap.String("commission_rate", plan.CommissionRate.String()))
	return plan, nil
}

func (e *Engine) resolveShares(ctx context.Context, tx store.Tx, plan *models.DistributionPlan, input PolicyInput) ([]models.Share, error) {
	newShare := func(position int, recipientId, role string, pct, bonus decimal.Decimal, taxCategory string) models.Share {
		return models.Share{
			Id:          uuid.New().String(),
			PlanId:      plan.Id,
			Position:    position,
			RecipientId: recipientId,
			Role:        role,
			Percentage:  pct,
			Bonus:       bonus,
			TaxCategory: taxCategory,
		}
	}

	switch input.Type {
	case models.PlanSingleRecipient:
		if len(input.Recipients) != 1 {
			return nil, store.Invalid("distribution_plan", plan.Id, "SINGLE_RECIPIENT plans take exactly one recipient, got %d", len(input.Recipients))
		}
		r := input.Recipients[0]
		pct := r.Percentage
		if pct.IsZero() {
			pct = hundred
		}
		return []models.Share{newShare(0, r.RecipientId, "", pct, r.Bonus, r.TaxCategory)}, nil

	case models.PlanCustom:
		if len(input.Recipients) == 0 {
			return nil, store.Invalid("distribution_plan", plan.Id, "CUSTOM plans need at least one recipient")
		}
		shares := make([]models.Share, 0, len(input.Recipients))
		for i, r := range input.Recipients {
			shares = append(shares, newShare(i, r.RecipientId, "", r.Percentage, r.Bonus, r.TaxCategory))
		}
		return shares, nil

	case models.PlanRoleBased:
		template, ok := e.policy.RoleTemplates[input.Template]
		if !ok {
			return nil, store.Invalid("distribution_plan", plan.Id, "unknown role template %q", input.Template)
		}
		if input.FirmId == "" {
			return nil, store.Invalid("distribution_plan", plan.Id, "ROLE_BASED plans need a firm")
		}

		members, err := tx.ListFirmMembers(ctx, input.FirmId)
		if err != nil {
			return nil, err
		}
		byRole := make(map[string][]models.Member)
		for _, m := range members {
			role := strings.ToLower(m.Role)
			byRole[role] = append(byRole[role], m)
		}

		roles := make([]string, 0, len(template))
		for role := range template {
			roles = append(roles, role)
		}
		// largest role first so the default primary is the template's biggest role
		sort.Slice(roles, func(i, j int) bool {
			if c := template[roles[i]].Cmp(template[roles[j]]); c != 0 {
				return c > 0
			}
			return roles[i] < roles[j]
		})

		var shares []models.Share
		for _, role := range roles {
			holders := byRole[strings.ToLower(role)]
			if len(holders) == 0 {
				return nil, store.Invalid("distribution_plan", plan.Id, "firm %s has no active member with role %q", input.FirmId, role)
			}
			// even split of the role's percentage; the money remainder still lands on the primary share
			each := template[role].Div(decimal.NewFromInt(int64(len(holders)))).Truncate(6)
			for _, m := range holders {
				shares = append(shares, newShare(len(shares), m.Id, role, each, input.Bonuses[m.Id], ""))
			}
		}
		return shares, nil

	default:
		return nil, store.Invalid("distribution_plan", plan.Id, "unknown plan type %q", input.Type)
	}
}

func (e *Engine) validateShares(ctx context.Context, tx store.Tx, plan *models.DistributionPlan) error {
	seen := make(map[string]bool, len(plan.Shares))
	total := decimal.Zero

	for i := range plan.Shares {
		share := &plan.Shares[i]
		if seen[share.RecipientId] {
			return store.Invalid("distribution_plan", plan.Id, "recipient %s appears more than once", share.RecipientId)
		}
		seen[share.RecipientId] = true

		if share.Percentage.IsNegative() || share.Percentage.GreaterThan(hundred) {
			return store.Invalid("share", share.RecipientId, "percentage %s outside 0-100", share.Percentage.String())
		}
		if share.Bonus.IsNegative() {
			return store.Invalid("share", share.RecipientId, "bonus %s is negative", share.Bonus.String())
		}
		total = total.Add(share.Percentage)

		member, err := tx.GetMember(ctx, share.RecipientId)
		if errors.Is(err, store.ErrNotFound) {
			return store.Invalid("share", share.RecipientId, "recipient is not a member")
		}
		if err != nil {
			return err
		}
		if !member.Active {
			return store.Invalid("share", share.RecipientId, "recipient is not an active member")
		}

		if share.TaxCategory == "" {
			share.TaxCategory = member.TaxCategory
		}
		if !e.tax.Known(share.TaxCategory) {
			return store.Invalid("share", share.RecipientId, "unknown tax category %q", share.TaxCategory)
		}
	}

	if total.Sub(hundred).Abs().GreaterThan(e.policy.PercentageTolerance) {
		return store.Invalid("distribution_plan", plan.Id, "share percentages sum to %s, expected 100", total.String())
	}
	return nil
}

// ApproveShare records a recipient's approval. Re-approving is a no-op.
func (e *Engine) ApproveShare(ctx context.Context, actor policy.Actor, planId, shareId, signature string) (*models.DistributionPlan, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, store.Invalid("share", shareId, "approver signature is required")
	}

	var plan *models.DistributionPlan
	err := e.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		plan, err = tx.GetPlan(ctx, planId)
		if err != nil {
			return err
		}

		idx := -1
		for i := range plan.Shares {
			if plan.Shares[i].Id == shareId {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: share %s in plan %s", store.ErrNotFound, shareId, planId)
		}
		share := &plan.Shares[idx]

		if err := e.authz.AuthorizeOwner(actor, policy.ActionApproveShare, share.RecipientId); err != nil {
			return err
		}
		if share.Approved {
			return nil
		}
		if plan.Status != models.PlanDraft {
			return &store.InvalidStateError{Entity: "distribution_plan", Id: planId, State: string(plan.Status),
				Invariant: "shares can only be approved on a draft plan"}
		}

		at := time.Now().UTC()
		share.Approved = true
		share.ApproverSignature = signature
		share.ApprovedBy = actor.Id
		share.ApprovedAt = &at
		return tx.UpdateShareApproval(ctx, *share)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Share approved",
		zap.String("plan_id", planId),
		zap.String("share_id", shareId),
		zap.String("actor", actor.String()),
		zap.Bool("executable", plan.Executable()))
	return plan, nil
}

// Preview computes the allocation a plan would produce without writing anything
func (e *Engine) Preview(ctx context.Context, planId string) (models.Allocation, error) {
	plan, err := e.store.GetPlan(ctx, planId)
	if err != nil {
		return models.Allocation{}, err
	}
	payment, err := e.store.GetPayment(ctx, plan.PaymentId)
	if err != nil {
		return models.Allocation{}, err
	}
	return e.allocate(payment, plan)
}

func (e *Engine) allocate(payment *models.EscrowPayment, plan *models.DistributionPlan) (models.Allocation, error) {
	scale := e.policy.Scale(payment.Currency)
	split, err := SplitGross(payment.GrossAmount, plan.CommissionRate, plan.Shares, plan.PrimaryShareId, scale)
	if err != nil {
		return models.Allocation{}, err
	}

	alloc := models.Allocation{Gross: payment.GrossAmount, Commission: split.Commission}
	for i, share := range plan.Shares {
		baseTax, err := e.tax.Compute(split.Bases[i], share.TaxCategory, payment.Currency)
		if err != nil {
			return models.Allocation{}, err
		}
		bonusTax, err := e.tax.Compute(share.Bonus, share.TaxCategory, payment.Currency)
		if err != nil {
			return models.Allocation{}, err
		}
		alloc.Shares = append(alloc.Shares, models.ShareAmount{
			ShareId:       share.Id,
			RecipientId:   share.RecipientId,
			Base:          split.Bases[i],
			BaseWithheld:  baseTax.Withheld,
			Bonus:         share.Bonus,
			BonusWithheld: bonusTax.Withheld,
			TaxCategory:   share.TaxCategory,
		})
	}
	return alloc, nil
}

// Execute distributes a HELD payment according to plan, exactly once. The
// HELD -> DISTRIBUTED transition is the mutual-exclusion gate and commits
// together with every ledger write, so partial distribution is never visible.
func (e *Engine) Execute(ctx context.Context, actor policy.Actor, planId string) ([]models.LedgerTransaction, error) {
	if err := e.authz.Authorize(actor, policy.ActionExecutePlan); err != nil {
		return nil, err
	}

	var written []models.LedgerTransaction
	var payment *models.EscrowPayment
	err := e.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		written = nil

		plan, err := tx.GetPlan(ctx, planId)
		if err != nil {
			return err
		}
		if !plan.Executable() {
			invariant := "every share of a CUSTOM plan must be approved"
			if plan.Status != models.PlanDraft {
				invariant = "plan has already been executed"
			}
			return &store.InvalidStateError{Entity: "distribution_plan", Id: planId, State: string(plan.Status), Invariant: invariant}
		}

		payment, err = tx.GetPayment(ctx, plan.PaymentId)
		if err != nil {
			return err
		}
		if payment.Status != models.EscrowHeld {
			return &store.InvalidStateError{Entity: "escrow_payment", Id: payment.Id, State: string(payment.Status),
				Invariant: "only HELD payments can be distributed"}
		}

		alloc, err := e.allocate(payment, plan)
		if err != nil {
			return err
		}

		at := time.Now().UTC()
		if err := tx.MarkDistributed(ctx, payment.Id, plan.Id, at); err != nil {
			return err
		}

		appendTx := func(params store.AppendParams) (*models.LedgerTransaction, error) {
			params.Currency = payment.Currency
			params.SourceRef = payment.Id
			t, err := tx.Append(ctx, params)
			if err != nil {
				return nil, err
			}
			written = append(written, *t)
			return t, nil
		}

		if alloc.Commission.IsPositive() {
			if _, err := appendTx(store.AppendParams{
				OwnerId:   models.PlatformCommissionAccount,
				Type:      models.TxDebitCommission,
				Amount:    alloc.Commission,
				Reference: fmt.Sprintf("commission %s%% plan %s", plan.CommissionRate.String(), plan.Id),
			}); err != nil {
				return err
			}
		}

		for _, sa := range alloc.Shares {
			parts := []struct {
				txType   models.TransactionType
				gross    decimal.Decimal
				withheld decimal.Decimal
			}{
				{models.TxCreditDistribution, sa.Base, sa.BaseWithheld},
				{models.TxCreditBonus, sa.Bonus, sa.BonusWithheld},
			}
			for _, part := range parts {
				if err := e.creditShare(ctx, tx, appendTx, payment, plan, sa, part.txType, part.gross, part.withheld); err != nil {
					return err
				}
			}
		}

		return tx.MarkPlanExecuted(ctx, plan.Id, at)
	})
	if err != nil {
		zap.L().Warn("Plan execution rejected",
			zap.String("plan_id", planId),
			zap.String("actor", actor.String()),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Payment distributed",
		zap.String("plan_id", planId),
		zap.String("payment_id", payment.Id),
		zap.String("gross", payment.GrossAmount.String()),
		zap.Int("transactions", len(written)))
	return written, nil
}

func (e *Engine) creditShare(ctx context.Context, tx store.Tx,
	appendTx func(store.AppendParams) (*models.LedgerTransaction, error),
	payment *models.EscrowPayment, plan *models.DistributionPlan, sa models.ShareAmount,
	txType models.TransactionType, gross, withheld decimal.Decimal) error {

	if !gross.IsPositive() {
		return nil
	}

	transactionId := ""
	if net := gross.Sub(withheld); net.IsPositive() {
		t, err := appendTx(store.AppendParams{
			OwnerId:     sa.RecipientId,
			Type:        txType,
			Amount:      net,
			TaxWithheld: withheld,
			Reference:   fmt.Sprintf("plan %s share %s", plan.Id, sa.ShareId),
		})
		if err != nil {
			return err
		}
		transactionId = t.Id
	}

	if withheld.IsPositive() {
		return tx.InsertTaxLiability(ctx, &models.TaxLiability{
			OwnerId:       sa.RecipientId,
			SourceRef:     payment.Id,
			TransactionId: transactionId,
			Category:      sa.TaxCategory,
			Gross:         gross,
			Withheld:      withheld,
		})
	}
	return nil
}
