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

package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/store"
	"escrow-ledger-go/internal/tax"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Transferer hands an approved payout to the external transfer collaborator
// and returns its reference for the submitted transfer.
type Transferer interface {
	Transfer(ctx context.Context, payout models.PayoutRequest) (string, error)
}

// RequestParams describes a wallet owner's withdrawal intent
type RequestParams struct {
	OwnerId     string
	Amount      decimal.Decimal
	Destination string
	TaxCategory string // overrides the payout category of the owner's member type
}

var transitions = map[models.PayoutStatus][]models.PayoutStatus{
	models.PayoutRequested:  {models.PayoutApproved, models.PayoutRejected},
	models.PayoutApproved:   {models.PayoutProcessing, models.PayoutRejected},
	models.PayoutProcessing: {models.PayoutCompleted, models.PayoutFailed},
}

func checkTransition(p *models.PayoutRequest, to models.PayoutStatus) error {
	for _, next := range transitions[p.Status] {
		if next == to {
			return nil
		}
	}
	return &store.InvalidTransitionError{Entity: "payout_request", Id: p.Id, From: string(p.Status), To: string(to)}
}

type Workflow struct {
	store      store.Store
	tax        *tax.Calculator
	policy     models.Policy
	authz      *policy.Table
	transferer Transferer
}

// NewWorkflow builds the payout workflow. A nil transferer leaves processed
// payouts in PROCESSING until someone completes or fails them.
func NewWorkflow(s store.Store, calc *tax.Calculator, pol models.Policy, authz *policy.Table, transferer Transferer) *Workflow {
	return &Workflow{store: s, tax: calc, policy: pol, authz: authz, transferer: transferer}
}

// Request records a payout against the owner's balance. Nothing is debited
// until the payout completes; the amount counts as pending until then.
func (w *Workflow) Request(ctx context.Context, actor policy.Actor, params RequestParams) (*models.PayoutRequest, error) {
	if err := w.authz.AuthorizeOwner(actor, policy.ActionRequestPayout, params.OwnerId); err != nil {
		return nil, err
	}

	currency := w.policy.DefaultCurrency
	scale := w.policy.Scale(currency)
	switch {
	case !params.Amount.IsPositive():
		return nil, store.Invalid("payout_request", params.OwnerId, "amount must be positive, got %s", params.Amount.String())
	case params.Amount.Exponent() < -scale:
		return nil, store.Invalid("payout_request", params.OwnerId, "amount %s has more than %d decimal places", params.Amount.String(), scale)
	case params.Amount.LessThan(w.policy.MinimumPayout):
		return nil, store.Invalid("payout_request", params.OwnerId, "amount %s is below the minimum payout %s",
			params.Amount.String(), w.policy.MinimumPayout.String())
	}

	var payout *models.PayoutRequest
	err := w.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		member, err := tx.GetMember(ctx, params.OwnerId)
		if errors.Is(err, store.ErrNotFound) {
			return store.Invalid("payout_request", params.OwnerId, "owner is not a member")
		}
		if err != nil {
			return err
		}

		category := params.TaxCategory
		if category == "" {
			category = w.policy.PayoutTaxCategories[member.Type]
		}
		withholding, err := w.tax.Compute(params.Amount, category, currency)
		if err != nil {
			return err
		}

		wallet, err := tx.GetWallet(ctx, params.OwnerId)
		if err != nil {
			return err
		}
		live, err := tx.LiveBalance(ctx, params.OwnerId)
		if err != nil {
			return err
		}
		if wallet != nil && wallet.Frozen {
			return &store.LedgerDriftError{OwnerId: params.OwnerId, Maintained: wallet.Balance, Calculated: live}
		}
		if params.Amount.GreaterThan(live) {
			return &store.InsufficientBalanceError{
				OwnerId:   params.OwnerId,
				Requested: params.Amount,
				Available: live,
				Invariant: "payout must not exceed the wallet balance",
			}
		}

		ts := time.Now().UTC()
		payout = &models.PayoutRequest{
			Id:          uuid.New().String(),
			OwnerId:     params.OwnerId,
			Amount:      params.Amount,
			Currency:    currency,
			TaxCategory: category,
			TaxWithheld: withholding.Withheld,
			NetAmount:   withholding.Net,
			Status:      models.PayoutRequested,
			Destination: params.Destination,
			RequestedAt: ts,
			UpdatedAt:   ts,
		}
		return tx.InsertPayout(ctx, payout)
	})
	if err != nil {
		zap.L().Warn("Payout request rejected",
			zap.String("owner_id", params.OwnerId),
			zap.String("amount", params.Amount.String()),
			zap.String("actor", actor.String()),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Payout requested",
		zap.String("payout_id", payout.Id),
		zap.String("owner_id", payout.OwnerId),
		zap.String("amount", payout.Amount.String()),
		zap.String("tax_withheld", payout.TaxWithheld.String()),
		zap.String("net_amount", payout.NetAmount.String()))
	return payout, nil
}

// Approve re-checks the balance against every other approved or processing
// payout of the owner. On failure the request stays REQUESTED.
func (w *Workflow) Approve(ctx context.Context, actor policy.Actor, payoutId string) (*models.PayoutRequest, error) {
	if err := w.authz.Authorize(actor, policy.ActionApprovePayout); err != nil {
		return nil, err
	}

	return w.move(ctx, actor, payoutId, models.PayoutApproved, func(ctx context.Context, tx store.Tx, p *models.PayoutRequest, ts time.Time) error {
		live, err := tx.LiveBalance(ctx, p.OwnerId)
		if err != nil {
			return err
		}
		committed, err := tx.CommittedPayouts(ctx, p.OwnerId, p.Id)
		if err != nil {
			return err
		}
		if available := live.Sub(committed); p.Amount.GreaterThan(available) {
			return &store.InsufficientBalanceError{
				OwnerId:   p.OwnerId,
				Requested: p.Amount,
				Available: available,
				Invariant: "approved payouts must not exceed the wallet balance",
			}
		}
		p.ApproverId = actor.Id
		p.ApprovedAt = &ts
		return nil
	})
}

// Reject closes a REQUESTED or APPROVED payout
func (w *Workflow) Reject(ctx context.Context, actor policy.Actor, payoutId, reason string) (*models.PayoutRequest, error) {
	if err := w.authz.Authorize(actor, policy.ActionRejectPayout); err != nil {
		return nil, err
	}

	return w.move(ctx, actor, payoutId, models.PayoutRejected, func(_ context.Context, _ store.Tx, p *models.PayoutRequest, ts time.Time) error {
		p.Reason = reason
		p.RejectedAt = &ts
		return nil
	})
}

// Process moves an APPROVED payout to PROCESSING and submits the transfer.
// A submission error fails the payout and is returned alongside it.
func (w *Workflow) Process(ctx context.Context, actor policy.Actor, payoutId string) (*models.PayoutRequest, error) {
	if err := w.authz.Authorize(actor, policy.ActionProcessPayout); err != nil {
		return nil, err
	}

	payout, err := w.move(ctx, actor, payoutId, models.PayoutProcessing, func(_ context.Context, _ store.Tx, p *models.PayoutRequest, ts time.Time) error {
		p.ProcessingAt = &ts
		return nil
	})
	if err != nil || w.transferer == nil {
		return payout, err
	}

	ref, err := w.transferer.Transfer(ctx, *payout)
	if err != nil {
		zap.L().Error("Transfer submission failed",
			zap.String("payout_id", payoutId),
			zap.String("net_amount", payout.NetAmount.String()),
			zap.Error(err))
		failed, failErr := w.Fail(ctx, policy.System, payoutId, "transfer submission failed: "+err.Error())
		if failErr != nil {
			return nil, failErr
		}
		return failed, fmt.Errorf("transfer submission for payout %s failed: %w", payoutId, err)
	}

	zap.L().Info("Transfer submitted",
		zap.String("payout_id", payoutId),
		zap.String("transfer_ref", ref))
	return w.recordTransferRef(ctx, payoutId, ref)
}

// recordTransferRef stores the collaborator's reference whatever state the
// payout reached meanwhile, so a fast callback does not lose it.
func (w *Workflow) recordTransferRef(ctx context.Context, payoutId, ref string) (*models.PayoutRequest, error) {
	var payout *models.PayoutRequest
	err := w.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		payout, err = tx.GetPayout(ctx, payoutId)
		if err != nil {
			return err
		}
		if ref == "" || payout.TransferRef == ref {
			return nil
		}
		payout.TransferRef = ref
		payout.UpdatedAt = time.Now().UTC()
		return tx.UpdatePayout(ctx, payout, payout.Status)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record transfer reference for payout %s: %w", payoutId, err)
	}
	return payout, nil
}

// Complete debits the wallet for the gross amount and records the withheld
// tax, atomically with PROCESSING -> COMPLETED. A repeated callback carrying
// the same externalRef is a no-op.
func (w *Workflow) Complete(ctx context.Context, actor policy.Actor, payoutId, externalRef string) (*models.PayoutRequest, error) {
	if err := w.authz.Authorize(actor, policy.ActionCompletePayout); err != nil {
		return nil, err
	}
	if externalRef == "" {
		return nil, store.Invalid("payout_request", payoutId, "external transfer reference is required")
	}

	var payout *models.PayoutRequest
	var debit *models.LedgerTransaction
	err := w.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		debit = nil

		var err error
		payout, err = tx.GetPayout(ctx, payoutId)
		if err != nil {
			return err
		}
		if payout.Status == models.PayoutCompleted && payout.ExternalRef == externalRef {
			return nil
		}
		if err := checkTransition(payout, models.PayoutCompleted); err != nil {
			return err
		}

		debit, err = tx.Append(ctx, store.AppendParams{
			OwnerId:     payout.OwnerId,
			Type:        models.TxDebitWithdrawal,
			Amount:      payout.Amount.Neg(),
			Currency:    payout.Currency,
			SourceRef:   payout.Id,
			TaxWithheld: payout.TaxWithheld,
			Reference:   externalRef,
		})
		if err != nil {
			return err
		}

		if payout.TaxWithheld.IsPositive() {
			if err := tx.InsertTaxLiability(ctx, &models.TaxLiability{
				OwnerId:       payout.OwnerId,
				SourceRef:     payout.Id,
				TransactionId: debit.Id,
				Category:      payout.TaxCategory,
				Gross:         payout.Amount,
				Withheld:      payout.TaxWithheld,
			}); err != nil {
				return err
			}
		}

		ts := time.Now().UTC()
		payout.Status = models.PayoutCompleted
		payout.ExternalRef = externalRef
		payout.CompletedAt = &ts
		payout.UpdatedAt = ts
		return tx.UpdatePayout(ctx, payout, models.PayoutProcessing)
	})
	if err != nil {
		zap.L().Warn("Payout completion rejected",
			zap.String("payout_id", payoutId),
			zap.String("external_ref", externalRef),
			zap.Error(err))
		return nil, err
	}

	if debit == nil {
		zap.L().Info("Duplicate payout completion ignored",
			zap.String("payout_id", payoutId),
			zap.String("external_ref", externalRef))
		return payout, nil
	}

	zap.L().Info("Payout completed",
		zap.String("payout_id", payoutId),
		zap.String("owner_id", payout.OwnerId),
		zap.String("gross", payout.Amount.String()),
		zap.String("net", payout.NetAmount.String()),
		zap.String("tax_withheld", payout.TaxWithheld.String()),
		zap.String("transaction_id", debit.Id),
		zap.String("external_ref", externalRef))
	return payout, nil
}

// Fail closes a PROCESSING payout without touching the ledger. Failing an
// already failed payout is a no-op.
func (w *Workflow) Fail(ctx context.Context, actor policy.Actor, payoutId, reason string) (*models.PayoutRequest, error) {
	if err := w.authz.Authorize(actor, policy.ActionFailPayout); err != nil {
		return nil, err
	}

	current, err := w.store.GetPayout(ctx, payoutId)
	if err != nil {
		return nil, err
	}
	if current.Status == models.PayoutFailed {
		return current, nil
	}

	return w.move(ctx, actor, payoutId, models.PayoutFailed, func(_ context.Context, _ store.Tx, p *models.PayoutRequest, ts time.Time) error {
		p.Reason = reason
		p.FailedAt = &ts
		return nil
	})
}

// Status returns the current payout request
func (w *Workflow) Status(ctx context.Context, payoutId string) (*models.PayoutRequest, error) {
	return w.store.GetPayout(ctx, payoutId)
}

// move runs one status transition in its own atomic unit. apply may reject
// the move or fill in the fields that belong to the new status.
func (w *Workflow) move(ctx context.Context, actor policy.Actor, payoutId string, to models.PayoutStatus,
	apply func(ctx context.Context, tx store.Tx, p *models.PayoutRequest, ts time.Time) error) (*models.PayoutRequest, error) {

	var payout *models.PayoutRequest
	var from models.PayoutStatus
	err := w.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		payout, err = tx.GetPayout(ctx, payoutId)
		if err != nil {
			return err
		}
		if err := checkTransition(payout, to); err != nil {
			return err
		}

		ts := time.Now().UTC()
		if err := apply(ctx, tx, payout, ts); err != nil {
			return err
		}
		from = payout.Status
		payout.Status = to
		payout.UpdatedAt = ts
		return tx.UpdatePayout(ctx, payout, from)
	})
	if err != nil {
		zap.L().Warn("Payout transition rejected",
			zap.String("payout_id", payoutId),
			zap.String("to", string(to)),
			zap.String("actor", actor.String()),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Payout transitioned",
		zap.String("payout_id", payoutId),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor.String()))
	return payout, nil
}
