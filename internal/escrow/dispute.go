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

package escrow

import (
	"context"
	"fmt"
	"time"

	"escrow-ledger-go/internal/ledger"
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// ResolveDispute applies the outcome of a dispute.
//
// A payment disputed while HELD has no ledger footprint: FAVOR_PAYER refunds
// it and FAVOR_RECIPIENT releases it back to HELD. A payment disputed after
// distribution is unwound with REVERSAL transactions, each a percentage of
// what is still unreversed on the original credit. FAVOR_PAYER reverses
// everything and ends REFUNDED; PARTIAL reverses RefundPercentage and
// FAVOR_RECIPIENT nothing, both ending DISTRIBUTED. A reversal that would
// overdraw a wallet, or take funds already committed to an approved payout,
// aborts the whole resolution and the dispute stays open.
func (m *Machine) ResolveDispute(ctx context.Context, actor policy.Actor, paymentId string, resolution models.DisputeResolution) (*models.EscrowPayment, []models.LedgerTransaction, error) {
	if err := m.authz.Authorize(actor, policy.ActionResolveDispute); err != nil {
		return nil, nil, err
	}

	pct, err := refundPercentage(paymentId, resolution)
	if err != nil {
		return nil, nil, err
	}

	var payment *models.EscrowPayment
	var reversals []models.LedgerTransaction
	err = m.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		reversals = nil

		var err error
		payment, err = tx.GetPayment(ctx, paymentId)
		if err != nil {
			return err
		}
		if payment.Status != models.EscrowDisputed {
			return &store.InvalidStateError{Entity: "escrow_payment", Id: paymentId, State: string(payment.Status),
				Invariant: "only DISPUTED payments can be resolved"}
		}

		switch payment.DisputedFrom {
		case models.EscrowHeld:
			switch resolution.Outcome {
			case models.DisputeFavorPayer:
				return m.refund(ctx, tx, payment, payment.GrossAmount)
			case models.DisputeFavorRecipient:
				return m.restore(ctx, tx, payment, models.EscrowHeld, decimal.Zero)
			default:
				return store.Invalid("dispute", paymentId, "a payment that was never distributed cannot be partially refunded")
			}

		case models.EscrowDistributed:
			var refunded decimal.Decimal
			if pct.IsPositive() {
				reversals, refunded, err = m.reverse(ctx, tx, payment, pct)
				if err != nil {
					return err
				}
			}
			if resolution.Outcome == models.DisputeFavorPayer {
				return m.refund(ctx, tx, payment, refunded)
			}
			return m.restore(ctx, tx, payment, models.EscrowDistributed, refunded)

		default:
			return &store.InvalidStateError{Entity: "escrow_payment", Id: paymentId, State: string(payment.DisputedFrom),
				Invariant: "dispute origin must be HELD or DISTRIBUTED"}
		}
	})
	if err != nil {
		zap.L().Warn("Dispute resolution rejected",
			zap.String("payment_id", paymentId),
			zap.String("outcome", string(resolution.Outcome)),
			zap.Error(err))
		return nil, nil, err
	}

	zap.L().Info("Dispute resolved",
		zap.String("payment_id", paymentId),
		zap.String("outcome", string(resolution.Outcome)),
		zap.String("status", string(payment.Status)),
		zap.String("refunded_amount", payment.RefundedAmount.String()),
		zap.Int("reversals", len(reversals)),
		zap.String("actor", actor.String()))
	return payment, reversals, nil
}

func refundPercentage(paymentId string, resolution models.DisputeResolution) (decimal.Decimal, error) {
	switch resolution.Outcome {
	case models.DisputeFavorPayer:
		return hundred, nil
	case models.DisputeFavorRecipient:
		return decimal.Zero, nil
	case models.DisputePartial:
		pct := resolution.RefundPercentage
		if !pct.IsPositive() || !pct.LessThan(hundred) {
			return decimal.Zero, store.Invalid("dispute", paymentId, "partial refund percentage must be between 0 and 100 exclusive, got %s", pct.String())
		}
		return pct, nil
	default:
		return decimal.Zero, store.Invalid("dispute", paymentId, "unknown dispute outcome %q", resolution.Outcome)
	}
}

func (m *Machine) restore(ctx context.Context, tx store.Tx, payment *models.EscrowPayment, to models.EscrowStatus, refunded decimal.Decimal) error {
	if err := checkTransition(payment, to); err != nil {
		return err
	}
	ts := time.Now().UTC()
	payment.Status = to
	payment.RefundedAmount = payment.RefundedAmount.Add(refunded)
	payment.UpdatedAt = ts
	return tx.UpdatePayment(ctx, payment, models.EscrowDisputed)
}

// reverse writes one REVERSAL per original credit of the payment and returns
// the money taken back, withheld tax included.
func (m *Machine) reverse(ctx context.Context, tx store.Tx, payment *models.EscrowPayment, pct decimal.Decimal) ([]models.LedgerTransaction, decimal.Decimal, error) {
	scale := m.policy.Scale(payment.Currency)

	txns, err := tx.ListTransactionsBySource(ctx, payment.Id)
	if err != nil {
		return nil, decimal.Zero, err
	}
	var originals []models.LedgerTransaction
	var ids []string
	for _, t := range txns {
		if t.Type != models.TxReversal && t.Amount.IsPositive() {
			originals = append(originals, t)
			ids = append(ids, t.Id)
		}
	}
	reversed, err := tx.ReversedTotals(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}

	liabilities, err := tx.ListTaxLiabilitiesBySource(ctx, payment.Id)
	if err != nil {
		return nil, decimal.Zero, err
	}
	// outstanding withholding per credited transaction, net of earlier reversals
	withheld := make(map[string]decimal.Decimal)
	category := make(map[string]string)
	for _, l := range liabilities {
		if l.TransactionId == "" {
			continue
		}
		withheld[l.TransactionId] = withheld[l.TransactionId].Add(l.Withheld)
		if l.Withheld.IsPositive() {
			category[l.TransactionId] = l.Category
		}
	}

	var written []models.LedgerTransaction
	refunded := decimal.Zero
	for _, original := range originals {
		remaining := original.Amount.Sub(reversed[original.Id])
		amount := remaining.Mul(pct).Div(hundred).Truncate(scale)
		taxBack := withheld[original.Id].Mul(pct).Div(hundred).Truncate(scale)

		if amount.IsPositive() {
			if err := ledger.RequireUncommitted(ctx, tx, original.OwnerId, amount); err != nil {
				return nil, decimal.Zero, err
			}
			t, err := tx.Append(ctx, store.AppendParams{
				OwnerId:     original.OwnerId,
				Type:        models.TxReversal,
				Amount:      amount.Neg(),
				Currency:    original.Currency,
				SourceRef:   payment.Id,
				ReversalOf:  original.Id,
				TaxWithheld: taxBack,
				Reference:   fmt.Sprintf("dispute refund %s%% of %s", pct.String(), original.Id),
			})
			if err != nil {
				return nil, decimal.Zero, err
			}
			written = append(written, *t)
			refunded = refunded.Add(amount)
		}

		if taxBack.IsPositive() {
			if err := tx.InsertTaxLiability(ctx, &models.TaxLiability{
				OwnerId:       original.OwnerId,
				SourceRef:     payment.Id,
				TransactionId: original.Id,
				Category:      category[original.Id],
				Gross:         amount.Add(taxBack).Neg(),
				Withheld:      taxBack.Neg(),
			}); err != nil {
				return nil, decimal.Zero, err
			}
			refunded = refunded.Add(taxBack)
		}
	}
	return written, refunded, nil
}
