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

package ledger

import (
	"context"
	"errors"
	"fmt"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger exposes direct wallet writes and the drift diagnostic. Distribution,
// dispute and payout flows append through their own atomic units instead.
type Ledger struct {
	store store.Store
	authz *policy.Table
}

func New(s store.Store, authz *policy.Table) *Ledger {
	return &Ledger{store: s, authz: authz}
}

// CreditParams describes a manual credit. Only CREDIT_DISTRIBUTION and
// CREDIT_BONUS may be written this way.
type CreditParams struct {
	OwnerId     string
	Amount      decimal.Decimal
	Type        models.TransactionType
	Currency    string
	SourceRef   string
	TaxWithheld decimal.Decimal
	Reference   string
}

// DebitParams describes a manual REVERSAL of an earlier credit; Amount is positive
type DebitParams struct {
	OwnerId    string
	Amount     decimal.Decimal
	Type       models.TransactionType
	Currency   string
	SourceRef  string
	ReversalOf string
	Reference  string
}

func (l *Ledger) Credit(ctx context.Context, actor policy.Actor, params CreditParams) (*models.LedgerTransaction, error) {
	if err := l.authz.Authorize(actor, policy.ActionAdjustLedger); err != nil {
		return nil, err
	}
	if params.Type != models.TxCreditDistribution && params.Type != models.TxCreditBonus {
		return nil, store.Invalid("ledger_transaction", params.OwnerId, "%s cannot be written as a credit", params.Type)
	}
	if !params.Amount.IsPositive() {
		return nil, store.Invalid("ledger_transaction", params.OwnerId, "credit amount must be positive, got %s", params.Amount.String())
	}
	return l.append(ctx, store.AppendParams{
		OwnerId:     params.OwnerId,
		Type:        params.Type,
		Amount:      params.Amount,
		Currency:    params.Currency,
		SourceRef:   params.SourceRef,
		TaxWithheld: params.TaxWithheld,
		Reference:   params.Reference,
	}, nil)
}

// Debit reverses part of an earlier credit of the same owner. Withdrawals go
// through the payout workflow instead. It fails with InsufficientBalanceError
// when Amount exceeds what is still unreversed on the original, or the live
// balance less funds committed to approved payouts.
func (l *Ledger) Debit(ctx context.Context, actor policy.Actor, params DebitParams) (*models.LedgerTransaction, error) {
	if err := l.authz.Authorize(actor, policy.ActionAdjustLedger); err != nil {
		return nil, err
	}
	if params.Type != models.TxReversal {
		return nil, store.Invalid("ledger_transaction", params.OwnerId, "%s cannot be written as a debit", params.Type)
	}
	if params.ReversalOf == "" {
		return nil, store.Invalid("ledger_transaction", params.OwnerId, "a reversal must name the transaction it reverses")
	}
	if !params.Amount.IsPositive() {
		return nil, store.Invalid("ledger_transaction", params.OwnerId, "debit amount must be positive, got %s", params.Amount.String())
	}

	check := func(ctx context.Context, tx store.Tx) error {
		original, err := tx.GetTransaction(ctx, params.ReversalOf)
		if errors.Is(err, store.ErrNotFound) {
			return store.Invalid("ledger_transaction", params.OwnerId, "reversed transaction %s does not exist", params.ReversalOf)
		}
		if err != nil {
			return err
		}
		if original.OwnerId != params.OwnerId || original.Type == models.TxReversal || !original.Amount.IsPositive() {
			return store.Invalid("ledger_transaction", params.OwnerId,
				"transaction %s is not a credit of this owner", params.ReversalOf)
		}

		reversed, err := tx.ReversedTotals(ctx, []string{original.Id})
		if err != nil {
			return err
		}
		if remaining := original.Amount.Sub(reversed[original.Id]); params.Amount.GreaterThan(remaining) {
			return &store.InsufficientBalanceError{
				OwnerId:   params.OwnerId,
				Requested: params.Amount,
				Available: remaining,
				Invariant: "reversal must not exceed the unreversed amount of " + original.Id,
			}
		}
		return RequireUncommitted(ctx, tx, params.OwnerId, params.Amount)
	}

	return l.append(ctx, store.AppendParams{
		OwnerId:    params.OwnerId,
		Type:       params.Type,
		Amount:     params.Amount.Neg(),
		Currency:   params.Currency,
		SourceRef:  params.SourceRef,
		ReversalOf: params.ReversalOf,
		Reference:  params.Reference,
	}, check)
}

// RequireUncommitted fails with InsufficientBalanceError when taking amount
// from the owner would reach into funds held for APPROVED or PROCESSING
// payouts. It must run in the same unit as the debit it guards.
func RequireUncommitted(ctx context.Context, tx store.Tx, ownerId string, amount decimal.Decimal) error {
	live, err := tx.LiveBalance(ctx, ownerId)
	if err != nil {
		return err
	}
	committed, err := tx.CommittedPayouts(ctx, ownerId, "")
	if err != nil {
		return err
	}
	if available := live.Sub(committed); amount.GreaterThan(available) {
		zap.L().Warn("Debit would reach funds committed to payouts",
			zap.String("owner_id", ownerId),
			zap.String("amount", amount.String()),
			zap.String("balance", live.String()),
			zap.String("committed", committed.String()))
		return &store.InsufficientBalanceError{
			OwnerId:   ownerId,
			Requested: amount,
			Available: available,
			Invariant: "funds committed to approved payouts cannot be debited",
		}
	}
	return nil
}

func (l *Ledger) append(ctx context.Context, params store.AppendParams, check func(context.Context, store.Tx) error) (*models.LedgerTransaction, error) {
	var transaction *models.LedgerTransaction
	err := l.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		if check != nil {
			if err := check(ctx, tx); err != nil {
				return err
			}
		}
		var err error
		transaction, err = tx.Append(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// Reconcile recomputes the owner's balance from the transaction log. On a
// mismatch the owner is frozen and a LedgerDriftError is returned.
func (l *Ledger) Reconcile(ctx context.Context, ownerId string) error {
	zap.L().Info("Reconciling balance", zap.String("owner_id", ownerId))

	var drift *store.LedgerDriftError
	err := l.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		wallet, err := tx.GetWallet(ctx, ownerId)
		if err != nil {
			return fmt.Errorf("failed to get current balance: %w", err)
		}
		calculated, err := tx.LiveBalance(ctx, ownerId)
		if err != nil {
			return err
		}

		if wallet.Balance.Equal(calculated) {
			return nil
		}

		drift = &store.LedgerDriftError{OwnerId: ownerId, Maintained: wallet.Balance, Calculated: calculated}
		// the freeze must commit, so the drift is reported after the unit
		return tx.SetFrozen(ctx, ownerId, true)
	})
	if err != nil {
		return err
	}

	if drift != nil {
		zap.L().Error("Balance reconciliation failed",
			zap.String("owner_id", ownerId),
			zap.String("current_balance", drift.Maintained.String()),
			zap.String("calculated_balance", drift.Calculated.String()),
			zap.String("difference", drift.Maintained.Sub(drift.Calculated).String()))
		return drift
	}

	zap.L().Info("Balance reconciliation successful", zap.String("owner_id", ownerId))
	return nil
}

// Unfreeze rebuilds the owner's projection from the transaction log and lifts the freeze
func (l *Ledger) Unfreeze(ctx context.Context, actor policy.Actor, ownerId string) (*models.WalletBalance, error) {
	if err := l.authz.Authorize(actor, policy.ActionUnfreeze); err != nil {
		return nil, err
	}

	var wallet *models.WalletBalance
	err := l.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		wallet, err = tx.RebuildProjection(ctx, ownerId)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Warn("Wallet unfrozen by operator",
		zap.String("owner_id", ownerId),
		zap.String("actor", actor.String()),
		zap.String("balance", wallet.Balance.String()))
	return wallet, nil
}

func (l *Ledger) Balance(ctx context.Context, ownerId string) (*models.WalletBalance, error) {
	return l.store.GetWalletBalance(ctx, ownerId)
}

func (l *Ledger) History(ctx context.Context, ownerId string, limit, offset int) ([]models.LedgerTransaction, error) {
	return l.store.GetLedgerHistory(ctx, ownerId, limit, offset)
}
