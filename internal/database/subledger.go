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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ownerTotals is the ledger summed in Go; amounts are TEXT so SQL SUM would go through floats
type ownerTotals struct {
	balance           decimal.Decimal
	lifetimeEarned    decimal.Decimal
	lifetimeWithdrawn decimal.Decimal
	lastTransactionId string
}

func (t *ownerTotals) apply(txType models.TransactionType, amount decimal.Decimal) {
	t.balance = t.balance.Add(amount)
	if txType == models.TxDebitWithdrawal {
		t.lifetimeWithdrawn = t.lifetimeWithdrawn.Sub(amount)
	} else {
		t.lifetimeEarned = t.lifetimeEarned.Add(amount)
	}
}

func sumOwner(ctx context.Context, q querier, ownerId string) (*ownerTotals, error) {
	rows, err := q.QueryContext(ctx, queryGetOwnerAmounts, ownerId)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate balance from transactions: %w", err)
	}
	defer closeRows(rows)

	totals := &ownerTotals{}
	for rows.Next() {
		var txType models.TransactionType
		var amount decimal.Decimal
		var id string
		if err := rows.Scan(&txType, &amount, &id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction amount: %w", err)
		}
		totals.apply(txType, amount)
		totals.lastTransactionId = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return totals, nil
}

func scanWallet(row scanner) (*models.WalletBalance, error) {
	var w models.WalletBalance
	err := row.Scan(&w.OwnerId, &w.Balance, &w.LifetimeEarned, &w.LifetimeWithdrawn,
		&w.LastTransactionId, &w.Frozen, &w.Version, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// getWalletRow returns the maintained projection, or nil if the owner has none yet
func getWalletRow(ctx context.Context, q querier, ownerId string) (*models.WalletBalance, error) {
	wallet, err := scanWallet(q.QueryRowContext(ctx, queryGetAccountBalance, ownerId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("Failed to get balance", zap.String("owner_id", ownerId), zap.Error(err))
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return wallet, nil
}

func getOrCreateWalletRow(ctx context.Context, q querier, ownerId string) (*models.WalletBalance, error) {
	wallet, err := getWalletRow(ctx, q, ownerId)
	if err != nil || wallet != nil {
		return wallet, err
	}

	ts := now()
	if _, err := q.ExecContext(ctx, queryInsertAccountBalance, ownerId, ts); err != nil {
		return nil, fmt.Errorf("failed to create account balance: %w", err)
	}
	return &models.WalletBalance{
		OwnerId:           ownerId,
		Balance:           decimal.Zero,
		LifetimeEarned:    decimal.Zero,
		LifetimeWithdrawn: decimal.Zero,
		Version:           1,
		UpdatedAt:         ts,
	}, nil
}

// appendTransaction records one ledger write. The prior balance is the live
// sum of the owner's transactions, read inside the caller's transaction.
func appendTransaction(ctx context.Context, q querier, params store.AppendParams) (*models.LedgerTransaction, error) {
	zap.L().Info("Processing transaction",
		zap.String("owner_id", params.OwnerId),
		zap.String("type", string(params.Type)),
		zap.String("amount", params.Amount.String()),
		zap.String("source_ref", params.SourceRef))

	if params.OwnerId == "" || params.SourceRef == "" {
		return nil, store.Invalid("ledger_transaction", params.OwnerId, "owner and source reference are required")
	}
	if params.Amount.IsZero() {
		return nil, store.Invalid("ledger_transaction", params.OwnerId, "amount must be non-zero")
	}

	wallet, err := getOrCreateWalletRow(ctx, q, params.OwnerId)
	if err != nil {
		return nil, err
	}

	live, err := sumOwner(ctx, q, params.OwnerId)
	if err != nil {
		return nil, err
	}

	if wallet.Frozen {
		zap.L().Error("Write rejected for frozen owner",
			zap.String("owner_id", params.OwnerId),
			zap.String("maintained_balance", wallet.Balance.String()),
			zap.String("calculated_balance", live.balance.String()))
		return nil, &store.LedgerDriftError{OwnerId: params.OwnerId, Maintained: wallet.Balance, Calculated: live.balance}
	}

	balanceAfter := live.balance.Add(params.Amount)
	if balanceAfter.IsNegative() {
		zap.L().Warn("Debit exceeds balance",
			zap.String("owner_id", params.OwnerId),
			zap.String("balance", live.balance.String()),
			zap.String("amount", params.Amount.String()))
		return nil, &store.InsufficientBalanceError{
			OwnerId:   params.OwnerId,
			Requested: params.Amount.Neg(),
			Available: live.balance,
			Invariant: "wallet balance must not go negative",
		}
	}

	taxWithheld := params.TaxWithheld
	if taxWithheld.IsNegative() {
		return nil, store.Invalid("ledger_transaction", params.OwnerId, "tax withheld must not be negative")
	}

	transaction := &models.LedgerTransaction{
		Id:            uuid.New().String(),
		OwnerId:       params.OwnerId,
		Type:          params.Type,
		Amount:        params.Amount,
		BalanceBefore: live.balance,
		BalanceAfter:  balanceAfter,
		Currency:      params.Currency,
		SourceRef:     params.SourceRef,
		ReversalOf:    params.ReversalOf,
		TaxWithheld:   taxWithheld,
		Reference:     params.Reference,
		CreatedAt:     now(),
	}

	_, err = q.ExecContext(ctx, queryInsertTransaction,
		transaction.Id, transaction.OwnerId, transaction.Type, transaction.Amount.String(),
		transaction.BalanceBefore.String(), transaction.BalanceAfter.String(), transaction.Currency,
		transaction.SourceRef, transaction.ReversalOf, transaction.TaxWithheld.String(),
		transaction.Reference, transaction.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	// The projection moves by the same amount from its own prior value, so a
	// drift that existed before this write is still visible to reconcile.
	projected := ownerTotals{
		balance:           wallet.Balance,
		lifetimeEarned:    wallet.LifetimeEarned,
		lifetimeWithdrawn: wallet.LifetimeWithdrawn,
	}
	projected.apply(params.Type, params.Amount)

	// Update account balance (with optimistic locking)
	result, err := q.ExecContext(ctx, queryUpdateAccountBalance,
		projected.balance.String(), projected.lifetimeEarned.String(), projected.lifetimeWithdrawn.String(),
		transaction.Id, transaction.CreatedAt, params.OwnerId, wallet.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	if err := requireOneRow(result, "balance"); err != nil {
		return nil, err
	}

	if err := addJournalEntries(ctx, q, transaction); err != nil {
		return nil, fmt.Errorf("failed to add journal entries: %w", err)
	}

	zap.L().Info("Transaction processed successfully",
		zap.String("transaction_id", transaction.Id),
		zap.String("owner_id", params.OwnerId),
		zap.String("old_balance", live.balance.String()),
		zap.String("new_balance", balanceAfter.String()))

	return transaction, nil
}

type journalLine struct {
	accountType  string
	accountId    string
	debitAmount  decimal.Decimal
	creditAmount decimal.Decimal
}

// journalLines maps a ledger transaction onto double-entry lines.
// Credits move money out of escrow clearing into the wallet and book any
// withholding to tax payable. Withdrawals move the wallet into payout
// clearing; reversals return wallet and withheld tax to escrow refunds.
func journalLines(transaction *models.LedgerTransaction) []journalLine {
	wallet := fmt.Sprintf("%s_%s", transaction.OwnerId, transaction.Currency)
	escrow := fmt.Sprintf("escrow_%s", transaction.Currency)

	if transaction.Amount.IsPositive() {
		lines := []journalLine{
			{"escrow_clearing", escrow, transaction.Amount.Add(transaction.TaxWithheld), decimal.Zero},
			{"wallet", wallet, decimal.Zero, transaction.Amount},
		}
		if transaction.TaxWithheld.IsPositive() {
			lines = append(lines, journalLine{"tax_payable", escrow, decimal.Zero, transaction.TaxWithheld})
		}
		return lines
	}

	amount := transaction.Amount.Neg()
	tax := transaction.TaxWithheld
	if transaction.Type == models.TxDebitWithdrawal {
		// the wallet gives up the gross; withholding stays behind as tax payable
		lines := []journalLine{
			{"wallet", wallet, amount, decimal.Zero},
			{"payout_clearing", fmt.Sprintf("payouts_%s", transaction.Currency), decimal.Zero, amount.Sub(tax)},
		}
		if tax.IsPositive() {
			lines = append(lines, journalLine{"tax_payable", escrow, decimal.Zero, tax})
		}
		return lines
	}

	lines := []journalLine{{"wallet", wallet, amount, decimal.Zero}}
	if tax.IsPositive() {
		lines = append(lines, journalLine{"tax_payable", escrow, tax, decimal.Zero})
	}
	return append(lines, journalLine{"escrow_refunds", escrow, decimal.Zero, amount.Add(tax)})
}

func addJournalEntries(ctx context.Context, q querier, transaction *models.LedgerTransaction) error {
	for _, entry := range journalLines(transaction) {
		_, err := q.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), transaction.Id, entry.accountType, entry.accountId,
			entry.debitAmount.String(), entry.creditAmount.String(), transaction.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func getJournalEntries(ctx context.Context, q querier, transactionId string) ([]models.JournalEntry, error) {
	rows, err := q.QueryContext(ctx, queryGetJournalEntries, transactionId)
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entries: %w", err)
	}
	defer closeRows(rows)

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.Id, &e.TransactionId, &e.AccountType, &e.AccountId,
			&e.DebitAmount, &e.CreditAmount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}
	return entries, nil
}

func setFrozen(ctx context.Context, q querier, ownerId string, frozen bool) error {
	if _, err := getOrCreateWalletRow(ctx, q, ownerId); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, querySetFrozen, frozen, now(), ownerId); err != nil {
		return fmt.Errorf("failed to set frozen flag: %w", err)
	}
	return nil
}

// rebuildProjection overwrites the maintained projection with the ledger sum
// and clears the frozen flag
func rebuildProjection(ctx context.Context, q querier, ownerId string) (*models.WalletBalance, error) {
	if _, err := getOrCreateWalletRow(ctx, q, ownerId); err != nil {
		return nil, err
	}
	totals, err := sumOwner(ctx, q, ownerId)
	if err != nil {
		return nil, err
	}

	_, err = q.ExecContext(ctx, queryRebuildAccountBalance,
		totals.balance.String(), totals.lifetimeEarned.String(), totals.lifetimeWithdrawn.String(),
		totals.lastTransactionId, now(), ownerId)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild balance: %w", err)
	}

	zap.L().Info("Wallet projection rebuilt",
		zap.String("owner_id", ownerId),
		zap.String("balance", totals.balance.String()))
	return getWalletRow(ctx, q, ownerId)
}

func scanTransaction(row scanner) (*models.LedgerTransaction, error) {
	var tx models.LedgerTransaction
	err := row.Scan(&tx.Id, &tx.OwnerId, &tx.Type, &tx.Amount, &tx.BalanceBefore, &tx.BalanceAfter,
		&tx.Currency, &tx.SourceRef, &tx.ReversalOf, &tx.TaxWithheld, &tx.Reference, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func getTransaction(ctx context.Context, q querier, id string) (*models.LedgerTransaction, error) {
	transaction, err := scanTransaction(q.QueryRowContext(ctx, queryGetTransactionById, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ledger transaction %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return transaction, nil
}

func listTransactions(ctx context.Context, q querier, query string, args ...any) ([]models.LedgerTransaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer closeRows(rows)

	var transactions []models.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *tx)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

// reversedTotals returns, per original transaction id, the absolute amount already reversed
func reversedTotals(ctx context.Context, q querier, originalIds []string) (map[string]decimal.Decimal, error) {
	totals := make(map[string]decimal.Decimal, len(originalIds))
	for _, id := range originalIds {
		rows, err := q.QueryContext(ctx, queryGetReversalAmounts, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get reversals: %w", err)
		}

		total := decimal.Zero
		for rows.Next() {
			var amount decimal.Decimal
			if err := rows.Scan(&amount); err != nil {
				closeRows(rows)
				return nil, fmt.Errorf("failed to scan reversal: %w", err)
			}
			total = total.Add(amount.Abs())
		}
		err = rows.Err()
		closeRows(rows)
		if err != nil {
			return nil, fmt.Errorf("error iterating reversal rows: %w", err)
		}
		totals[id] = total
	}
	return totals, nil
}

func insertTaxLiability(ctx context.Context, q querier, l *models.TaxLiability) error {
	if l.Id == "" {
		l.Id = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now()
	}
	_, err := q.ExecContext(ctx, queryInsertTaxLiability, l.Id, l.OwnerId, l.SourceRef, l.TransactionId,
		l.Category, l.Gross.String(), l.Withheld.String(), l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tax liability: %w", err)
	}

	zap.L().Info("Tax liability recorded",
		zap.String("owner_id", l.OwnerId),
		zap.String("source_ref", l.SourceRef),
		zap.String("category", l.Category),
		zap.String("withheld", l.Withheld.String()))
	return nil
}

func listTaxLiabilities(ctx context.Context, q querier, query, key string) ([]models.TaxLiability, error) {
	rows, err := q.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get tax liabilities: %w", err)
	}
	defer closeRows(rows)

	var liabilities []models.TaxLiability
	for rows.Next() {
		var l models.TaxLiability
		if err := rows.Scan(&l.Id, &l.OwnerId, &l.SourceRef, &l.TransactionId, &l.Category,
			&l.Gross, &l.Withheld, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tax liability: %w", err)
		}
		liabilities = append(liabilities, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tax liability rows: %w", err)
	}
	return liabilities, nil
}
