package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/prime"
	"escrow-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Terminal failure statuses of a Prime withdrawal
var terminalFailures = map[string]bool{
	"TRANSACTION_CANCELLED": true,
	"TRANSACTION_REJECTED":  true,
	"TRANSACTION_FAILED":    true,
	"TRANSACTION_EXPIRED":   true,
}

// processWithdrawal settles the payout whose id is the withdrawal's
// idempotency key. Withdrawals that match no payout were not sent by us.
func (d *TransferListener) processWithdrawal(ctx context.Context, tx prime.Transfer) error {
	if tx.IdempotencyKey == "" {
		d.markTransactionProcessed(tx.Id)
		return nil
	}

	var err error
	switch {
	case tx.Status == "TRANSACTION_DONE":
		ref := tx.TransactionId
		if ref == "" {
			ref = tx.Id
		}
		zap.L().Info("Withdrawal completed",
			zap.String("transaction_id", tx.Id),
			zap.String("payout_id", tx.IdempotencyKey),
			zap.String("amount", tx.Amount),
			zap.String("symbol", tx.Symbol),
			zap.Time("completed_at", tx.CompletedAt))
		_, err = d.payouts.Complete(ctx, policy.System, tx.IdempotencyKey, ref)

	case terminalFailures[tx.Status]:
		zap.L().Warn("Withdrawal failed with terminal status",
			zap.String("transaction_id", tx.Id),
			zap.String("payout_id", tx.IdempotencyKey),
			zap.String("status", tx.Status),
			zap.String("amount", tx.Amount))
		_, err = d.payouts.Fail(ctx, policy.System, tx.IdempotencyKey, "prime withdrawal "+tx.Status)

	default:
		zap.L().Debug("Skipping non-terminal withdrawal - waiting for completion",
			zap.String("transaction_id", tx.Id),
			zap.String("status", tx.Status))
		return nil
	}

	switch {
	case err == nil:
		if since, ok := d.clearStranded(tx.IdempotencyKey); ok {
			zap.L().Info("Stranded payout settled",
				zap.String("transaction_id", tx.Id),
				zap.String("payout_id", tx.IdempotencyKey),
				zap.Duration("stranded_for", time.Since(since)))
		}
	case errors.Is(err, store.ErrInsufficientBalance), errors.Is(err, store.ErrLedgerDrift):
		// The money has left the payout wallet but the debit was refused.
		// Keep retrying so the payout settles once an operator reconciles the owner.
		if d.markStranded(tx.IdempotencyKey) {
			zap.L().Error("Payout stranded: withdrawal settled but wallet debit refused, manual reconciliation required",
				zap.String("transaction_id", tx.Id),
				zap.String("payout_id", tx.IdempotencyKey),
				zap.String("status", tx.Status),
				zap.String("amount", tx.Amount),
				zap.Error(err))
		} else {
			zap.L().Debug("Payout still stranded",
				zap.String("payout_id", tx.IdempotencyKey),
				zap.Error(err))
		}
		return nil
	case errors.Is(err, store.ErrNotFound):
		zap.L().Debug("Withdrawal does not belong to a payout - skipping",
			zap.String("transaction_id", tx.Id),
			zap.String("idempotency_key", tx.IdempotencyKey))
	case errors.Is(err, store.ErrInvalidState):
		// the payout already left PROCESSING through another path
		zap.L().Warn("Payout not settleable from withdrawal",
			zap.String("transaction_id", tx.Id),
			zap.String("payout_id", tx.IdempotencyKey),
			zap.Error(err))
	default:
		return fmt.Errorf("failed to settle payout %s: %w", tx.IdempotencyKey, err)
	}

	d.markTransactionProcessed(tx.Id)
	return nil
}
