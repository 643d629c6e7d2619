package formance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"escrow-ledger-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Formance account addresses of the journal accounts
const (
	accountEscrowClearing = "escrow:clearing"
	accountEscrowRefunds  = "escrow:refunds"
	accountTaxPayable     = "tax:payable"
	accountPayouts        = "payouts:clearing"
)

func walletAccount(ownerId string) string {
	return "wallets:" + ownerId
}

// leg is one send statement of a mirrored transaction
type leg struct {
	source      string
	destination string
	amount      decimal.Decimal
	// overdraft lets the source go negative, for the clearing accounts and
	// for wallets whose earlier history was never mirrored
	overdraft bool
}

// legs maps a ledger transaction to the same movements the local journal records
func legs(txn models.LedgerTransaction) []leg {
	wallet := walletAccount(txn.OwnerId)
	amount := txn.Amount.Abs()
	tax := txn.TaxWithheld

	var out []leg
	switch {
	case txn.Type == models.TxDebitWithdrawal:
		out = append(out, leg{source: wallet, destination: accountPayouts, amount: amount.Sub(tax), overdraft: true})
		if tax.IsPositive() {
			out = append(out, leg{source: wallet, destination: accountTaxPayable, amount: tax, overdraft: true})
		}
	case txn.Type == models.TxReversal:
		out = append(out, leg{source: wallet, destination: accountEscrowRefunds, amount: amount, overdraft: true})
		if tax.IsPositive() {
			out = append(out, leg{source: accountTaxPayable, destination: accountEscrowRefunds, amount: tax, overdraft: true})
		}
	default:
		out = append(out, leg{source: accountEscrowClearing, destination: wallet, amount: amount, overdraft: true})
		if tax.IsPositive() {
			out = append(out, leg{source: accountEscrowClearing, destination: accountTaxPayable, amount: tax, overdraft: true})
		}
	}
	return out
}

// renderScript builds the Numscript for a set of legs. Accounts and amounts
// are bound as vars; metadata is set inside the script so the Formance
// transaction is self-describing.
func renderScript(txn models.LedgerTransaction) (string, map[string]string) {
	precision := int32(precisionFor(txn.Currency))
	vars := map[string]string{
		"asset":          formanceAsset(txn.Currency),
		"transaction_id": txn.Id,
		"tx_type":        string(txn.Type),
		"owner_id":       txn.OwnerId,
		"source_ref":     txn.SourceRef,
		"amount_human":   txn.Amount.String(),
	}

	var decl, body strings.Builder
	decl.WriteString("vars {\n  asset $asset\n")
	for i, l := range legs(txn) {
		fmt.Fprintf(&decl, "  number $amount_%d\n  account $source_%d\n  account $destination_%d\n", i, i, i)
		vars[fmt.Sprintf("amount_%d", i)] = l.amount.Shift(precision).BigInt().String()
		vars[fmt.Sprintf("source_%d", i)] = l.source
		vars[fmt.Sprintf("destination_%d", i)] = l.destination

		source := fmt.Sprintf("$source_%d", i)
		if l.overdraft {
			source += " allowing unbounded overdraft"
		}
		fmt.Fprintf(&body, "send [$asset $amount_%d] (\n  source = %s\n  destination = $destination_%d\n)\n\n", i, source, i)
	}
	decl.WriteString("  string $transaction_id\n  string $tx_type\n  string $owner_id\n  string $source_ref\n  string $amount_human\n}\n\n")

	body.WriteString(`set_tx_meta("transaction_id", $transaction_id)
set_tx_meta("tx_type", $tx_type)
set_tx_meta("owner_id", $owner_id)
set_tx_meta("source_ref", $source_ref)
set_tx_meta("amount_human", $amount_human)
`)
	return decl.String() + body.String(), vars
}

// MirrorTransactions posts each transaction with its id as the Formance
// reference. A reference conflict means it was already mirrored.
func (s *Service) MirrorTransactions(ctx context.Context, txns []models.LedgerTransaction) error {
	var errs []error
	for _, txn := range txns {
		if err := s.post(ctx, txn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) post(ctx context.Context, txn models.LedgerTransaction) error {
	script, vars := renderScript(txn)

	postTx := shared.V2PostTransaction{
		Reference: strPtr(txn.Id),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars:  vars,
		},
	}
	if !txn.CreatedAt.IsZero() {
		postTx.Timestamp = &txn.CreatedAt
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Transaction already mirrored", zap.String("transaction_id", txn.Id))
			return nil
		}
		return fmt.Errorf("error mirroring transaction %s: %w", txn.Id, err)
	}

	zap.L().Debug("Transaction mirrored to Formance",
		zap.String("transaction_id", txn.Id),
		zap.String("type", string(txn.Type)),
		zap.String("owner_id", txn.OwnerId),
		zap.String("amount", txn.Amount.String()))
	return nil
}
