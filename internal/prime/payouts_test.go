package prime

import (
	"context"
	"testing"

	"escrow-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

func TestTransfer_RequiresDestination(t *testing.T) {
	w := &PayoutWallet{PortfolioId: "p", WalletId: "w", Asset: "USDC"}

	_, err := w.Transfer(context.Background(), models.PayoutRequest{Id: "payout-1", NetAmount: decimal.NewFromInt(10)})
	if err == nil {
		t.Fatal("Expected error for payout without destination")
	}
}
