package formance

import (
	"math/big"
	"strings"
	"testing"

	"escrow-ledger-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		currency string
		want     string
	}{
		{"INR", "INR/2"},
		{"USDC", "USDC/6"},
		{"XYZ", "XYZ/2"}, // default precision
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.currency); got != tt.want {
			t.Errorf("formanceAsset(%q) = %q, want %q", tt.currency, got, tt.want)
		}
	}
}

func TestBigIntToDecimal(t *testing.T) {
	result := bigIntToDecimal(big.NewInt(12345), "INR")
	if !result.Equal(decimal.RequireFromString("123.45")) {
		t.Errorf("expected 123.45, got %s", result.String())
	}

	result = bigIntToDecimal(big.NewInt(1_000_000), "USDC")
	if !result.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected 1, got %s", result.String())
	}

	if result = bigIntToDecimal(nil, "INR"); !result.IsZero() {
		t.Errorf("expected 0, got %s", result.String())
	}
}

func TestVolumeBalance(t *testing.T) {
	vols := map[string]shared.V2Volume{
		"INR/2": {Input: big.NewInt(500), Output: big.NewInt(200)},
	}
	if got := volumeBalance(vols, "INR/2"); got.Int64() != 300 {
		t.Errorf("expected 300, got %s", got)
	}
	if got := volumeBalance(vols, "USD/2"); got != nil {
		t.Errorf("expected nil for missing asset, got %s", got)
	}
}

func TestIsConflictError(t *testing.T) {
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
}

func TestLegs(t *testing.T) {
	tests := []struct {
		name string
		txn  models.LedgerTransaction
		want []leg
	}{
		{
			name: "credit with withholding",
			txn: models.LedgerTransaction{OwnerId: "m1", Type: models.TxCreditDistribution,
				Amount: decimal.NewFromInt(720), TaxWithheld: decimal.NewFromInt(80)},
			want: []leg{
				{source: accountEscrowClearing, destination: "wallets:m1", amount: decimal.NewFromInt(720)},
				{source: accountEscrowClearing, destination: accountTaxPayable, amount: decimal.NewFromInt(80)},
			},
		},
		{
			name: "commission",
			txn: models.LedgerTransaction{OwnerId: models.PlatformCommissionAccount, Type: models.TxDebitCommission,
				Amount: decimal.NewFromInt(150)},
			want: []leg{
				{source: accountEscrowClearing, destination: "wallets:platform-commission", amount: decimal.NewFromInt(150)},
			},
		},
		{
			name: "withdrawal with withholding",
			txn: models.LedgerTransaction{OwnerId: "m1", Type: models.TxDebitWithdrawal,
				Amount: decimal.NewFromInt(-500), TaxWithheld: decimal.NewFromInt(50)},
			want: []leg{
				{source: "wallets:m1", destination: accountPayouts, amount: decimal.NewFromInt(450)},
				{source: "wallets:m1", destination: accountTaxPayable, amount: decimal.NewFromInt(50)},
			},
		},
		{
			name: "reversal returning tax",
			txn: models.LedgerTransaction{OwnerId: "m1", Type: models.TxReversal,
				Amount: decimal.NewFromInt(-360), TaxWithheld: decimal.NewFromInt(40)},
			want: []leg{
				{source: "wallets:m1", destination: accountEscrowRefunds, amount: decimal.NewFromInt(360)},
				{source: accountTaxPayable, destination: accountEscrowRefunds, amount: decimal.NewFromInt(40)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := legs(tt.txn)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d legs, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i].source != tt.want[i].source || got[i].destination != tt.want[i].destination {
					t.Errorf("leg %d: got %s -> %s, want %s -> %s", i,
						got[i].source, got[i].destination, tt.want[i].source, tt.want[i].destination)
				}
				if !got[i].amount.Equal(tt.want[i].amount) {
					t.Errorf("leg %d: got amount %s, want %s", i, got[i].amount, tt.want[i].amount)
				}
			}
		})
	}
}

func TestRenderScript(t *testing.T) {
	txn := models.LedgerTransaction{
		Id: "tx-1", OwnerId: "m1", Type: models.TxCreditDistribution, Currency: "INR",
		Amount: decimal.RequireFromString("720.50"), TaxWithheld: decimal.NewFromInt(80), SourceRef: "pay-1",
	}

	script, vars := renderScript(txn)

	if vars["asset"] != "INR/2" {
		t.Errorf("asset = %q, want INR/2", vars["asset"])
	}
	if vars["amount_0"] != "72050" {
		t.Errorf("amount_0 = %q, want 72050", vars["amount_0"])
	}
	if vars["amount_1"] != "8000" {
		t.Errorf("amount_1 = %q, want 8000", vars["amount_1"])
	}
	if vars["destination_0"] != "wallets:m1" {
		t.Errorf("destination_0 = %q, want wallets:m1", vars["destination_0"])
	}
	for _, want := range []string{"send [$asset $amount_0]", "send [$asset $amount_1]", "number $amount_1", `set_tx_meta("source_ref", $source_ref)`} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
}
