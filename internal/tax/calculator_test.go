package tax

import (
	"errors"
	"testing"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func testPolicy() models.Policy {
	return models.Policy{
		CurrencyScales: map[string]int32{"INR": 2, "JPY": 0},
		TaxCategories: map[string]models.TaxCategory{
			"wht10": {Kind: "withholding", Rate: decimal.NewFromInt(10)},
			"wht7":  {Kind: "withholding", Rate: decimal.RequireFromString("7.5")},
			"gst18": {Kind: "consumption", Rate: decimal.NewFromInt(18), Inclusive: true},
		},
	}
}

func TestCompute(t *testing.T) {
	calc := NewCalculator(testPolicy())

	tests := []struct {
		name     string
		gross    string
		category string
		currency string
		withheld string
	}{
		{"no category", "1000", "", "INR", "0"},
		{"flat ten percent", "50000", "wht10", "INR", "5000"},
		{"rounds half up", "0.05", "wht10", "INR", "0.01"},
		{"fractional rate", "333.33", "wht7", "INR", "25"},
		{"inclusive rate", "118", "gst18", "INR", "18"},
		{"zero scale currency", "1005", "wht10", "JPY", "101"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gross := decimal.RequireFromString(tt.gross)
			res, err := calc.Compute(gross, tt.category, tt.currency)
			if err != nil {
				t.Fatalf("Compute failed: %v", err)
			}
			if !res.Withheld.Equal(decimal.RequireFromString(tt.withheld)) {
				t.Errorf("Expected withheld %s, got %s", tt.withheld, res.Withheld)
			}
			if !res.Withheld.Add(res.Net).Equal(gross) {
				t.Errorf("withheld %s + net %s != gross %s", res.Withheld, res.Net, gross)
			}
		})
	}
}

func TestComputeUnknownCategory(t *testing.T) {
	calc := NewCalculator(testPolicy())

	_, err := calc.Compute(decimal.NewFromInt(10), "vat", "INR")
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("Expected ErrValidation, got %v", err)
	}
	var ve *store.ValidationError
	if !errors.As(err, &ve) || ve.Id != "vat" {
		t.Errorf("Expected ValidationError naming the category, got %v", err)
	}
}

func TestComputeRejectsNegativeGross(t *testing.T) {
	calc := NewCalculator(testPolicy())
	if _, err := calc.Compute(decimal.NewFromInt(-1), "wht10", "INR"); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}
