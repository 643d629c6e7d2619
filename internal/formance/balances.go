package formance

import (
	"context"
	"fmt"
	"math/big"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletBalance returns the mirrored balance of an owner's wallet, for
// comparing the mirror against the local projection.
func (s *Service) WalletBalance(ctx context.Context, ownerId, currency string) (decimal.Decimal, error) {
	zap.L().Debug("Getting mirrored wallet balance from Formance",
		zap.String("owner_id", ownerId), zap.String("currency", currency))

	vols, err := s.getAccountVolumes(ctx, walletAccount(ownerId))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get mirrored balance for %s: %w", ownerId, err)
	}
	return bigIntToDecimal(volumeBalance(vols, formanceAsset(currency)), currency), nil
}

// getAccountVolumes fetches volumes for a single account.
func (s *Service) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		return nil, err
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in minor units to a decimal amount.
func bigIntToDecimal(raw *big.Int, currency string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(currency)))
}
