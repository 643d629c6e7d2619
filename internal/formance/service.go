package formance

import (
	"context"
	"errors"
	"fmt"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerMirror.
var _ store.LedgerMirror = (*Service)(nil)

// assetPrecision maps currency codes to the minor-unit precision used on the Formance ledger.
var assetPrecision = map[string]int{
	"INR":  2,
	"USD":  2,
	"EUR":  2,
	"USDC": 6,
}

// Service mirrors committed ledger transactions into a Formance Stack ledger.
// The local store stays authoritative; the mirror is an external audit copy.
type Service struct {
	client *v3.Formance
	ledger string
}

// NewService connects to the stack and creates the ledger if it doesn't already exist.
func NewService(ctx context.Context, cfg models.FormanceConfig) (*Service, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "escrow-ledger"
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	svc := &Service{client: client, ledger: cfg.LedgerName}

	if err := svc.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance mirror initialized", zap.String("ledger", cfg.LedgerName))
	return svc, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (s *Service) ensureLedger(ctx context.Context) error {
	_, err := s.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: s.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "escrow-ledger",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", s.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", s.ledger))
	return nil
}

// ---------- helpers ----------

// formanceAsset returns the Formance UMN notation, e.g. "INR/2".
func formanceAsset(currency string) string {
	return fmt.Sprintf("%s/%d", currency, precisionFor(currency))
}

func precisionFor(currency string) int {
	if p, ok := assetPrecision[currency]; ok {
		return p
	}
	return 2
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

func strPtr(s string) *string { return &s }
