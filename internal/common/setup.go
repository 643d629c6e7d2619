package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"escrow-ledger-go/internal/api"
	"escrow-ledger-go/internal/database"
	"escrow-ledger-go/internal/distribution"
	"escrow-ledger-go/internal/escrow"
	"escrow-ledger-go/internal/formance"
	"escrow-ledger-go/internal/ledger"
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/payout"
	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/prime"
	"escrow-ledger-go/internal/tax"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is every engine wired against one store and one policy table
type Services struct {
	DbService    *database.Service
	Policy       models.Policy
	Authz        *policy.Table
	Escrow       *escrow.Machine
	Distribution *distribution.Engine
	Ledger       *ledger.Ledger
	Payouts      *payout.Workflow
	Queries      *api.LedgerService

	// PayoutWallet is nil when Prime credentials are absent; payouts then
	// stay PROCESSING until an external callback completes them.
	PayoutWallet *prime.PayoutWallet
	Mirror       *formance.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	services := &Services{
		DbService: dbService,
		Policy:    cfg.Policy,
		Authz:     policy.NewTable(cfg.Policy.Approvals),
		Queries:   api.NewLedgerService(dbService),
	}

	if cfg.Formance.Enabled() {
		mirror, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		dbService.SetMirror(mirror)
		services.Mirror = mirror
	}

	var transferer payout.Transferer
	if cfg.Prime.Enabled() {
		zap.L().Info("Loading Prime API credentials")
		primeService, err := prime.NewService(loadPrimeCredentials(cfg.Prime))
		if err != nil {
			dbService.Close()
			return nil, err
		}

		wallet, err := prime.NewPayoutWallet(ctx, primeService, cfg.Prime.PortfolioName, cfg.Prime.PayoutSymbol)
		if err != nil {
			dbService.Close()
			return nil, fmt.Errorf("failed to resolve payout wallet: %w", err)
		}
		services.PayoutWallet = wallet
		transferer = wallet
	} else {
		zap.L().Info("Prime credentials not set - payouts will wait for external completion callbacks")
	}

	calc := tax.NewCalculator(cfg.Policy)
	services.Escrow = escrow.NewMachine(dbService, cfg.Policy, services.Authz)
	services.Distribution = distribution.NewEngine(dbService, calc, cfg.Policy, services.Authz)
	services.Ledger = ledger.New(dbService, services.Authz)
	services.Payouts = payout.NewWorkflow(dbService, calc, cfg.Policy, services.Authz, transferer)

	return services, nil
}

// InitializeDatabaseOnly initializes just the database service without Prime API
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func loadPrimeCredentials(cfg models.PrimeConfig) *credentials.Credentials {
	return &credentials.Credentials{
		AccessKey:  cfg.AccessKey,
		Passphrase: cfg.Passphrase,
		SigningKey: cfg.SigningKey,
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
