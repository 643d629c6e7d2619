package database

import (
	"context"
	"fmt"

	"escrow-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// walletView combines the maintained projection with the derived pending-payout
// amount. Owners with no ledger activity get a zero wallet.
func walletView(ctx context.Context, q querier, ownerId string) (*models.WalletBalance, error) {
	wallet, err := getWalletRow(ctx, q, ownerId)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		wallet = &models.WalletBalance{
			OwnerId:           ownerId,
			Balance:           decimal.Zero,
			LifetimeEarned:    decimal.Zero,
			LifetimeWithdrawn: decimal.Zero,
		}
	}

	pending, _, err := openPayoutTotals(ctx, q, ownerId, "")
	if err != nil {
		return nil, err
	}
	wallet.PendingPayout = pending
	return wallet, nil
}

func (s *Service) GetWalletBalance(ctx context.Context, ownerId string) (*models.WalletBalance, error) {
	wallet, err := walletView(ctx, s.db, ownerId)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("Retrieved balance",
		zap.String("owner_id", ownerId),
		zap.String("balance", wallet.Balance.String()),
		zap.String("pending_payout", wallet.PendingPayout.String()))
	return wallet, nil
}

// ListWallets returns every wallet with ledger activity
func (s *Service) ListWallets(ctx context.Context) ([]models.WalletBalance, error) {
	zap.L().Debug("Getting all balances")

	rows, err := s.db.QueryContext(ctx, queryGetAllBalances)
	if err != nil {
		zap.L().Error("Failed to get all balances", zap.Error(err))
		return nil, fmt.Errorf("failed to get all balances: %w", err)
	}
	defer closeRows(rows)

	var wallets []models.WalletBalance
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		wallets = append(wallets, *wallet)
	}
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during balance row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating balance rows: %w", err)
	}

	for i := range wallets {
		pending, _, err := openPayoutTotals(ctx, s.db, wallets[i].OwnerId, "")
		if err != nil {
			return nil, err
		}
		wallets[i].PendingPayout = pending
	}
	return wallets, nil
}

// GetLedgerHistory returns the owner's transactions, newest first
func (s *Service) GetLedgerHistory(ctx context.Context, ownerId string, limit, offset int) ([]models.LedgerTransaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("owner_id", ownerId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return listTransactions(ctx, s.db, queryGetTransactionHistory, ownerId, limit, offset)
}

func (s *Service) ListTaxLiabilities(ctx context.Context, ownerId string) ([]models.TaxLiability, error) {
	return listTaxLiabilities(ctx, s.db, queryGetTaxLiabilitiesByOwner, ownerId)
}

// GetJournalEntries returns the double-entry lines written for one transaction
func (s *Service) GetJournalEntries(ctx context.Context, transactionId string) ([]models.JournalEntry, error) {
	return getJournalEntries(ctx, s.db, transactionId)
}
