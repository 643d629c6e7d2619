package prime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"escrow-ledger-go/internal/models"

	"go.uber.org/zap"
)

const defaultPortfolioName = "Default Portfolio"

// PayoutWallet is the Prime wallet payouts are sent from. It submits
// withdrawals keyed by payout id and reports them back to the listener.
type PayoutWallet struct {
	service     *Service
	PortfolioId string
	WalletId    string
	Asset       string
}

// NewPayoutWallet resolves the portfolio and the trading wallet holding asset
func NewPayoutWallet(ctx context.Context, service *Service, portfolioName, asset string) (*PayoutWallet, error) {
	if portfolioName == "" {
		portfolioName = defaultPortfolioName
	}

	portfolio, err := service.FindPortfolio(ctx, portfolioName)
	if err != nil {
		return nil, err
	}

	symbol, _, _ := strings.Cut(asset, "-")
	walletList, err := service.ListWallets(ctx, portfolio.Id, "TRADING", []string{symbol})
	if err != nil {
		return nil, err
	}
	if len(walletList) == 0 {
		return nil, fmt.Errorf("no %s trading wallet in portfolio %s", symbol, portfolio.Name)
	}

	zap.L().Info("Using payout wallet",
		zap.String("portfolio", portfolio.Name),
		zap.String("portfolio_id", portfolio.Id),
		zap.String("wallet_id", walletList[0].Id),
		zap.String("asset", asset))

	return &PayoutWallet{
		service:     service,
		PortfolioId: portfolio.Id,
		WalletId:    walletList[0].Id,
		Asset:       asset,
	}, nil
}

// Transfer sends the payout's net amount to its destination address. The
// payout id doubles as the Prime idempotency key, so a retried submission
// never pays twice.
func (w *PayoutWallet) Transfer(ctx context.Context, payout models.PayoutRequest) (string, error) {
	if payout.Destination == "" {
		return "", fmt.Errorf("payout %s has no destination address", payout.Id)
	}

	withdrawal, err := w.service.CreateWithdrawal(ctx, CreateWithdrawalParams{
		PortfolioId:        w.PortfolioId,
		WalletId:           w.WalletId,
		DestinationAddress: payout.Destination,
		Amount:             payout.NetAmount.String(),
		Asset:              w.Asset,
		IdempotencyKey:     payout.Id,
	})
	if err != nil {
		return "", err
	}
	return withdrawal.ActivityId, nil
}

// ListWithdrawals returns the wallet's withdrawals created since the given time
func (w *PayoutWallet) ListWithdrawals(ctx context.Context, since time.Time) ([]Transfer, error) {
	return w.service.ListWalletTransactions(ctx, w.PortfolioId, w.WalletId, since)
}
