package prime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Portfolio is a Prime portfolio
type Portfolio struct {
	Id   string
	Name string
}

// Wallet is a Prime wallet within a portfolio
type Wallet struct {
	Id     string
	Name   string
	Symbol string
	Type   string
}

// Withdrawal is a submitted Prime withdrawal
type Withdrawal struct {
	ActivityId     string
	Asset          string
	Amount         string
	Destination    string
	IdempotencyKey string
}

// Transfer is one wallet transaction as reported by Prime
type Transfer struct {
	Id             string
	WalletId       string
	Type           string
	Status         string
	Symbol         string
	Amount         string
	Network        string
	TransactionId  string
	IdempotencyKey string
	CreatedAt      time.Time
	CompletedAt    time.Time
}

type Service struct {
	client          client.RestClient
	portfoliosSvc   portfolios.PortfoliosService
	walletsSvc      wallets.WalletsService
	transactionsSvc transactions.TransactionsService
}

func NewService(creds *credentials.Credentials) (*Service, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	return &Service{
		client:          restClient,
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (s *Service) ListPortfolios(ctx context.Context) ([]Portfolio, error) {
	request := &portfolios.ListPortfoliosRequest{}

	response, err := s.portfoliosSvc.ListPortfolios(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to list portfolios: %w", err)
	}

	portfolioList := make([]Portfolio, len(response.Portfolios))
	for i, p := range response.Portfolios {
		portfolioList[i] = Portfolio{
			Id:   p.Id,
			Name: p.Name,
		}
	}

	return portfolioList, nil
}

// FindPortfolio looks a portfolio up by name
func (s *Service) FindPortfolio(ctx context.Context, name string) (*Portfolio, error) {
	portfolioList, err := s.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}

	for _, portfolio := range portfolioList {
		if portfolio.Name == name {
			return &portfolio, nil
		}
	}

	return nil, fmt.Errorf("portfolio %q not found", name)
}

func (s *Service) ListWallets(ctx context.Context, portfolioId, walletType string, symbols []string) ([]Wallet, error) {
	request := &wallets.ListWalletsRequest{
		PortfolioId: portfolioId,
		Type:        walletType,
		Symbols:     symbols,
	}

	response, err := s.walletsSvc.ListWallets(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to list wallets: %w", err)
	}

	walletList := make([]Wallet, len(response.Wallets))
	for i, w := range response.Wallets {
		walletList[i] = Wallet{
			Id:     w.Id,
			Name:   w.Name,
			Symbol: w.Symbol,
			Type:   w.Type,
		}
	}

	return walletList, nil
}

// CreateWithdrawalParams contains parameters for creating a withdrawal
type CreateWithdrawalParams struct {
	PortfolioId        string
	WalletId           string
	DestinationAddress string
	Amount             string
	Asset              string
	IdempotencyKey     string
}

// CreateWithdrawal creates a withdrawal from a wallet
func (s *Service) CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*Withdrawal, error) {
	zap.L().Info("Creating withdrawal via Prime API",
		zap.String("portfolio_id", params.PortfolioId),
		zap.String("wallet_id", params.WalletId),
		zap.String("asset", params.Asset),
		zap.String("amount", params.Amount),
		zap.String("destination", params.DestinationAddress))

	// Asset is either a bare symbol (USDC) or symbol-network-type (USDC-base-mainnet)
	parts := strings.Split(params.Asset, "-")
	symbol := parts[0]

	blockchainAddr := &model.BlockchainAddress{
		Address: params.DestinationAddress,
	}

	if len(parts) >= 3 {
		blockchainAddr.Network = &model.NetworkDetails{
			Id:   parts[1],
			Type: parts[2],
		}
	}

	request := &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       params.PortfolioId,
		SourceWalletId:    params.WalletId,
		Amount:            params.Amount,
		IdempotencyKey:    params.IdempotencyKey,
		Symbol:            symbol,
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: blockchainAddr,
	}

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		zap.L().Error("Failed to create withdrawal",
			zap.String("wallet_id", params.WalletId),
			zap.String("amount", params.Amount),
			zap.String("asset", params.Asset),
			zap.Error(err))
		return nil, fmt.Errorf("unable to create withdrawal: %w", err)
	}

	zap.L().Info("Withdrawal created successfully",
		zap.String("activity_id", response.ActivityId),
		zap.String("wallet_id", params.WalletId),
		zap.String("amount", params.Amount),
		zap.String("asset", params.Asset))

	return &Withdrawal{
		ActivityId:     response.ActivityId,
		Asset:          params.Asset,
		Amount:         params.Amount,
		Destination:    params.DestinationAddress,
		IdempotencyKey: params.IdempotencyKey,
	}, nil
}

// ListWalletTransactions fetches withdrawals of a wallet created since startTime
func (s *Service) ListWalletTransactions(ctx context.Context, portfolioId, walletId string, startTime time.Time) ([]Transfer, error) {
	zap.L().Debug("Making Prime API request",
		zap.String("portfolio_id", portfolioId),
		zap.String("wallet_id", walletId),
		zap.Time("start_time", startTime))

	request := &transactions.ListWalletTransactionsRequest{
		PortfolioId: portfolioId,
		WalletId:    walletId,
		Start:       startTime,
		Types:       []string{"WITHDRAWAL"},
		Pagination: &model.PaginationParams{
			Limit: 500,
		},
	}

	response, err := s.transactionsSvc.ListWalletTransactions(ctx, request)
	if err != nil {
		zap.L().Error("Failed to list wallet transactions",
			zap.String("wallet_id", walletId),
			zap.Error(err))
		return nil, fmt.Errorf("unable to list wallet transactions: %w", err)
	}

	transfers := make([]Transfer, 0, len(response.Transactions))
	for _, tx := range response.Transactions {
		transfers = append(transfers, Transfer{
			Id:             tx.Id,
			WalletId:       tx.WalletId,
			Type:           tx.Type,
			Status:         tx.Status,
			Symbol:         tx.Symbol,
			Amount:         tx.Amount,
			Network:        tx.Network,
			TransactionId:  tx.TransactionId,
			IdempotencyKey: tx.IdempotencyKey,
			CreatedAt:      tx.Created,
			CompletedAt:    tx.Completed,
		})
	}

	zap.L().Debug("Prime API response received",
		zap.String("wallet_id", walletId),
		zap.Int("count", len(transfers)))

	return transfers, nil
}
