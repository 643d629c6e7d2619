package database

import (
	"context"
	"database/sql"
	"time"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

var _ store.Tx = (*txn)(nil)

// txn is the store.Tx handed to Atomically callbacks
type txn struct {
	tx       *sql.Tx
	appended []models.LedgerTransaction
}

func (t *txn) GetMember(ctx context.Context, id string) (*models.Member, error) {
	return getMember(ctx, t.tx, queryGetMemberById, id)
}

func (t *txn) ListFirmMembers(ctx context.Context, firmId string) ([]models.Member, error) {
	return listMembers(ctx, t.tx, queryGetFirmMembers, firmId)
}

func (t *txn) InsertPayment(ctx context.Context, payment *models.EscrowPayment) error {
	return insertPayment(ctx, t.tx, payment)
}

func (t *txn) GetPayment(ctx context.Context, id string) (*models.EscrowPayment, error) {
	return getPayment(ctx, t.tx, id)
}

func (t *txn) UpdatePayment(ctx context.Context, payment *models.EscrowPayment, expected models.EscrowStatus) error {
	return updatePayment(ctx, t.tx, payment, expected)
}

func (t *txn) MarkDistributed(ctx context.Context, paymentId, distributionId string, at time.Time) error {
	return markDistributed(ctx, t.tx, paymentId, distributionId, at)
}

func (t *txn) GetGatewayEvent(ctx context.Context, gatewayRef string) (*models.GatewayEvent, error) {
	return getGatewayEvent(ctx, t.tx, gatewayRef)
}

func (t *txn) InsertGatewayEvent(ctx context.Context, event models.GatewayEvent) error {
	return insertGatewayEvent(ctx, t.tx, event)
}

func (t *txn) InsertPlan(ctx context.Context, plan *models.DistributionPlan) error {
	return insertPlan(ctx, t.tx, plan)
}

func (t *txn) GetPlan(ctx context.Context, id string) (*models.DistributionPlan, error) {
	return getPlan(ctx, t.tx, queryGetPlan, id)
}

func (t *txn) GetPlanForPayment(ctx context.Context, paymentId string) (*models.DistributionPlan, error) {
	return getPlan(ctx, t.tx, queryGetPlanForPayment, paymentId)
}

func (t *txn) DeleteDraftPlan(ctx context.Context, planId string) error {
	return deleteDraftPlan(ctx, t.tx, planId)
}

func (t *txn) UpdateShareApproval(ctx context.Context, share models.Share) error {
	return updateShareApproval(ctx, t.tx, share)
}

func (t *txn) MarkPlanExecuted(ctx context.Context, planId string, at time.Time) error {
	return markPlanExecuted(ctx, t.tx, planId, at)
}

func (t *txn) Append(ctx context.Context, params store.AppendParams) (*models.LedgerTransaction, error) {
	transaction, err := appendTransaction(ctx, t.tx, params)
	if err != nil {
		return nil, err
	}
	t.appended = append(t.appended, *transaction)
	return transaction, nil
}

func (t *txn) GetTransaction(ctx context.Context, id string) (*models.LedgerTransaction, error) {
	return getTransaction(ctx, t.tx, id)
}

func (t *txn) LiveBalance(ctx context.Context, ownerId string) (decimal.Decimal, error) {
	totals, err := sumOwner(ctx, t.tx, ownerId)
	if err != nil {
		return decimal.Zero, err
	}
	return totals.balance, nil
}

func (t *txn) GetWallet(ctx context.Context, ownerId string) (*models.WalletBalance, error) {
	return walletView(ctx, t.tx, ownerId)
}

func (t *txn) SetFrozen(ctx context.Context, ownerId string, frozen bool) error {
	return setFrozen(ctx, t.tx, ownerId, frozen)
}

func (t *txn) RebuildProjection(ctx context.Context, ownerId string) (*models.WalletBalance, error) {
	return rebuildProjection(ctx, t.tx, ownerId)
}

func (t *txn) ListTransactionsBySource(ctx context.Context, sourceRef string) ([]models.LedgerTransaction, error) {
	return listTransactions(ctx, t.tx, queryGetTransactionsBySource, sourceRef)
}

func (t *txn) ReversedTotals(ctx context.Context, originalIds []string) (map[string]decimal.Decimal, error) {
	return reversedTotals(ctx, t.tx, originalIds)
}

func (t *txn) InsertTaxLiability(ctx context.Context, liability *models.TaxLiability) error {
	return insertTaxLiability(ctx, t.tx, liability)
}

func (t *txn) ListTaxLiabilitiesBySource(ctx context.Context, sourceRef string) ([]models.TaxLiability, error) {
	return listTaxLiabilities(ctx, t.tx, queryGetTaxLiabilitiesBySource, sourceRef)
}

func (t *txn) InsertPayout(ctx context.Context, payout *models.PayoutRequest) error {
	return insertPayout(ctx, t.tx, payout)
}

func (t *txn) GetPayout(ctx context.Context, id string) (*models.PayoutRequest, error) {
	return getPayout(ctx, t.tx, id)
}

func (t *txn) UpdatePayout(ctx context.Context, payout *models.PayoutRequest, expected models.PayoutStatus) error {
	return updatePayout(ctx, t.tx, payout, expected)
}

func (t *txn) CommittedPayouts(ctx context.Context, ownerId, excludeId string) (decimal.Decimal, error) {
	_, committed, err := openPayoutTotals(ctx, t.tx, ownerId, excludeId)
	return committed, err
}
