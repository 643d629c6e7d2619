package store

import (
	"context"
	"time"

	"escrow-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// CreateMemberParams contains the parameters for registering a member.
type CreateMemberParams struct {
	Id          string
	Name        string
	Email       string
	Type        models.MemberType
	FirmId      string
	Role        string
	TaxCategory string
}

// AppendParams describes one ledger write. Amount is signed with respect to
// the owner: positive credits, negative debits. A write that would leave the
// owner's live balance negative fails with InsufficientBalanceError.
type AppendParams struct {
	OwnerId     string
	Type        models.TransactionType
	Amount      decimal.Decimal
	Currency    string
	SourceRef   string
	ReversalOf  string
	TaxWithheld decimal.Decimal
	Reference   string
}

// Tx is the set of row operations available inside one atomic unit.
// Every method observes the writes made earlier in the same unit.
type Tx interface {
	// --- Members ---
	GetMember(ctx context.Context, id string) (*models.Member, error)
	ListFirmMembers(ctx context.Context, firmId string) ([]models.Member, error)

	// --- Escrow ---
	InsertPayment(ctx context.Context, payment *models.EscrowPayment) error
	GetPayment(ctx context.Context, id string) (*models.EscrowPayment, error)
	// UpdatePayment writes the payment only if its stored status still equals
	// expected; otherwise ErrConcurrentModification.
	UpdatePayment(ctx context.Context, payment *models.EscrowPayment, expected models.EscrowStatus) error
	// MarkDistributed moves HELD -> DISTRIBUTED and claims distributionId.
	// It is the mutual-exclusion gate for plan execution.
	MarkDistributed(ctx context.Context, paymentId, distributionId string, at time.Time) error
	GetGatewayEvent(ctx context.Context, gatewayRef string) (*models.GatewayEvent, error)
	InsertGatewayEvent(ctx context.Context, event models.GatewayEvent) error

	// --- Distribution plans ---
	InsertPlan(ctx context.Context, plan *models.DistributionPlan) error
	GetPlan(ctx context.Context, id string) (*models.DistributionPlan, error)
	GetPlanForPayment(ctx context.Context, paymentId string) (*models.DistributionPlan, error)
	DeleteDraftPlan(ctx context.Context, planId string) error
	UpdateShareApproval(ctx context.Context, share models.Share) error
	MarkPlanExecuted(ctx context.Context, planId string, at time.Time) error

	// --- Ledger ---
	Append(ctx context.Context, params AppendParams) (*models.LedgerTransaction, error)
	GetTransaction(ctx context.Context, id string) (*models.LedgerTransaction, error)
	LiveBalance(ctx context.Context, ownerId string) (decimal.Decimal, error)
	GetWallet(ctx context.Context, ownerId string) (*models.WalletBalance, error)
	SetFrozen(ctx context.Context, ownerId string, frozen bool) error
	RebuildProjection(ctx context.Context, ownerId string) (*models.WalletBalance, error)
	ListTransactionsBySource(ctx context.Context, sourceRef string) ([]models.LedgerTransaction, error)
	ReversedTotals(ctx context.Context, originalIds []string) (map[string]decimal.Decimal, error)
	InsertTaxLiability(ctx context.Context, liability *models.TaxLiability) error
	ListTaxLiabilitiesBySource(ctx context.Context, sourceRef string) ([]models.TaxLiability, error)

	// --- Payouts ---
	InsertPayout(ctx context.Context, payout *models.PayoutRequest) error
	GetPayout(ctx context.Context, id string) (*models.PayoutRequest, error)
	UpdatePayout(ctx context.Context, payout *models.PayoutRequest, expected models.PayoutStatus) error
	// CommittedPayouts sums APPROVED and PROCESSING requests of the owner,
	// excluding excludeId.
	CommittedPayouts(ctx context.Context, ownerId, excludeId string) (decimal.Decimal, error)
}

// Store defines the contract that the ledger/escrow backend must satisfy.
type Store interface {
	// Atomically runs fn as one serializable unit. fn's writes are committed
	// only if it returns nil.
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// --- Members ---
	CreateMember(ctx context.Context, params CreateMemberParams) (*models.Member, error)
	GetMember(ctx context.Context, id string) (*models.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (*models.Member, error)
	ListMembers(ctx context.Context) ([]models.Member, error)

	// --- Read-only queries ---
	GetPayment(ctx context.Context, id string) (*models.EscrowPayment, error)
	ListGatewayMismatches(ctx context.Context, limit int) ([]models.GatewayEvent, error)
	GetPlan(ctx context.Context, id string) (*models.DistributionPlan, error)
	GetPlanForPayment(ctx context.Context, paymentId string) (*models.DistributionPlan, error)
	GetWalletBalance(ctx context.Context, ownerId string) (*models.WalletBalance, error)
	ListWallets(ctx context.Context) ([]models.WalletBalance, error)
	GetLedgerHistory(ctx context.Context, ownerId string, limit, offset int) ([]models.LedgerTransaction, error)
	ListTaxLiabilities(ctx context.Context, ownerId string) ([]models.TaxLiability, error)
	GetPayout(ctx context.Context, id string) (*models.PayoutRequest, error)
	ListPayouts(ctx context.Context, ownerId string, statuses ...models.PayoutStatus) ([]models.PayoutRequest, error)

	// --- Lifecycle ---
	Close()
}

// LedgerMirror receives ledger transactions after they are committed.
type LedgerMirror interface {
	MirrorTransactions(ctx context.Context, txns []models.LedgerTransaction) error
}
