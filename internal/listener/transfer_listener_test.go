package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"escrow-ledger-go/internal/config"
	"escrow-ledger-go/internal/database"
	"escrow-ledger-go/internal/database/dbtest"
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/payout"
	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/prime"
	"escrow-ledger-go/internal/store"
	"escrow-ledger-go/internal/tax"

	"github.com/shopspring/decimal"
)

type fakeSource struct {
	mu        sync.Mutex
	transfers []prime.Transfer
	err       error
	calls     int
}

func (f *fakeSource) ListWithdrawals(_ context.Context, _ time.Time) ([]prime.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]prime.Transfer(nil), f.transfers...), nil
}

func (f *fakeSource) set(transfers ...prime.Transfer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = transfers
}

type fixture struct {
	store    *database.Service
	workflow *payout.Workflow
	source   *fakeSource
	listener *TransferListener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, _ := dbtest.New(t)
	pol := config.DefaultPolicy()
	w := payout.NewWorkflow(s, tax.NewCalculator(pol), pol, policy.NewTable(nil), nil)
	src := &fakeSource{}
	return &fixture{
		store:    s,
		workflow: w,
		source:   src,
		listener: NewTransferListener(TransferListenerConfig{
			Source:          src,
			Payouts:         w,
			LookbackWindow:  time.Hour,
			PollingInterval: 10 * time.Millisecond,
			CleanupInterval: time.Hour,
		}),
	}
}

// processing returns a funded member's payout that has been handed to the transfer rail
func (f *fixture) processing(t *testing.T, amount string) *models.PayoutRequest {
	t.Helper()
	ctx := context.Background()
	owner := dbtest.Member(t, f.store, store.CreateMemberParams{Name: "ana"})
	dbtest.Fund(t, f.store, owner, "1000")

	p, err := f.workflow.Request(ctx, policy.Actor{Id: owner, Role: policy.RoleMember},
		payout.RequestParams{OwnerId: owner, Amount: decimal.RequireFromString(amount), Destination: "0xabc"})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if _, err := f.workflow.Approve(ctx, policy.Actor{Id: "admin-1", Role: policy.RoleAdmin}, p.Id); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if p, err = f.workflow.Process(ctx, policy.System, p.Id); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if p.Status != models.PayoutProcessing {
		t.Fatalf("Expected PROCESSING, got %s", p.Status)
	}
	return p
}

func TestPoll_CompletesDoneWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.processing(t, "250")

	f.source.set(prime.Transfer{
		Id:             "prime-tx-1",
		Status:         "TRANSACTION_DONE",
		Amount:         "250",
		Symbol:         "USDC",
		TransactionId:  "0xhash",
		IdempotencyKey: p.Id,
	})

	// A second poll sees the same withdrawal and must not debit twice
	for i := 0; i < 2; i++ {
		if err := f.listener.poll(ctx); err != nil {
			t.Fatalf("poll %d failed: %v", i, err)
		}
	}

	got, err := f.workflow.Status(ctx, p.Id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if got.Status != models.PayoutCompleted {
		t.Errorf("Expected COMPLETED, got %s", got.Status)
	}
	if got.ExternalRef != "0xhash" {
		t.Errorf("Expected external ref 0xhash, got %s", got.ExternalRef)
	}

	wallet, err := f.store.GetWalletBalance(ctx, p.OwnerId)
	if err != nil {
		t.Fatalf("GetWalletBalance failed: %v", err)
	}
	if !wallet.Balance.Equal(decimal.NewFromInt(750)) {
		t.Errorf("Expected balance 750, got %s", wallet.Balance)
	}
	if !f.listener.isTransactionProcessed("prime-tx-1") {
		t.Error("Expected transfer to be marked processed")
	}
}

func TestPoll_FailsTerminalWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.processing(t, "100")

	f.source.set(prime.Transfer{Id: "prime-tx-2", Status: "TRANSACTION_REJECTED", IdempotencyKey: p.Id})
	if err := f.listener.poll(ctx); err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	got, _ := f.workflow.Status(ctx, p.Id)
	if got.Status != models.PayoutFailed {
		t.Errorf("Expected FAILED, got %s", got.Status)
	}
	wallet, _ := f.store.GetWalletBalance(ctx, p.OwnerId)
	if !wallet.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected untouched balance 1000, got %s", wallet.Balance)
	}
}

func TestPoll_SkipsPendingAndForeignWithdrawals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.processing(t, "100")

	f.source.set(
		prime.Transfer{Id: "pending", Status: "TRANSACTION_BROADCASTING", IdempotencyKey: p.Id},
		prime.Transfer{Id: "foreign", Status: "TRANSACTION_DONE", IdempotencyKey: "not-a-payout"},
		prime.Transfer{Id: "manual", Status: "TRANSACTION_DONE"},
	)
	if err := f.listener.poll(ctx); err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	got, _ := f.workflow.Status(ctx, p.Id)
	if got.Status != models.PayoutProcessing {
		t.Errorf("Expected PROCESSING, got %s", got.Status)
	}
	if f.listener.isTransactionProcessed("pending") {
		t.Error("Non-terminal transfer must be polled again")
	}
	if !f.listener.isTransactionProcessed("foreign") || !f.listener.isTransactionProcessed("manual") {
		t.Error("Expected foreign and manual transfers to be marked processed")
	}
}

func TestStart_FailsWhenRecoveryFails(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("prime unavailable")

	if err := f.listener.Start(context.Background()); err == nil {
		t.Fatal("Expected startup error")
	}
}

func TestStartStop_PollsInBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.processing(t, "100")

	if err := f.listener.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.source.set(prime.Transfer{Id: "late", Status: "TRANSACTION_DONE", IdempotencyKey: p.Id})

	deadline := time.Now().Add(2 * time.Second)
	for !f.listener.isTransactionProcessed("late") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	f.listener.Stop()

	got, _ := f.workflow.Status(ctx, p.Id)
	if got.Status != models.PayoutCompleted {
		t.Errorf("Expected COMPLETED, got %s", got.Status)
	}
}

func TestCleanupProcessedTransactions(t *testing.T) {
	l := NewTransferListener(TransferListenerConfig{LookbackWindow: time.Hour})
	l.processedTxIds["old"] = time.Now().Add(-2 * time.Hour)
	l.processedTxIds["new"] = time.Now()

	l.cleanupProcessedTransactions()

	if l.isTransactionProcessed("old") {
		t.Error("Expected old entry to be removed")
	}
	if !l.isTransactionProcessed("new") {
		t.Error("Expected recent entry to be kept")
	}
}

func TestPoll_StrandedPayoutRetriedUntilSettled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.processing(t, "250")

	// the wallet is drained outside the payout workflow while the transfer is in flight
	err := f.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Append(ctx, store.AppendParams{
			OwnerId: p.OwnerId, Type: models.TxDebitWithdrawal, Amount: decimal.NewFromInt(-900),
			Currency: "INR", SourceRef: "out-of-band",
		})
		return err
	})
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	f.source.set(prime.Transfer{
		Id:             "prime-tx-9",
		Status:         "TRANSACTION_DONE",
		Amount:         "250",
		TransactionId:  "0xhash",
		IdempotencyKey: p.Id,
	})

	for i := 0; i < 2; i++ {
		if err := f.listener.poll(ctx); err != nil {
			t.Fatalf("poll %d failed: %v", i, err)
		}
	}
	got, _ := f.workflow.Status(ctx, p.Id)
	if got.Status != models.PayoutProcessing {
		t.Fatalf("Expected payout to stay PROCESSING, got %s", got.Status)
	}
	if !f.listener.isStranded(p.Id) {
		t.Error("Expected payout to be tracked as stranded")
	}
	if f.listener.isTransactionProcessed("prime-tx-9") {
		t.Error("Stranded withdrawal must stay eligible for retry")
	}

	// operator tops the wallet back up
	dbtest.Fund(t, f.store, p.OwnerId, "500")
	if err := f.listener.poll(ctx); err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	got, _ = f.workflow.Status(ctx, p.Id)
	if got.Status != models.PayoutCompleted {
		t.Errorf("Expected COMPLETED after reconciliation, got %s", got.Status)
	}
	if f.listener.isStranded(p.Id) || !f.listener.isTransactionProcessed("prime-tx-9") {
		t.Error("Expected settled withdrawal to be cleared and marked processed")
	}
}
