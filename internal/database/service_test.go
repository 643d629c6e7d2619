package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) *Service {
	t.Helper()

	cfg := models.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     5 * time.Second,
		BusyTimeout:     10 * time.Second,
	}
	service, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(service.Close)
	return service
}

func appendOne(t *testing.T, s *Service, params store.AppendParams) (*models.LedgerTransaction, error) {
	t.Helper()
	var result *models.LedgerTransaction
	err := s.Atomically(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		result, err = tx.Append(ctx, params)
		return err
	})
	return result, err
}

func credit(owner, amount string) store.AppendParams {
	return store.AppendParams{
		OwnerId:   owner,
		Type:      models.TxCreditDistribution,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "INR",
		SourceRef: "pay-1",
	}
}

func TestNewServiceValidatesConfig(t *testing.T) {
	_, err := NewService(context.Background(), models.DatabaseConfig{Path: "", MaxOpenConns: 1, PingTimeout: time.Second})
	if err == nil {
		t.Fatal("Expected error for empty path")
	}
	_, err = NewService(context.Background(), models.DatabaseConfig{Path: "x.db", MaxOpenConns: 0, PingTimeout: time.Second})
	if err == nil {
		t.Fatal("Expected error for zero max open conns")
	}
}

func TestAppend_CreditAndDebit(t *testing.T) {
	s := setupTestDb(t)

	first, err := appendOne(t, s, credit("owner1", "150.50"))
	if err != nil {
		t.Fatalf("Append credit failed: %v", err)
	}
	if !first.BalanceBefore.IsZero() || !first.BalanceAfter.Equal(decimal.RequireFromString("150.50")) {
		t.Errorf("Unexpected balances before=%s after=%s", first.BalanceBefore, first.BalanceAfter)
	}

	debit := store.AppendParams{
		OwnerId:   "owner1",
		Type:      models.TxDebitWithdrawal,
		Amount:    decimal.RequireFromString("-50.25"),
		Currency:  "INR",
		SourceRef: "payout-1",
	}
	second, err := appendOne(t, s, debit)
	if err != nil {
		t.Fatalf("Append debit failed: %v", err)
	}
	expected := decimal.RequireFromString("100.25")
	if !second.BalanceAfter.Equal(expected) {
		t.Errorf("Expected balance %s, got %s", expected, second.BalanceAfter)
	}

	wallet, err := s.GetWalletBalance(context.Background(), "owner1")
	if err != nil {
		t.Fatalf("GetWalletBalance failed: %v", err)
	}
	if !wallet.Balance.Equal(expected) {
		t.Errorf("Expected projection %s, got %s", expected, wallet.Balance)
	}
	if !wallet.LifetimeEarned.Equal(decimal.RequireFromString("150.50")) {
		t.Errorf("Expected lifetime earned 150.50, got %s", wallet.LifetimeEarned)
	}
	if !wallet.LifetimeWithdrawn.Equal(decimal.RequireFromString("50.25")) {
		t.Errorf("Expected lifetime withdrawn 50.25, got %s", wallet.LifetimeWithdrawn)
	}
	if wallet.LastTransactionId != second.Id {
		t.Errorf("Expected last transaction %s, got %s", second.Id, wallet.LastTransactionId)
	}

	history, err := s.GetLedgerHistory(context.Background(), "owner1", 10, 0)
	if err != nil {
		t.Fatalf("GetLedgerHistory failed: %v", err)
	}
	if len(history) != 2 || history[0].Id != second.Id {
		t.Errorf("Expected 2 transactions newest first, got %+v", history)
	}
}

func TestAppend_RejectsOverdraft(t *testing.T) {
	s := setupTestDb(t)

	if _, err := appendOne(t, s, credit("owner1", "10")); err != nil {
		t.Fatalf("Append credit failed: %v", err)
	}

	_, err := appendOne(t, s, store.AppendParams{
		OwnerId:   "owner1",
		Type:      models.TxDebitWithdrawal,
		Amount:    decimal.RequireFromString("-10.01"),
		Currency:  "INR",
		SourceRef: "payout-1",
	})
	var insufficient *store.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Expected InsufficientBalanceError, got %v", err)
	}
	if !insufficient.Available.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected available 10, got %s", insufficient.Available)
	}

	history, _ := s.GetLedgerHistory(context.Background(), "owner1", 10, 0)
	if len(history) != 1 {
		t.Errorf("Expected rejected debit to leave no transaction, got %d", len(history))
	}
}

func TestAppend_RejectsZeroAmount(t *testing.T) {
	s := setupTestDb(t)
	if _, err := appendOne(t, s, credit("owner1", "0")); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}

func TestAppend_JournalEntriesBalance(t *testing.T) {
	s := setupTestDb(t)

	params := credit("owner1", "90")
	params.TaxWithheld = decimal.NewFromInt(10)
	tx, err := appendOne(t, s, params)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	entries, err := s.GetJournalEntries(context.Background(), tx.Id)
	if err != nil {
		t.Fatalf("GetJournalEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 journal entries, got %d", len(entries))
	}

	debits, credits := decimal.Zero, decimal.Zero
	for _, e := range entries {
		debits = debits.Add(e.DebitAmount)
		credits = credits.Add(e.CreditAmount)
	}
	if !debits.Equal(credits) || !debits.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Journal does not balance: debits=%s credits=%s", debits, credits)
	}
}

func TestAtomically_RollsBackOnError(t *testing.T) {
	s := setupTestDb(t)
	boom := errors.New("boom")

	err := s.Atomically(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Append(ctx, credit("owner1", "25")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected callback error, got %v", err)
	}

	wallet, err := s.GetWalletBalance(context.Background(), "owner1")
	if err != nil {
		t.Fatalf("GetWalletBalance failed: %v", err)
	}
	if !wallet.Balance.IsZero() {
		t.Errorf("Expected rolled back balance 0, got %s", wallet.Balance)
	}
}

type recordingMirror struct {
	batches [][]models.LedgerTransaction
}

func (m *recordingMirror) MirrorTransactions(_ context.Context, txns []models.LedgerTransaction) error {
	m.batches = append(m.batches, txns)
	return errors.New("downstream unavailable")
}

func TestAtomically_MirrorsOnlyCommitted(t *testing.T) {
	s := setupTestDb(t)
	mirror := &recordingMirror{}
	s.SetMirror(mirror)

	_ = s.Atomically(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Append(ctx, credit("owner1", "5")); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if len(mirror.batches) != 0 {
		t.Fatalf("Expected no mirror call for rolled back unit, got %d", len(mirror.batches))
	}

	// mirror failure must not surface
	if _, err := appendOne(t, s, credit("owner1", "5")); err != nil {
		t.Fatalf("Expected commit to succeed despite mirror failure, got %v", err)
	}
	if len(mirror.batches) != 1 || len(mirror.batches[0]) != 1 {
		t.Errorf("Expected one mirrored batch of one, got %+v", mirror.batches)
	}
}

func TestLedgerTransactionsAreImmutable(t *testing.T) {
	s := setupTestDb(t)

	tx, err := appendOne(t, s, credit("owner1", "1"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := s.db.Exec("UPDATE ledger_transactions SET amount = '1000' WHERE id = ?", tx.Id); err == nil {
		t.Error("Expected update of ledger transaction to fail")
	}
	if _, err := s.db.Exec("DELETE FROM ledger_transactions WHERE id = ?", tx.Id); err == nil {
		t.Error("Expected delete of ledger transaction to fail")
	}
}

func TestFrozenOwnerRejectsWrites(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()

	if _, err := appendOne(t, s, credit("owner1", "10")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetFrozen(ctx, "owner1", true)
	}); err != nil {
		t.Fatalf("SetFrozen failed: %v", err)
	}

	if _, err := appendOne(t, s, credit("owner1", "10")); !errors.Is(err, store.ErrLedgerDrift) {
		t.Fatalf("Expected ErrLedgerDrift, got %v", err)
	}

	var rebuilt *models.WalletBalance
	if err := s.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rebuilt, err = tx.RebuildProjection(ctx, "owner1")
		return err
	}); err != nil {
		t.Fatalf("RebuildProjection failed: %v", err)
	}
	if rebuilt.Frozen || !rebuilt.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected unfrozen balance 10, got frozen=%v balance=%s", rebuilt.Frozen, rebuilt.Balance)
	}
}

func TestMarkDistributedIsAGate(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	payment := &models.EscrowPayment{
		Id:               "pay-1",
		GrossAmount:      decimal.NewFromInt(100),
		Currency:         "INR",
		SourceRequestRef: "req-1",
		PayerType:        models.PayerIndividual,
		Status:           models.EscrowPending,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}
	err := s.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		held := *payment
		held.Status = models.EscrowHeld
		held.GatewayRef = "gw-1"
		held.HeldAt = &ts
		return tx.UpdatePayment(ctx, &held, models.EscrowPending)
	})
	if err != nil {
		t.Fatalf("Failed to set up held payment: %v", err)
	}

	mark := func(distributionId string) error {
		return s.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.MarkDistributed(ctx, "pay-1", distributionId, ts)
		})
	}
	if err := mark("dist-1"); err != nil {
		t.Fatalf("First MarkDistributed failed: %v", err)
	}
	err = mark("dist-2")
	var stateErr *store.InvalidStateError
	if !errors.As(err, &stateErr) || stateErr.State != string(models.EscrowDistributed) {
		t.Fatalf("Expected InvalidStateError in DISTRIBUTED, got %v", err)
	}

	got, err := s.GetPayment(ctx, "pay-1")
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if got.DistributionId != "dist-1" || got.DistributedAt == nil || got.GatewayRef != "gw-1" {
		t.Errorf("Unexpected payment after gate: %+v", got)
	}
}

func TestUpdatePaymentDetectsStaleStatus(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	payment := &models.EscrowPayment{Id: "pay-1", GrossAmount: decimal.NewFromInt(1), Currency: "INR",
		SourceRequestRef: "r", PayerType: models.PayerFirm, Status: models.EscrowPending, CreatedAt: ts, UpdatedAt: ts}
	err := s.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		payment.Status = models.EscrowRefunded
		return tx.UpdatePayment(ctx, payment, models.EscrowHeld)
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("Expected ErrConcurrentModification, got %v", err)
	}
}

func TestCreateMember(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()

	member, err := s.CreateMember(ctx, store.CreateMemberParams{
		Name: "Test User", Email: "test@example.com", Type: models.MemberIndividual, FirmId: "firm-1", Role: "senior",
	})
	if err != nil {
		t.Fatalf("CreateMember failed: %v", err)
	}
	if member.Id == "" || !member.Active || member.Role != "senior" {
		t.Errorf("Unexpected member: %+v", member)
	}

	if _, err := s.CreateMember(ctx, store.CreateMemberParams{
		Name: "Other", Email: "test@example.com", Type: models.MemberIndividual,
	}); err == nil {
		t.Error("Expected duplicate email to fail")
	}

	if _, err := s.CreateMember(ctx, store.CreateMemberParams{Name: "X", Email: "x@example.com", Type: "robot"}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation for bad type, got %v", err)
	}

	byEmail, err := s.GetMemberByEmail(ctx, "test@example.com")
	if err != nil || byEmail.Id != member.Id {
		t.Errorf("GetMemberByEmail mismatch: %v, %+v", err, byEmail)
	}

	if _, err := s.GetMember(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPendingPayoutIsDerived(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	if _, err := appendOne(t, s, credit("owner1", "100")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	payouts := []models.PayoutRequest{
		{Id: "p1", OwnerId: "owner1", Amount: decimal.NewFromInt(30), Status: models.PayoutRequested},
		{Id: "p2", OwnerId: "owner1", Amount: decimal.NewFromInt(20), Status: models.PayoutRequested},
	}
	err := s.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		for i := range payouts {
			p := &payouts[i]
			p.Currency, p.TaxWithheld, p.NetAmount, p.RequestedAt, p.UpdatedAt = "INR", decimal.Zero, p.Amount, ts, ts
			if err := tx.InsertPayout(ctx, p); err != nil {
				return err
			}
		}
		approved := payouts[1]
		approved.Status = models.PayoutApproved
		approved.ApprovedAt = &ts
		return tx.UpdatePayout(ctx, &approved, models.PayoutRequested)
	})
	if err != nil {
		t.Fatalf("Failed to insert payouts: %v", err)
	}

	wallet, err := s.GetWalletBalance(ctx, "owner1")
	if err != nil {
		t.Fatalf("GetWalletBalance failed: %v", err)
	}
	if !wallet.PendingPayout.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected pending payout 50, got %s", wallet.PendingPayout)
	}
	if !wallet.Available().Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected available 50, got %s", wallet.Available())
	}

	var committed decimal.Decimal
	_ = s.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		committed, err = tx.CommittedPayouts(ctx, "owner1", "p1")
		return err
	})
	if !committed.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected committed 20, got %s", committed)
	}

	approvedOnly, err := s.ListPayouts(ctx, "owner1", models.PayoutApproved)
	if err != nil || len(approvedOnly) != 1 || approvedOnly[0].Id != "p2" {
		t.Errorf("Expected only p2 approved, got %v %+v", err, approvedOnly)
	}
}
