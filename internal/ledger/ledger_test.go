package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"escrow-ledger-go/internal/database/dbtest"
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

var admin = policy.Actor{Id: "admin-1", Role: policy.RoleAdmin}

func TestCreditDebit(t *testing.T) {
	s, _ := dbtest.New(t)
	l := New(s, policy.NewTable(nil))
	ctx := context.Background()

	credit, err := l.Credit(ctx, admin, CreditParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(100), Type: models.TxCreditDistribution,
		Currency: "INR", SourceRef: "adj-1",
	})
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if !credit.BalanceAfter.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100, got %s", credit.BalanceAfter)
	}

	tx, err := l.Debit(ctx, admin, DebitParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(40), Type: models.TxReversal,
		Currency: "INR", SourceRef: "adj-2", ReversalOf: credit.Id,
	})
	if err != nil {
		t.Fatalf("Debit failed: %v", err)
	}
	if !tx.Amount.Equal(decimal.NewFromInt(-40)) || !tx.BalanceAfter.Equal(decimal.NewFromInt(60)) || tx.ReversalOf != credit.Id {
		t.Errorf("Unexpected debit: amount=%s after=%s reversal_of=%q", tx.Amount, tx.BalanceAfter, tx.ReversalOf)
	}

	_, err = l.Debit(ctx, admin, DebitParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(61), Type: models.TxReversal,
		Currency: "INR", SourceRef: "adj-3", ReversalOf: credit.Id,
	})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
}

func TestCreditDebit_EnforceDirection(t *testing.T) {
	s, _ := dbtest.New(t)
	l := New(s, policy.NewTable(nil))
	ctx := context.Background()

	credit, err := l.Credit(ctx, admin, CreditParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(100), Type: models.TxCreditBonus,
		Currency: "INR", SourceRef: "bonus-1",
	})
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	other, err := l.Credit(ctx, admin, CreditParams{
		OwnerId: "owner2", Amount: decimal.NewFromInt(100), Type: models.TxCreditDistribution,
		Currency: "INR", SourceRef: "dist-1",
	})
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	for _, txType := range []models.TransactionType{models.TxDebitWithdrawal, models.TxDebitCommission, models.TxReversal} {
		_, err := l.Credit(ctx, admin, CreditParams{
			OwnerId: "owner1", Amount: decimal.NewFromInt(10), Type: txType, Currency: "INR", SourceRef: "x",
		})
		if !errors.Is(err, store.ErrValidation) {
			t.Errorf("Expected credit typed %s to fail with ErrValidation, got %v", txType, err)
		}
	}

	debits := []struct {
		name   string
		params DebitParams
		want   error
	}{
		{"credit type", DebitParams{Type: models.TxCreditDistribution, ReversalOf: credit.Id}, store.ErrValidation},
		{"withdrawal type", DebitParams{Type: models.TxDebitWithdrawal, ReversalOf: credit.Id}, store.ErrValidation},
		{"orphan reversal", DebitParams{Type: models.TxReversal}, store.ErrValidation},
		{"unknown original", DebitParams{Type: models.TxReversal, ReversalOf: "missing"}, store.ErrValidation},
		{"another owner's credit", DebitParams{Type: models.TxReversal, ReversalOf: other.Id}, store.ErrValidation},
	}
	for _, tc := range debits {
		t.Run(tc.name, func(t *testing.T) {
			params := tc.params
			params.OwnerId, params.Amount, params.Currency, params.SourceRef = "owner1", decimal.NewFromInt(10), "INR", "x"
			if _, err := l.Debit(ctx, admin, params); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}

	reversal, err := l.Debit(ctx, admin, DebitParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(10), Type: models.TxReversal,
		Currency: "INR", SourceRef: "x", ReversalOf: credit.Id,
	})
	if err != nil {
		t.Fatalf("Debit failed: %v", err)
	}
	if _, err := l.Debit(ctx, admin, DebitParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(10), Type: models.TxReversal,
		Currency: "INR", SourceRef: "x", ReversalOf: reversal.Id,
	}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected reversing a reversal to fail, got %v", err)
	}

	wallet, _ := l.Balance(ctx, "owner1")
	if !wallet.Balance.Equal(decimal.NewFromInt(90)) || !wallet.LifetimeWithdrawn.IsZero() {
		t.Errorf("Expected balance 90 with nothing withdrawn, got %s / %s", wallet.Balance, wallet.LifetimeWithdrawn)
	}
}

// Funds held for an APPROVED or PROCESSING payout are out of reach of manual debits
func TestDebitKeepsCommittedPayouts(t *testing.T) {
	s, _ := dbtest.New(t)
	l := New(s, policy.NewTable(nil))
	ctx := context.Background()

	credit, err := l.Credit(ctx, admin, CreditParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(100), Type: models.TxCreditDistribution,
		Currency: "INR", SourceRef: "dist-1",
	})
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	ts := time.Now().UTC()
	err = s.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPayout(ctx, &models.PayoutRequest{
			Id: "payout-1", OwnerId: "owner1", Amount: decimal.NewFromInt(70), Currency: "INR",
			NetAmount: decimal.NewFromInt(70), Status: models.PayoutProcessing, RequestedAt: ts, UpdatedAt: ts,
		})
	})
	if err != nil {
		t.Fatalf("InsertPayout failed: %v", err)
	}

	_, err = l.Debit(ctx, admin, DebitParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(31), Type: models.TxReversal,
		Currency: "INR", SourceRef: "adj", ReversalOf: credit.Id,
	})
	var insufficient *store.InsufficientBalanceError
	if !errors.As(err, &insufficient) || !insufficient.Available.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("Expected InsufficientBalanceError with 30 available, got %v", err)
	}

	if _, err := l.Debit(ctx, admin, DebitParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(30), Type: models.TxReversal,
		Currency: "INR", SourceRef: "adj", ReversalOf: credit.Id,
	}); err != nil {
		t.Fatalf("Expected the uncommitted 30 to be reversible, got %v", err)
	}
}

func TestCreditRequiresCapability(t *testing.T) {
	s, _ := dbtest.New(t)
	l := New(s, policy.NewTable(nil))

	_, err := l.Credit(context.Background(), policy.Actor{Id: "m1", Role: policy.RoleMember}, CreditParams{
		OwnerId: "m1", Amount: decimal.NewFromInt(1), Type: models.TxCreditBonus, Currency: "INR", SourceRef: "x",
	})
	if !errors.Is(err, store.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
}

func TestDebitRejectsNonPositive(t *testing.T) {
	s, _ := dbtest.New(t)
	l := New(s, policy.NewTable(nil))

	_, err := l.Debit(context.Background(), admin, DebitParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(-5), Type: models.TxReversal, Currency: "INR", SourceRef: "x", ReversalOf: "t1",
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}

// Concurrent debits against one owner must serialize so the live balance
// never goes negative, whatever the interleaving.
func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	s, _ := dbtest.New(t)
	l := New(s, policy.NewTable(nil))
	ctx := context.Background()

	credit, err := l.Credit(ctx, admin, CreditParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(100), Type: models.TxCreditDistribution,
		Currency: "INR", SourceRef: "dist-1",
	})
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Debit(ctx, admin, DebitParams{
				OwnerId: "owner1", Amount: decimal.NewFromInt(15), Type: models.TxReversal,
				Currency: "INR", SourceRef: "race", ReversalOf: credit.Id,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, store.ErrInsufficientBalance):
				insufficient++
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 6 || insufficient != workers-6 {
		t.Errorf("Expected 6 successes and %d rejections, got %d and %d", workers-6, succeeded, insufficient)
	}

	history, err := l.History(ctx, "owner1", 100, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	for _, tx := range history {
		if tx.BalanceAfter.IsNegative() {
			t.Errorf("Transaction %s left balance negative: %s", tx.Id, tx.BalanceAfter)
		}
	}

	if err := l.Reconcile(ctx, "owner1"); err != nil {
		t.Errorf("Reconcile after concurrent debits failed: %v", err)
	}
	wallet, _ := l.Balance(ctx, "owner1")
	if !wallet.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected final balance 10, got %s", wallet.Balance)
	}
}

func TestReconcileDetectsDriftAndFreezes(t *testing.T) {
	s, path := dbtest.New(t)
	l := New(s, policy.NewTable(nil))
	ctx := context.Background()

	dbtest.Fund(t, s, "owner1", "100")
	if err := l.Reconcile(ctx, "owner1"); err != nil {
		t.Fatalf("Expected clean reconcile, got %v", err)
	}

	// corrupt the maintained projection behind the ledger's back
	dbtest.Exec(t, path, "UPDATE account_balances SET balance = '150' WHERE owner_id = ?", "owner1")

	err := l.Reconcile(ctx, "owner1")
	var drift *store.LedgerDriftError
	if !errors.As(err, &drift) {
		t.Fatalf("Expected LedgerDriftError, got %v", err)
	}
	if !drift.Maintained.Equal(decimal.NewFromInt(150)) || !drift.Calculated.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Unexpected drift values: %+v", drift)
	}

	wallet, _ := l.Balance(ctx, "owner1")
	if !wallet.Frozen {
		t.Fatal("Expected owner to be frozen after drift")
	}

	_, err = l.Credit(ctx, admin, CreditParams{
		OwnerId: "owner1", Amount: decimal.NewFromInt(1), Type: models.TxCreditBonus, Currency: "INR", SourceRef: "x",
	})
	if !errors.Is(err, store.ErrLedgerDrift) {
		t.Errorf("Expected writes to frozen owner to fail with ErrLedgerDrift, got %v", err)
	}

	if _, err := l.Unfreeze(ctx, policy.Actor{Id: "m", Role: policy.RoleMember}, "owner1"); !errors.Is(err, store.ErrPermissionDenied) {
		t.Errorf("Expected member unfreeze to be denied, got %v", err)
	}
	wallet, err = l.Unfreeze(ctx, admin, "owner1")
	if err != nil {
		t.Fatalf("Unfreeze failed: %v", err)
	}
	if wallet.Frozen || !wallet.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected rebuilt balance 100 unfrozen, got %+v", wallet)
	}
	if err := l.Reconcile(ctx, "owner1"); err != nil {
		t.Errorf("Expected clean reconcile after unfreeze, got %v", err)
	}
}
