package payout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"escrow-ledger-go/internal/config"
	"escrow-ledger-go/internal/database"
	"escrow-ledger-go/internal/database/dbtest"
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/store"
	"escrow-ledger-go/internal/tax"

	"github.com/shopspring/decimal"
)

var admin = policy.Actor{Id: "admin-1", Role: policy.RoleAdmin}

type stubTransferer struct {
	mu        sync.Mutex
	submitted []string
	err       error
}

func (s *stubTransferer) Transfer(_ context.Context, p models.PayoutRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.submitted = append(s.submitted, p.Id)
	return "activity-" + p.Id, nil
}

func setup(t *testing.T, pol models.Policy, transferer Transferer) (*Workflow, *database.Service) {
	t.Helper()
	s, _ := dbtest.New(t)
	return NewWorkflow(s, tax.NewCalculator(pol), pol, policy.NewTable(nil), transferer), s
}

func member(t *testing.T, s *database.Service, name string) (string, policy.Actor) {
	t.Helper()
	id := dbtest.Member(t, s, store.CreateMemberParams{Name: name})
	return id, policy.Actor{Id: id, Role: policy.RoleMember}
}

func request(t *testing.T, w *Workflow, actor policy.Actor, ownerId, amount string) *models.PayoutRequest {
	t.Helper()
	p, err := w.Request(context.Background(), actor, RequestParams{OwnerId: ownerId, Amount: decimal.RequireFromString(amount)})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return p
}

func TestApprove_RecheckAllowsOnlyOneOfTwo(t *testing.T) {
	w, s := setup(t, config.DefaultPolicy(), nil)
	ctx := context.Background()
	owner, actor := member(t, s, "ana")
	dbtest.Fund(t, s, owner, "100")

	first := request(t, w, actor, owner, "60")
	second := request(t, w, actor, owner, "60")

	wallet, _ := s.GetWalletBalance(ctx, owner)
	if !wallet.PendingPayout.Equal(decimal.NewFromInt(120)) {
		t.Errorf("Expected 120 pending, got %s", wallet.PendingPayout)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, id := range []string{first.Id, second.Id} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, results[i] = w.Approve(ctx, admin, id)
		}(i, id)
	}
	wg.Wait()

	var approved, loser string
	for i, err := range results {
		id := []string{first.Id, second.Id}[i]
		switch {
		case err == nil:
			approved = id
		case errors.Is(err, store.ErrInsufficientBalance):
			loser = id
		default:
			t.Fatalf("Unexpected approval error: %v", err)
		}
	}
	if approved == "" || loser == "" {
		t.Fatalf("Expected one approval and one rejection, got %v", results)
	}

	p, _ := s.GetPayout(ctx, loser)
	if p.Status != models.PayoutRequested {
		t.Errorf("Expected losing request to stay REQUESTED, got %s", p.Status)
	}
	if _, err := w.Reject(ctx, admin, loser, "insufficient balance"); err != nil {
		t.Errorf("Expected losing request to be rejectable, got %v", err)
	}

	if _, err := w.Process(ctx, admin, approved); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, err := w.Complete(ctx, policy.System, approved, "tx-1"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	wallet, _ = s.GetWalletBalance(ctx, owner)
	if !wallet.Balance.Equal(decimal.NewFromInt(40)) || !wallet.PendingPayout.IsZero() {
		t.Errorf("Expected balance 40 and nothing pending, got %s / %s", wallet.Balance, wallet.PendingPayout)
	}
	completed, _ := s.ListPayouts(ctx, owner, models.PayoutCompleted)
	if len(completed) != 1 {
		t.Errorf("Expected exactly one completed payout, got %d", len(completed))
	}
}

func TestComplete_WithholdingOnPayout(t *testing.T) {
	pol := config.DefaultPolicy()
	pol.PayoutTaxCategories = map[models.MemberType]string{models.MemberIndividual: "professional_services"}
	transferer := &stubTransferer{}
	w, s := setup(t, pol, transferer)
	ctx := context.Background()
	owner, actor := member(t, s, "ben")
	dbtest.Fund(t, s, owner, "50000")

	p := request(t, w, actor, owner, "50000")
	if !p.NetAmount.Equal(decimal.NewFromInt(45000)) || !p.TaxWithheld.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("Expected net 45000 and 5000 withheld, got %s / %s", p.NetAmount, p.TaxWithheld)
	}

	if _, err := w.Approve(ctx, admin, p.Id); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	processing, err := w.Process(ctx, admin, p.Id)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if processing.Status != models.PayoutProcessing || len(transferer.submitted) != 1 {
		t.Errorf("Expected PROCESSING with one submitted transfer, got %s and %d", processing.Status, len(transferer.submitted))
	}

	done, err := w.Complete(ctx, policy.System, p.Id, "prime-tx-9")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != models.PayoutCompleted || done.ExternalRef != "prime-tx-9" {
		t.Errorf("Expected COMPLETED with external ref, got %+v", done)
	}

	history, _ := s.GetLedgerHistory(ctx, owner, 10, 0)
	if len(history) != 2 {
		t.Fatalf("Expected funding and withdrawal, got %d transactions", len(history))
	}
	var debit models.LedgerTransaction
	for _, tx := range history {
		if tx.Type == models.TxDebitWithdrawal {
			debit = tx
		}
	}
	if !debit.Amount.Equal(decimal.NewFromInt(-50000)) || !debit.TaxWithheld.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Expected gross debit of 50000 with 5000 withheld, got %s / %s", debit.Amount, debit.TaxWithheld)
	}

	liabilities, _ := s.ListTaxLiabilities(ctx, owner)
	if len(liabilities) != 1 || !liabilities[0].Withheld.Equal(decimal.NewFromInt(5000)) || liabilities[0].TransactionId != debit.Id {
		t.Errorf("Expected one 5000 liability tied to the debit, got %+v", liabilities)
	}

	wallet, _ := s.GetWalletBalance(ctx, owner)
	if !wallet.Balance.IsZero() || !wallet.LifetimeWithdrawn.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Expected empty wallet with 50000 withdrawn, got %s / %s", wallet.Balance, wallet.LifetimeWithdrawn)
	}
}

func TestComplete_Idempotent(t *testing.T) {
	w, s := setup(t, config.DefaultPolicy(), nil)
	ctx := context.Background()
	owner, actor := member(t, s, "cy")
	dbtest.Fund(t, s, owner, "500")

	p := request(t, w, actor, owner, "200")
	if _, err := w.Approve(ctx, admin, p.Id); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, err := w.Process(ctx, admin, p.Id); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := w.Complete(ctx, policy.System, p.Id, "ref-1"); err != nil {
			t.Fatalf("Complete #%d failed: %v", i+1, err)
		}
	}
	if _, err := w.Complete(ctx, policy.System, p.Id, "ref-2"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for a different reference, got %v", err)
	}
	if _, err := w.Fail(ctx, policy.System, p.Id, "late failure"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition failing a completed payout, got %v", err)
	}

	wallet, _ := s.GetWalletBalance(ctx, owner)
	if !wallet.Balance.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected a single debit leaving 300, got %s", wallet.Balance)
	}
}

func TestProcess_TransferErrorFailsPayout(t *testing.T) {
	transferer := &stubTransferer{err: errors.New("prime unavailable")}
	w, s := setup(t, config.DefaultPolicy(), transferer)
	ctx := context.Background()
	owner, actor := member(t, s, "dee")
	dbtest.Fund(t, s, owner, "80")

	p := request(t, w, actor, owner, "80")
	if _, err := w.Approve(ctx, admin, p.Id); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	failed, err := w.Process(ctx, admin, p.Id)
	if err == nil || failed == nil || failed.Status != models.PayoutFailed || failed.FailedAt == nil {
		t.Fatalf("Expected FAILED payout and error, got %+v / %v", failed, err)
	}

	if _, err := w.Fail(ctx, policy.System, p.Id, "again"); err != nil {
		t.Errorf("Expected repeated fail to be a no-op, got %v", err)
	}

	wallet, _ := s.GetWalletBalance(ctx, owner)
	if !wallet.Balance.Equal(decimal.NewFromInt(80)) || !wallet.PendingPayout.IsZero() {
		t.Errorf("Expected untouched balance with nothing pending, got %s / %s", wallet.Balance, wallet.PendingPayout)
	}
}

func TestProcess_RecordsTransferRef(t *testing.T) {
	transferer := &stubTransferer{}
	w, s := setup(t, config.DefaultPolicy(), transferer)
	ctx := context.Background()
	owner, actor := member(t, s, "gus")
	dbtest.Fund(t, s, owner, "300")

	p := request(t, w, actor, owner, "200")
	if _, err := w.Approve(ctx, admin, p.Id); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	processing, err := w.Process(ctx, admin, p.Id)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if processing.Status != models.PayoutProcessing || processing.TransferRef != "activity-"+p.Id {
		t.Fatalf("Expected PROCESSING with transfer ref, got %s / %q", processing.Status, processing.TransferRef)
	}

	stored, err := s.GetPayout(ctx, p.Id)
	if err != nil {
		t.Fatalf("GetPayout failed: %v", err)
	}
	if stored.TransferRef != "activity-"+p.Id {
		t.Errorf("Expected transfer ref to be persisted, got %q", stored.TransferRef)
	}

	completed, err := w.Complete(ctx, policy.System, p.Id, "tx-hash")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completed.TransferRef != "activity-"+p.Id || completed.ExternalRef != "tx-hash" {
		t.Errorf("Expected both references kept, got transfer=%q external=%q", completed.TransferRef, completed.ExternalRef)
	}
}

func TestRequest_Rejections(t *testing.T) {
	pol := config.DefaultPolicy()
	pol.MinimumPayout = decimal.NewFromInt(100)
	w, s := setup(t, pol, nil)
	ctx := context.Background()
	owner, actor := member(t, s, "eve")
	_, other := member(t, s, "fay")
	dbtest.Fund(t, s, owner, "500")

	cases := []struct {
		name   string
		actor  policy.Actor
		params RequestParams
		want   error
	}{
		{"below minimum", actor, RequestParams{OwnerId: owner, Amount: decimal.NewFromInt(50)}, store.ErrValidation},
		{"zero", actor, RequestParams{OwnerId: owner, Amount: decimal.Zero}, store.ErrValidation},
		{"over balance", actor, RequestParams{OwnerId: owner, Amount: decimal.NewFromInt(501)}, store.ErrInsufficientBalance},
		{"someone else's wallet", other, RequestParams{OwnerId: owner, Amount: decimal.NewFromInt(200)}, store.ErrPermissionDenied},
		{"not a member", admin, RequestParams{OwnerId: "ghost", Amount: decimal.NewFromInt(200)}, store.ErrValidation},
		{"unknown tax category", actor, RequestParams{OwnerId: owner, Amount: decimal.NewFromInt(200), TaxCategory: "bogus"}, store.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := w.Request(ctx, tc.actor, tc.params); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}

	p := request(t, w, actor, owner, "200")
	if _, err := w.Approve(ctx, actor, p.Id); !errors.Is(err, store.ErrPermissionDenied) {
		t.Errorf("Expected members to be unable to approve, got %v", err)
	}
	if _, err := w.Complete(ctx, admin, p.Id, "ref"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected completing a REQUESTED payout to fail, got %v", err)
	}
}
