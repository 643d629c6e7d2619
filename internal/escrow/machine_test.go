package escrow

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

	"github.com/shopspring/decimal"
)

var (
	admin   = policy.Actor{Id: "admin-1", Role: policy.RoleAdmin}
	gateway = policy.System
)

func setup(t *testing.T) (*Machine, *database.Service) {
	t.Helper()
	s, _ := dbtest.New(t)
	return NewMachine(s, config.DefaultPolicy(), policy.NewTable(nil)), s
}

func createPayment(t *testing.T, m *Machine, gross string) *models.EscrowPayment {
	t.Helper()
	p, err := m.CreatePayment(context.Background(), admin, CreatePaymentParams{
		GrossAmount:      decimal.RequireFromString(gross),
		SourceRequestRef: "service-request-1",
		PayerType:        models.PayerIndividual,
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	return p
}

func confirmation(p *models.EscrowPayment, ref string) models.GatewayConfirmation {
	return models.GatewayConfirmation{
		GatewayRef:      ref,
		EscrowPaymentId: p.Id,
		ConfirmedAmount: p.GrossAmount,
		Currency:        p.Currency,
	}
}

func TestCreatePayment_Validation(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params CreatePaymentParams
	}{
		{"foreign currency", CreatePaymentParams{GrossAmount: decimal.NewFromInt(10), Currency: "USD", SourceRequestRef: "r", PayerType: models.PayerFirm}},
		{"zero gross", CreatePaymentParams{GrossAmount: decimal.Zero, SourceRequestRef: "r", PayerType: models.PayerFirm}},
		{"negative gross", CreatePaymentParams{GrossAmount: decimal.NewFromInt(-5), SourceRequestRef: "r", PayerType: models.PayerFirm}},
		{"sub-paisa gross", CreatePaymentParams{GrossAmount: decimal.RequireFromString("10.001"), SourceRequestRef: "r", PayerType: models.PayerFirm}},
		{"missing request ref", CreatePaymentParams{GrossAmount: decimal.NewFromInt(10), PayerType: models.PayerFirm}},
		{"unknown payer", CreatePaymentParams{GrossAmount: decimal.NewFromInt(10), SourceRequestRef: "r", PayerType: "charity"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.CreatePayment(ctx, admin, tt.params); !errors.Is(err, store.ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}

	member := policy.Actor{Id: "m-1", Role: policy.RoleMember}
	if _, err := m.CreatePayment(ctx, member, CreatePaymentParams{GrossAmount: decimal.NewFromInt(10),
		SourceRequestRef: "r", PayerType: models.PayerFirm}); !errors.Is(err, store.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}

	p := createPayment(t, m, "1500.50")
	if p.Status != models.EscrowPending || p.Currency != "INR" {
		t.Errorf("Expected PENDING INR payment, got %s %s", p.Status, p.Currency)
	}
}

func TestConfirm_DuplicateDeliveryAppliedOnce(t *testing.T) {
	m, s := setup(t)
	ctx := context.Background()
	p := createPayment(t, m, "1000")

	const deliveries = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := m.Confirm(ctx, gateway, confirmation(p, "gw-123"))
			if err != nil {
				t.Errorf("Confirm failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Errorf("Expected exactly one applied confirmation, got %d", applied)
	}
	held, _ := s.GetPayment(ctx, p.Id)
	if held.Status != models.EscrowHeld || held.GatewayRef != "gw-123" || held.HeldAt == nil {
		t.Errorf("Expected HELD payment with gateway ref, got %+v", held)
	}

	// same payment, a second gateway reference: the payment is no longer PENDING
	if _, _, err := m.Confirm(ctx, gateway, confirmation(p, "gw-456")); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestConfirm_MismatchStaysPending(t *testing.T) {
	m, s := setup(t)
	ctx := context.Background()
	p := createPayment(t, m, "1000")

	short := confirmation(p, "gw-short")
	short.ConfirmedAmount = decimal.RequireFromString("999.99")
	_, applied, err := m.Confirm(ctx, gateway, short)
	var mismatch *store.PaymentMismatchError
	if !errors.As(err, &mismatch) || applied {
		t.Fatalf("Expected PaymentMismatchError, got applied=%v err=%v", applied, err)
	}
	if !mismatch.ExpectedAmount.Equal(p.GrossAmount) || mismatch.PaymentId != p.Id {
		t.Errorf("Mismatch lacks context: %+v", mismatch)
	}

	// redelivery of the same mismatched event reports the mismatch again
	if _, _, err := m.Confirm(ctx, gateway, short); !errors.Is(err, store.ErrPaymentMismatch) {
		t.Errorf("Expected ErrPaymentMismatch on redelivery, got %v", err)
	}

	wrongCurrency := confirmation(p, "gw-usd")
	wrongCurrency.Currency = "USD"
	if _, _, err := m.Confirm(ctx, gateway, wrongCurrency); !errors.Is(err, store.ErrPaymentMismatch) {
		t.Errorf("Expected ErrPaymentMismatch for currency, got %v", err)
	}

	current, _ := s.GetPayment(ctx, p.Id)
	if current.Status != models.EscrowPending {
		t.Errorf("Expected PENDING after mismatch, got %s", current.Status)
	}

	queue, err := s.ListGatewayMismatches(ctx, 10)
	if err != nil {
		t.Fatalf("ListGatewayMismatches failed: %v", err)
	}
	if len(queue) != 2 {
		t.Errorf("Expected 2 mismatches queued, got %d", len(queue))
	}

	if _, applied, err := m.Confirm(ctx, gateway, confirmation(p, "gw-good")); err != nil || !applied {
		t.Errorf("Expected matching confirmation to apply, got applied=%v err=%v", applied, err)
	}

	other := createPayment(t, m, "1000")
	if _, _, err := m.Confirm(ctx, gateway, confirmation(other, "gw-good")); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation for a reference reused on another payment, got %v", err)
	}
}

func TestTransitions(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()
	p := createPayment(t, m, "100")

	if _, err := m.Refund(ctx, admin, p.Id, "changed mind"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected refund of PENDING to fail, got %v", err)
	}
	if _, err := m.OpenDispute(ctx, admin, p.Id, "early"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected dispute of PENDING to fail, got %v", err)
	}

	if _, _, err := m.Confirm(ctx, gateway, confirmation(p, "gw-1")); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	refunded, err := m.Refund(ctx, admin, p.Id, "service cancelled")
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if refunded.Status != models.EscrowRefunded || !refunded.RefundedAmount.Equal(p.GrossAmount) {
		t.Errorf("Expected REFUNDED for full gross, got %+v", refunded)
	}
	if _, err := m.OpenDispute(ctx, admin, p.Id, "late"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected dispute of REFUNDED to fail, got %v", err)
	}

	table := []struct {
		from, to models.EscrowStatus
		legal    bool
	}{
		{models.EscrowPending, models.EscrowHeld, true},
		{models.EscrowPending, models.EscrowDistributed, false},
		{models.EscrowHeld, models.EscrowPending, false},
		{models.EscrowDistributed, models.EscrowRefunded, false},
		{models.EscrowDistributed, models.EscrowDisputed, true},
		{models.EscrowRefunded, models.EscrowHeld, false},
		{models.EscrowDisputed, models.EscrowRefunded, true},
	}
	for _, tt := range table {
		if got := CanTransition(tt.from, tt.to); got != tt.legal {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.legal)
		}
	}
}

func TestResolveDispute_FromHeld(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	open := func() *models.EscrowPayment {
		p := createPayment(t, m, "700")
		if _, _, err := m.Confirm(ctx, gateway, confirmation(p, "gw-"+p.Id)); err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
		disputed, err := m.OpenDispute(ctx, admin, p.Id, "quality")
		if err != nil {
			t.Fatalf("OpenDispute failed: %v", err)
		}
		if disputed.DisputedFrom != models.EscrowHeld {
			t.Fatalf("Expected disputed from HELD, got %s", disputed.DisputedFrom)
		}
		return p
	}

	p := open()
	if _, _, err := m.ResolveDispute(ctx, admin, p.Id, models.DisputeResolution{
		Outcome: models.DisputePartial, RefundPercentage: decimal.NewFromInt(40),
	}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation for partial refund of undistributed payment, got %v", err)
	}
	released, _, err := m.ResolveDispute(ctx, admin, p.Id, models.DisputeResolution{Outcome: models.DisputeFavorRecipient})
	if err != nil || released.Status != models.EscrowHeld {
		t.Errorf("Expected release back to HELD, got %v %v", released, err)
	}

	q := open()
	refunded, txns, err := m.ResolveDispute(ctx, admin, q.Id, models.DisputeResolution{Outcome: models.DisputeFavorPayer})
	if err != nil {
		t.Fatalf("ResolveDispute failed: %v", err)
	}
	if refunded.Status != models.EscrowRefunded || !refunded.RefundedAmount.Equal(decimal.NewFromInt(700)) || len(txns) != 0 {
		t.Errorf("Expected full refund without ledger writes, got %+v and %d txns", refunded, len(txns))
	}

	if _, _, err := m.ResolveDispute(ctx, admin, q.Id, models.DisputeResolution{Outcome: models.DisputeFavorPayer}); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState resolving a closed dispute, got %v", err)
	}
}
