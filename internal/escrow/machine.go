/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package escrow

import (
	"context"
	"errors"
	"strings"
	"time"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreatePaymentParams describes a client payment that is expected from the gateway
type CreatePaymentParams struct {
	Id               string
	GrossAmount      decimal.Decimal
	Currency         string
	SourceRequestRef string
	PayerType        models.PayerType
}

// Machine drives escrow payments through their lifecycle
type Machine struct {
	store  store.Store
	policy models.Policy
	authz  *policy.Table
}

func NewMachine(s store.Store, pol models.Policy, authz *policy.Table) *Machine {
	return &Machine{store: s, policy: pol, authz: authz}
}

// CreatePayment registers a PENDING payment awaiting gateway confirmation
func (m *Machine) CreatePayment(ctx context.Context, actor policy.Actor, params CreatePaymentParams) (*models.EscrowPayment, error) {
	if err := m.authz.Authorize(actor, policy.ActionCreatePayment); err != nil {
		return nil, err
	}

	if params.Id == "" {
		params.Id = uuid.New().String()
	}
	if params.Currency == "" {
		params.Currency = m.policy.DefaultCurrency
	}
	params.Currency = strings.ToUpper(params.Currency)

	switch {
	case params.Currency != m.policy.DefaultCurrency:
		return nil, store.Invalid("escrow_payment", params.Id, "currency %s is not the ledger currency %s", params.Currency, m.policy.DefaultCurrency)
	case !params.GrossAmount.IsPositive():
		return nil, store.Invalid("escrow_payment", params.Id, "gross amount must be positive, got %s", params.GrossAmount.String())
	case params.GrossAmount.Exponent() < -m.policy.Scale(params.Currency):
		return nil, store.Invalid("escrow_payment", params.Id, "gross amount %s has more than %d decimal places",
			params.GrossAmount.String(), m.policy.Scale(params.Currency))
	case strings.TrimSpace(params.SourceRequestRef) == "":
		return nil, store.Invalid("escrow_payment", params.Id, "source request reference is required")
	case params.PayerType != models.PayerIndividual && params.PayerType != models.PayerFirm:
		return nil, store.Invalid("escrow_payment", params.Id, "payer type must be individual or firm, got %q", params.PayerType)
	}

	ts := time.Now().UTC()
	payment := &models.EscrowPayment{
		Id:               params.Id,
		GrossAmount:      params.GrossAmount,
		Currency:         params.Currency,
		SourceRequestRef: params.SourceRequestRef,
		PayerType:        params.PayerType,
		Status:           models.EscrowPending,
		RefundedAmount:   decimal.Zero,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}
	err := m.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Escrow payment created",
		zap.String("payment_id", payment.Id),
		zap.String("gross", payment.GrossAmount.String()),
		zap.String("currency", payment.Currency),
		zap.String("payer_type", string(payment.PayerType)),
		zap.String("actor", actor.String()))
	return payment, nil
}

// Confirm applies a gateway confirmation. It returns applied=false for a
// repeated delivery of an already applied gatewayRef. An amount or currency
// mismatch is recorded for review and returned as PaymentMismatchError; the
// payment stays PENDING.
func (m *Machine) Confirm(ctx context.Context, actor policy.Actor, conf models.GatewayConfirmation) (*models.EscrowPayment, bool, error) {
	if err := m.authz.Authorize(actor, policy.ActionConfirmPayment); err != nil {
		return nil, false, err
	}
	if conf.GatewayRef == "" || conf.EscrowPaymentId == "" {
		return nil, false, store.Invalid("gateway_confirmation", conf.GatewayRef, "gateway reference and payment id are required")
	}

	var payment *models.EscrowPayment
	var mismatch *store.PaymentMismatchError
	applied := false

	err := m.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		mismatch, applied = nil, false

		var err error
		payment, err = tx.GetPayment(ctx, conf.EscrowPaymentId)
		if err != nil {
			return err
		}

		event, err := tx.GetGatewayEvent(ctx, conf.GatewayRef)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case event.EscrowPaymentId != conf.EscrowPaymentId:
			return store.Invalid("gateway_confirmation", conf.GatewayRef,
				"reference already used for payment %s", event.EscrowPaymentId)
		case event.Status == models.GatewayEventMismatch:
			mismatch = mismatchError(payment, conf)
			return nil
		default:
			zap.L().Info("Duplicate gateway confirmation ignored",
				zap.String("gateway_ref", conf.GatewayRef),
				zap.String("payment_id", payment.Id))
			return nil
		}

		if err := checkTransition(payment, models.EscrowHeld); err != nil {
			return err
		}

		ts := time.Now().UTC()
		recorded := models.GatewayEvent{
			GatewayRef:      conf.GatewayRef,
			EscrowPaymentId: conf.EscrowPaymentId,
			ConfirmedAmount: conf.ConfirmedAmount,
			Currency:        conf.Currency,
			Status:          models.GatewayEventApplied,
			ReceivedAt:      ts,
		}

		if !conf.ConfirmedAmount.Equal(payment.GrossAmount) || !strings.EqualFold(conf.Currency, payment.Currency) {
			mismatch = mismatchError(payment, conf)
			recorded.Status = models.GatewayEventMismatch
			recorded.Detail = mismatch.Error()
			return tx.InsertGatewayEvent(ctx, recorded)
		}

		if err := tx.InsertGatewayEvent(ctx, recorded); err != nil {
			return err
		}
		payment.Status = models.EscrowHeld
		payment.GatewayRef = conf.GatewayRef
		payment.HeldAt = &ts
		payment.UpdatedAt = ts
		if err := tx.UpdatePayment(ctx, payment, models.EscrowPending); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		zap.L().Warn("Gateway confirmation rejected",
			zap.String("gateway_ref", conf.GatewayRef),
			zap.String("payment_id", conf.EscrowPaymentId),
			zap.Error(err))
		return nil, false, err
	}

	if mismatch != nil {
		zap.L().Error("Gateway confirmation does not match payment",
			zap.String("gateway_ref", conf.GatewayRef),
			zap.String("payment_id", payment.Id),
			zap.String("expected", payment.GrossAmount.String()),
			zap.String("confirmed", conf.ConfirmedAmount.String()),
			zap.String("currency", conf.Currency))
		return payment, false, mismatch
	}

	if applied {
		zap.L().Info("Escrow payment held",
			zap.String("payment_id", payment.Id),
			zap.String("gateway_ref", conf.GatewayRef),
			zap.String("gross", payment.GrossAmount.String()))
	}
	return payment, applied, nil
}

func mismatchError(payment *models.EscrowPayment, conf models.GatewayConfirmation) *store.PaymentMismatchError {
	return &store.PaymentMismatchError{
		PaymentId:        payment.Id,
		GatewayRef:       conf.GatewayRef,
		ExpectedAmount:   payment.GrossAmount,
		ConfirmedAmount:  conf.ConfirmedAmount,
		ExpectedCurrency: payment.Currency,
		Currency:         conf.Currency,
	}
}

// Refund returns a HELD payment to the payer. Nothing was distributed, so
// the ledger is untouched.
func (m *Machine) Refund(ctx context.Context, actor policy.Actor, paymentId, reason string) (*models.EscrowPayment, error) {
	if err := m.authz.Authorize(actor, policy.ActionRefundPayment); err != nil {
		return nil, err
	}

	var payment *models.EscrowPayment
	err := m.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		payment, err = tx.GetPayment(ctx, paymentId)
		if err != nil {
			return err
		}
		if payment.Status != models.EscrowHeld {
			return &store.InvalidTransitionError{Entity: "escrow_payment", Id: paymentId,
				From: string(payment.Status), To: string(models.EscrowRefunded)}
		}
		return m.refund(ctx, tx, payment, payment.GrossAmount)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Escrow payment refunded",
		zap.String("payment_id", paymentId),
		zap.String("amount", payment.RefundedAmount.String()),
		zap.String("reason", reason),
		zap.String("actor", actor.String()))
	return payment, nil
}

func (m *Machine) refund(ctx context.Context, tx store.Tx, payment *models.EscrowPayment, amount decimal.Decimal) error {
	if err := checkTransition(payment, models.EscrowRefunded); err != nil {
		return err
	}
	expected := payment.Status
	ts := time.Now().UTC()
	payment.Status = models.EscrowRefunded
	payment.RefundedAmount = payment.RefundedAmount.Add(amount)
	payment.RefundedAt = &ts
	payment.UpdatedAt = ts
	return tx.UpdatePayment(ctx, payment, expected)
}

// OpenDispute moves a HELD or DISTRIBUTED payment into DISPUTED and
// remembers where it came from.
func (m *Machine) OpenDispute(ctx context.Context, actor policy.Actor, paymentId, reason string) (*models.EscrowPayment, error) {
	if err := m.authz.Authorize(actor, policy.ActionOpenDispute); err != nil {
		return nil, err
	}

	var payment *models.EscrowPayment
	err := m.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		payment, err = tx.GetPayment(ctx, paymentId)
		if err != nil {
			return err
		}
		if err := checkTransition(payment, models.EscrowDisputed); err != nil {
			return err
		}

		ts := time.Now().UTC()
		expected := payment.Status
		payment.DisputedFrom = payment.Status
		payment.Status = models.EscrowDisputed
		payment.DisputedAt = &ts
		payment.UpdatedAt = ts
		return tx.UpdatePayment(ctx, payment, expected)
	})
	if err != nil {
		zap.L().Warn("Dispute rejected", zap.String("payment_id", paymentId), zap.Error(err))
		return nil, err
	}

	zap.L().Info("Dispute opened",
		zap.String("payment_id", paymentId),
		zap.String("disputed_from", string(payment.DisputedFrom)),
		zap.String("reason", reason),
		zap.String("actor", actor.String()))
	return payment, nil
}

// Status returns the current payment
func (m *Machine) Status(ctx context.Context, paymentId string) (*models.EscrowPayment, error) {
	return m.store.GetPayment(ctx, paymentId)
}
