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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EscrowStatus is the lifecycle state of an EscrowPayment
type EscrowStatus string

const (
	EscrowPending     EscrowStatus = "PENDING"
	EscrowHeld        EscrowStatus = "HELD"
	EscrowDistributed EscrowStatus = "DISTRIBUTED"
	EscrowRefunded    EscrowStatus = "REFUNDED"
	EscrowDisputed    EscrowStatus = "DISPUTED"
)

// PayerType selects the commission rule applied to a payment
type PayerType string

const (
	PayerIndividual PayerType = "individual"
	PayerFirm       PayerType = "firm"
)

// EscrowPayment is one client payment held by the platform
type EscrowPayment struct {
	Id               string          `json:"id"`
	GrossAmount      decimal.Decimal `json:"gross_amount"`
	Currency         string          `json:"currency"`
	SourceRequestRef string          `json:"source_request_ref"`
	PayerType        PayerType       `json:"payer_type"`
	Status           EscrowStatus    `json:"status"`
	GatewayRef       string          `json:"gateway_ref,omitempty"`
	DistributionId   string          `json:"distribution_id,omitempty"`
	DisputedFrom     EscrowStatus    `json:"disputed_from,omitempty"`
	RefundedAmount   decimal.Decimal `json:"refunded_amount"`
	CreatedAt        time.Time       `json:"created_at"`
	HeldAt           *time.Time      `json:"held_at,omitempty"`
	DistributedAt    *time.Time      `json:"distributed_at,omitempty"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
	DisputedAt       *time.Time      `json:"disputed_at,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// GatewayConfirmation is the inbound event emitted by the payment gateway
// collaborator once funds reach the platform escrow account.
type GatewayConfirmation struct {
	GatewayRef      string          `json:"gateway_ref"`
	EscrowPaymentId string          `json:"escrow_payment_id"`
	ConfirmedAmount decimal.Decimal `json:"confirmed_amount"`
	Currency        string          `json:"currency"`
}

// GatewayEvent records one delivery of a GatewayConfirmation
type GatewayEvent struct {
	GatewayRef      string          `json:"gateway_ref"`
	EscrowPaymentId string          `json:"escrow_payment_id"`
	ConfirmedAmount decimal.Decimal `json:"confirmed_amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"` // "APPLIED", "MISMATCH"
	Detail          string          `json:"detail,omitempty"`
	ReceivedAt      time.Time       `json:"received_at"`
}

const (
	GatewayEventApplied  = "APPLIED"
	GatewayEventMismatch = "MISMATCH"
)

// DisputeOutcome is produced by the dispute-management collaborator
type DisputeOutcome string

const (
	DisputeFavorPayer     DisputeOutcome = "FAVOR_PAYER"
	DisputeFavorRecipient DisputeOutcome = "FAVOR_RECIPIENT"
	DisputePartial        DisputeOutcome = "PARTIAL"
)

// DisputeResolution carries the outcome and, for PARTIAL, the refund percentage
type DisputeResolution struct {
	Outcome          DisputeOutcome  `json:"outcome"`
	RefundPercentage decimal.Decimal `json:"refund_percentage"`
}
