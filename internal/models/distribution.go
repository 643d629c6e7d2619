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

// PlanType is the split policy of a DistributionPlan
type PlanType string

const (
	PlanSingleRecipient PlanType = "SINGLE_RECIPIENT"
	PlanRoleBased       PlanType = "ROLE_BASED"
	PlanCustom          PlanType = "CUSTOM"
)

// PlanStatus tracks whether a plan has been executed
type PlanStatus string

const (
	PlanDraft    PlanStatus = "DRAFT"
	PlanExecuted PlanStatus = "EXECUTED"
)

// DistributionPlan is the split policy attached to an EscrowPayment
type DistributionPlan struct {
	Id             string          `json:"id"`
	PaymentId      string          `json:"payment_id"`
	Type           PlanType        `json:"type"`
	Status         PlanStatus      `json:"status"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	PrimaryShareId string          `json:"primary_share_id"`
	CreatedBy      string          `json:"created_by"`
	Shares         []Share         `json:"shares"`
	CreatedAt      time.Time       `json:"created_at"`
	ExecutedAt     *time.Time      `json:"executed_at,omitempty"`
}

// Share is one recipient's portion of a DistributionPlan
type Share struct {
	Id                string          `json:"id"`
	PlanId            string          `json:"plan_id"`
	Position          int             `json:"position"`
	RecipientId       string          `json:"recipient_id"`
	Role              string          `json:"role,omitempty"`
	Percentage        decimal.Decimal `json:"percentage"`
	Bonus             decimal.Decimal `json:"bonus"`
	TaxCategory       string          `json:"tax_category,omitempty"`
	Approved          bool            `json:"approved"`
	ApproverSignature string          `json:"approver_signature,omitempty"`
	ApprovedBy        string          `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty"`
}

// Executable reports whether every precondition on the plan itself holds.
// The escrow status is checked separately, inside the execution transaction.
func (p *DistributionPlan) Executable() bool {
	if p.Status != PlanDraft {
		return false
	}
	if p.Type != PlanCustom {
		return true
	}
	for _, share := range p.Shares {
		if !share.Approved {
			return false
		}
	}
	return true
}

// ShareAmount is the computed money for one share
type ShareAmount struct {
	ShareId       string          `json:"share_id"`
	RecipientId   string          `json:"recipient_id"`
	Base          decimal.Decimal `json:"base"`
	BaseWithheld  decimal.Decimal `json:"base_withheld"`
	Bonus         decimal.Decimal `json:"bonus"`
	BonusWithheld decimal.Decimal `json:"bonus_withheld"`
	TaxCategory   string          `json:"tax_category,omitempty"`
}

// Allocation is the full split of one gross amount
type Allocation struct {
	Gross      decimal.Decimal `json:"gross"`
	Commission decimal.Decimal `json:"commission"`
	Shares     []ShareAmount   `json:"shares"`
}

// Total is commission plus every share's base and bonus before withholding.
// Credited net amounts plus withheld tax add up to the same figure, which
// equals Gross for any valid allocation.
func (a Allocation) Total() decimal.Decimal {
	total := a.Commission
	for _, s := range a.Shares {
		total = total.Add(s.Base).Add(s.Bonus)
	}
	return total
}
