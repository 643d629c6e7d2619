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

// PayoutStatus is the lifecycle state of a PayoutRequest
type PayoutStatus string

const (
	PayoutRequested  PayoutStatus = "REQUESTED"
	PayoutApproved   PayoutStatus = "APPROVED"
	PayoutProcessing PayoutStatus = "PROCESSING"
	PayoutCompleted  PayoutStatus = "COMPLETED"
	PayoutRejected   PayoutStatus = "REJECTED"
	PayoutFailed     PayoutStatus = "FAILED"
)

// Open reports whether the request still counts against the wallet
func (s PayoutStatus) Open() bool {
	return s == PayoutRequested || s == PayoutApproved || s == PayoutProcessing
}

// PayoutRequest is a wallet owner's withdrawal intent
type PayoutRequest struct {
	Id           string          `json:"id"`
	OwnerId      string          `json:"owner_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	TaxCategory  string          `json:"tax_category,omitempty"`
	TaxWithheld  decimal.Decimal `json:"tax_withheld"`
	NetAmount    decimal.Decimal `json:"net_amount"`
	Status       PayoutStatus    `json:"status"`
	Destination  string          `json:"destination,omitempty"`
	ApproverId   string          `json:"approver_id,omitempty"`
	TransferRef  string          `json:"transfer_ref,omitempty"`
	ExternalRef  string          `json:"external_ref,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	RequestedAt  time.Time       `json:"requested_at"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	ProcessingAt *time.Time      `json:"processing_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	RejectedAt   *time.Time      `json:"rejected_at,omitempty"`
	FailedAt     *time.Time      `json:"failed_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
