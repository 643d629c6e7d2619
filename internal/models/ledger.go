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

// TransactionType classifies a LedgerTransaction
type TransactionType string

const (
	TxCreditDistribution TransactionType = "CREDIT_DISTRIBUTION"
	TxDebitCommission    TransactionType = "DEBIT_COMMISSION"
	TxCreditBonus        TransactionType = "CREDIT_BONUS"
	TxDebitWithdrawal    TransactionType = "DEBIT_WITHDRAWAL"
	TxReversal           TransactionType = "REVERSAL"
)

// Platform-owned ledger accounts
const (
	PlatformCommissionAccount = "platform-commission"
)

// LedgerTransaction is an immutable ledger record. Amount is signed with
// respect to the owner's balance: positive credits, negative debits.
type LedgerTransaction struct {
	Id            string          `db:"id" json:"id"`
	OwnerId       string          `db:"owner_id" json:"owner_id"`
	Type          TransactionType `db:"type" json:"type"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before" json:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after" json:"balance_after"`
	Currency      string          `db:"currency" json:"currency"`
	SourceRef     string          `db:"source_ref" json:"source_ref"`
	ReversalOf    string          `db:"reversal_of" json:"reversal_of,omitempty"`
	TaxWithheld   decimal.Decimal `db:"tax_withheld" json:"tax_withheld"`
	Reference     string          `db:"reference" json:"reference,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// WalletBalance is the projection of the ledger for one owner
type WalletBalance struct {
	OwnerId           string          `db:"owner_id" json:"owner_id"`
	Balance           decimal.Decimal `db:"balance" json:"balance"`
	PendingPayout     decimal.Decimal `json:"pending_payout"`
	LifetimeEarned    decimal.Decimal `db:"lifetime_earned" json:"lifetime_earned"`
	LifetimeWithdrawn decimal.Decimal `db:"lifetime_withdrawn" json:"lifetime_withdrawn"`
	LastTransactionId string          `db:"last_transaction_id" json:"last_transaction_id,omitempty"`
	Frozen            bool            `db:"frozen" json:"frozen"`
	Version           int64           `db:"version" json:"version"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Available is the balance not yet promised to an open payout request
func (w WalletBalance) Available() decimal.Decimal {
	return w.Balance.Sub(w.PendingPayout)
}

// TaxLiability tracks tax withheld at source, owed to the tax authority
type TaxLiability struct {
	Id            string          `db:"id" json:"id"`
	OwnerId       string          `db:"owner_id" json:"owner_id"`
	SourceRef     string          `db:"source_ref" json:"source_ref"`
	TransactionId string          `db:"transaction_id" json:"transaction_id,omitempty"`
	Category      string          `db:"category" json:"category"`
	Gross         decimal.Decimal `db:"gross" json:"gross"`
	Withheld      decimal.Decimal `db:"withheld" json:"withheld"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// JournalEntry is one side of the double-entry record of a LedgerTransaction
type JournalEntry struct {
	Id            string          `db:"id"`
	TransactionId string          `db:"transaction_id"`
	AccountType   string          `db:"account_type"`
	AccountId     string          `db:"account_id"`
	DebitAmount   decimal.Decimal `db:"debit_amount"`
	CreditAmount  decimal.Decimal `db:"credit_amount"`
	CreatedAt     time.Time       `db:"created_at"`
}
