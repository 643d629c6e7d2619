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

package database

const (
	// Member queries
	memberColumns = `id, name, email, type, firm_id, role, tax_category, active, created_at, updated_at`

	queryInsertMember = `
		INSERT OR IGNORE INTO members (id, name, email, type, firm_id, role, tax_category, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`

	queryGetMemberById = `
		SELECT ` + memberColumns + `
		FROM members
		WHERE id = ?`

	queryGetMemberByEmail = `
		SELECT ` + memberColumns + `
		FROM members
		WHERE email = ?`

	queryGetActiveMembers = `
		SELECT ` + memberColumns + `
		FROM members
		WHERE active = 1
		ORDER BY created_at, id`

	queryGetFirmMembers = `
		SELECT ` + memberColumns + `
		FROM members
		WHERE firm_id = ? AND active = 1
		ORDER BY created_at, id`

	// Escrow queries
	paymentColumns = `id, gross_amount, currency, source_request_ref, payer_type, status,
		COALESCE(gateway_ref, ''), COALESCE(distribution_id, ''), disputed_from, refunded_amount,
		created_at, held_at, distributed_at, refunded_at, disputed_at, updated_at`

	queryInsertPayment = `
		INSERT INTO escrow_payments (id, gross_amount, currency, source_request_ref, payer_type, status,
			refunded_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '0', ?, ?)`

	queryGetPayment = `
		SELECT ` + paymentColumns + `
		FROM escrow_payments
		WHERE id = ?`

	queryUpdatePayment = `
		UPDATE escrow_payments
		SET status = ?, gateway_ref = ?, disputed_from = ?, refunded_amount = ?,
			held_at = ?, refunded_at = ?, disputed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	queryMarkDistributed = `
		UPDATE escrow_payments
		SET status = 'DISTRIBUTED', distribution_id = ?, distributed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'HELD' AND distribution_id IS NULL`

	queryInsertGatewayEvent = `
		INSERT INTO gateway_events (gateway_ref, escrow_payment_id, confirmed_amount, currency, status, detail, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetGatewayEvent = `
		SELECT gateway_ref, escrow_payment_id, confirmed_amount, currency, status, detail, received_at
		FROM gateway_events
		WHERE gateway_ref = ?`

	queryGetGatewayMismatches = `
		SELECT gateway_ref, escrow_payment_id, confirmed_amount, currency, status, detail, received_at
		FROM gateway_events
		WHERE status = 'MISMATCH'
		ORDER BY received_at DESC
		LIMIT ?`

	// Plan queries
	queryInsertPlan = `
		INSERT INTO distribution_plans (id, payment_id, type, status, commission_rate, primary_share_id, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertShare = `
		INSERT INTO shares (id, plan_id, position, recipient_id, role, percentage, bonus, tax_category,
			approved, approver_signature, approved_by, approved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	planColumns = `id, payment_id, type, status, commission_rate, primary_share_id, created_by, created_at, executed_at`

	queryGetPlan = `
		SELECT ` + planColumns + `
		FROM distribution_plans
		WHERE id = ?`

	queryGetPlanForPayment = `
		SELECT ` + planColumns + `
		FROM distribution_plans
		WHERE payment_id = ?`

	queryGetShares = `
		SELECT id, plan_id, position, recipient_id, role, percentage, bonus, tax_category,
			approved, approver_signature, approved_by, approved_at
		FROM shares
		WHERE plan_id = ?
		ORDER BY position`

	queryDeleteShares = `
		DELETE FROM shares WHERE plan_id = ?`

	queryDeleteDraftPlan = `
		DELETE FROM distribution_plans WHERE id = ? AND status = 'DRAFT'`

	queryUpdateShareApproval = `
		UPDATE shares
		SET approved = ?, approver_signature = ?, approved_by = ?, approved_at = ?
		WHERE id = ? AND plan_id = ?`

	queryMarkPlanExecuted = `
		UPDATE distribution_plans
		SET status = 'EXECUTED', executed_at = ?
		WHERE id = ? AND status = 'DRAFT'`

	// Balance queries
	balanceColumns = `owner_id, balance, lifetime_earned, lifetime_withdrawn, last_transaction_id, frozen, version, updated_at`

	queryGetAccountBalance = `
		SELECT ` + balanceColumns + `
		FROM account_balances
		WHERE owner_id = ?`

	queryGetAllBalances = `
		SELECT ` + balanceColumns + `
		FROM account_balances
		ORDER BY owner_id`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (owner_id, balance, lifetime_earned, lifetime_withdrawn, version, updated_at)
		VALUES (?, '0', '0', '0', 1, ?)`

	queryUpdateAccountBalance = `
		UPDATE account_balances
		SET balance = ?, lifetime_earned = ?, lifetime_withdrawn = ?, last_transaction_id = ?,
			version = version + 1, updated_at = ?
		WHERE owner_id = ? AND version = ?`

	querySetFrozen = `
		UPDATE account_balances
		SET frozen = ?, version = version + 1, updated_at = ?
		WHERE owner_id = ?`

	queryRebuildAccountBalance = `
		UPDATE account_balances
		SET balance = ?, lifetime_earned = ?, lifetime_withdrawn = ?, last_transaction_id = ?,
			frozen = 0, version = version + 1, updated_at = ?
		WHERE owner_id = ?`

	// Transaction queries
	transactionColumns = `id, owner_id, type, amount, balance_before, balance_after, currency,
		source_ref, reversal_of, tax_withheld, reference, created_at`

	queryInsertTransaction = `
		INSERT INTO ledger_transactions (
			id, owner_id, type, amount, balance_before, balance_after, currency,
			source_ref, reversal_of, tax_withheld, reference, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetOwnerAmounts = `
		SELECT type, amount, id
		FROM ledger_transactions
		WHERE owner_id = ?
		ORDER BY seq`

	queryGetTransactionHistory = `
		SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE owner_id = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`

	queryGetTransactionById = `
		SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE id = ?`

	queryGetTransactionsBySource = `
		SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE source_ref = ?
		ORDER BY seq`

	queryGetReversalAmounts = `
		SELECT amount
		FROM ledger_transactions
		WHERE reversal_of = ? AND type = 'REVERSAL'`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, account_type, account_id, debit_amount, credit_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetJournalEntries = `
		SELECT id, transaction_id, account_type, account_id, debit_amount, credit_amount, created_at
		FROM journal_entries
		WHERE transaction_id = ?
		ORDER BY account_type`

	// Tax liability queries
	queryInsertTaxLiability = `
		INSERT INTO tax_liabilities (id, owner_id, source_ref, transaction_id, category, gross, withheld, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	taxLiabilityColumns = `id, owner_id, source_ref, transaction_id, category, gross, withheld, created_at`

	queryGetTaxLiabilitiesBySource = `
		SELECT ` + taxLiabilityColumns + `
		FROM tax_liabilities
		WHERE source_ref = ?
		ORDER BY created_at, id`

	queryGetTaxLiabilitiesByOwner = `
		SELECT ` + taxLiabilityColumns + `
		FROM tax_liabilities
		WHERE owner_id = ?
		ORDER BY created_at, id`

	// Payout queries
	payoutColumns = `id, owner_id, amount, currency, tax_category, tax_withheld, net_amount, status,
		destination, approver_id, transfer_ref, external_ref, reason, requested_at, approved_at, processing_at,
		completed_at, rejected_at, failed_at, updated_at`

	queryInsertPayout = `
		INSERT INTO payout_requests (id, owner_id, amount, currency, tax_category, tax_withheld, net_amount,
			status, destination, requested_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPayout = `
		SELECT ` + payoutColumns + `
		FROM payout_requests
		WHERE id = ?`

	queryGetOwnerPayouts = `
		SELECT ` + payoutColumns + `
		FROM payout_requests
		WHERE owner_id = ?
		ORDER BY requested_at DESC, id`

	queryUpdatePayout = `
		UPDATE payout_requests
		SET status = ?, approver_id = ?, transfer_ref = ?, external_ref = ?, reason = ?, approved_at = ?, processing_at = ?,
			completed_at = ?, rejected_at = ?, failed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	queryGetPayoutAmountsByStatus = `
		SELECT id, status, amount
		FROM payout_requests
		WHERE owner_id = ? AND status IN ('REQUESTED', 'APPROVED', 'PROCESSING')`
)
