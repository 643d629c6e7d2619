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

package store

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrNotFound               = errors.New("not found")

	ErrValidation          = errors.New("validation failed")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPaymentMismatch     = errors.New("payment mismatch")
	ErrLedgerDrift         = errors.New("ledger drift")
	ErrPermissionDenied    = errors.New("permission denied")
)

// ValidationError rejects malformed input before any state change
type ValidationError struct {
	Entity    string
	Id        string
	Invariant string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s %s: %s", e.Entity, e.Id, e.Invariant)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidStateError is returned when an entity is not in the state an operation requires
type InvalidStateError struct {
	Entity    string
	Id        string
	State     string
	Invariant string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s in state %s: %s", e.Entity, e.Id, e.State, e.Invariant)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// InvalidTransitionError names an illegal from/to pair
type InvalidTransitionError struct {
	Entity string
	Id     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s: illegal transition %s -> %s", e.Entity, e.Id, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || target == ErrInvalidState
}

// InsufficientBalanceError is returned when a debit or payout exceeds what the wallet holds
type InsufficientBalanceError struct {
	OwnerId   string
	Requested decimal.Decimal
	Available decimal.Decimal
	Invariant string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for owner %s: requested=%s, available=%s, shortfall=%s (%s)",
		e.OwnerId, e.Requested.String(), e.Available.String(), e.Requested.Sub(e.Available).String(), e.Invariant)
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// PaymentMismatchError is returned when a gateway confirmation disagrees with the expected payment
type PaymentMismatchError struct {
	PaymentId        string
	GatewayRef       string
	ExpectedAmount   decimal.Decimal
	ConfirmedAmount  decimal.Decimal
	ExpectedCurrency string
	Currency         string
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("gateway confirmation %s for payment %s does not match: expected %s %s, confirmed %s %s",
		e.GatewayRef, e.PaymentId, e.ExpectedAmount.String(), e.ExpectedCurrency, e.ConfirmedAmount.String(), e.Currency)
}

func (e *PaymentMismatchError) Is(target error) bool { return target == ErrPaymentMismatch }

// LedgerDriftError means the maintained balance disagrees with the transaction sum.
// The owner is frozen until an operator reconciles it.
type LedgerDriftError struct {
	OwnerId    string
	Maintained decimal.Decimal
	Calculated decimal.Decimal
}

func (e *LedgerDriftError) Error() string {
	return fmt.Sprintf("ledger drift for owner %s: maintained=%s, calculated=%s, difference=%s",
		e.OwnerId, e.Maintained.String(), e.Calculated.String(), e.Maintained.Sub(e.Calculated).String())
}

func (e *LedgerDriftError) Is(target error) bool { return target == ErrLedgerDrift }

// PermissionError is returned when an actor's role does not grant an action
type PermissionError struct {
	ActorId string
	Role    string
	Action  string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("actor %s with role %s may not %s", e.ActorId, e.Role, e.Action)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermissionDenied }

// Invalid is shorthand for a ValidationError
func Invalid(entity, id, format string, args ...any) error {
	return &ValidationError{Entity: entity, Id: id, Invariant: fmt.Sprintf(format, args...)}
}
