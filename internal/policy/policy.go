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

package policy

import (
	"fmt"
	"strings"

	"escrow-ledger-go/internal/store"
)

// Role is the capacity an actor invokes an operation in
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleFirmAdmin Role = "FIRM_ADMIN"
	RoleMember    Role = "MEMBER"
	RoleSystem    Role = "SYSTEM"
)

// Action names one mutating engine operation
type Action string

const (
	ActionCreatePayment  Action = "create_payment"
	ActionConfirmPayment Action = "confirm_payment"
	ActionRefundPayment  Action = "refund_payment"
	ActionOpenDispute    Action = "open_dispute"
	ActionResolveDispute Action = "resolve_dispute"
	ActionCreatePlan     Action = "create_plan"
	ActionApproveShare   Action = "approve_share"
	ActionExecutePlan    Action = "execute_plan"
	ActionRequestPayout  Action = "request_payout"
	ActionApprovePayout  Action = "approve_payout"
	ActionRejectPayout   Action = "reject_payout"
	ActionProcessPayout  Action = "process_payout"
	ActionCompletePayout Action = "complete_payout"
	ActionFailPayout     Action = "fail_payout"
	ActionAdjustLedger   Action = "adjust_ledger"
	ActionUnfreeze       Action = "unfreeze_wallet"
)

// Actor is the caller of an operation
type Actor struct {
	Id   string
	Role Role
}

func (a Actor) String() string {
	return fmt.Sprintf("%s(%s)", a.Id, a.Role)
}

// System is the actor used by internal collaborators such as the transfer listener
var System = Actor{Id: "system", Role: RoleSystem}

// DefaultApprovals is the capability table used when the policy file has none
func DefaultApprovals() map[string][]string {
	return map[string][]string{
		string(ActionCreatePayment):  {"ADMIN", "SYSTEM"},
		string(ActionConfirmPayment): {"SYSTEM", "ADMIN"},
		string(ActionRefundPayment):  {"ADMIN"},
		string(ActionOpenDispute):    {"ADMIN", "SYSTEM"},
		string(ActionResolveDispute): {"ADMIN", "SYSTEM"},
		string(ActionCreatePlan):     {"ADMIN", "FIRM_ADMIN"},
		string(ActionApproveShare):   {"ADMIN", "FIRM_ADMIN", "MEMBER"},
		string(ActionExecutePlan):    {"ADMIN", "FIRM_ADMIN"},
		string(ActionRequestPayout):  {"MEMBER", "FIRM_ADMIN", "ADMIN"},
		string(ActionApprovePayout):  {"ADMIN"},
		string(ActionRejectPayout):   {"ADMIN"},
		string(ActionProcessPayout):  {"ADMIN", "SYSTEM"},
		string(ActionCompletePayout): {"SYSTEM", "ADMIN"},
		string(ActionFailPayout):     {"SYSTEM", "ADMIN"},
		string(ActionAdjustLedger):   {"ADMIN"},
		string(ActionUnfreeze):       {"ADMIN"},
	}
}

// Table maps each action to the roles allowed to perform it
type Table struct {
	allowed map[Action]map[Role]bool
}

// NewTable builds a capability table. Actions missing from approvals fall
// back to DefaultApprovals.
func NewTable(approvals map[string][]string) *Table {
	merged := DefaultApprovals()
	for action, roles := range approvals {
		merged[action] = roles
	}

	t := &Table{allowed: make(map[Action]map[Role]bool, len(merged))}
	for action, roles := range merged {
		set := make(map[Role]bool, len(roles))
		for _, r := range roles {
			set[Role(strings.ToUpper(strings.TrimSpace(r)))] = true
		}
		t.allowed[Action(action)] = set
	}
	return t
}

// Authorize fails with a PermissionError unless actor's role may perform action
func (t *Table) Authorize(actor Actor, action Action) error {
	if actor.Id == "" || !t.allowed[action][actor.Role] {
		return &store.PermissionError{ActorId: actor.Id, Role: string(actor.Role), Action: string(action)}
	}
	return nil
}

// AuthorizeOwner is Authorize plus the rule that a MEMBER may only act on
// their own wallet or share.
func (t *Table) AuthorizeOwner(actor Actor, action Action, ownerId string) error {
	if err := t.Authorize(actor, action); err != nil {
		return err
	}
	if actor.Role == RoleMember && actor.Id != ownerId {
		return &store.PermissionError{ActorId: actor.Id, Role: string(actor.Role), Action: string(action) + " for " + ownerId}
	}
	return nil
}

// ParseRole validates a role name from an untrusted boundary
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleFirmAdmin, RoleMember, RoleSystem:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}
