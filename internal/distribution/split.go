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

package distribution

import (
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Split is the pre-tax division of one gross amount
type Split struct {
	Commission decimal.Decimal
	Pool       decimal.Decimal
	Bases      []decimal.Decimal // aligned with the shares passed to SplitGross
}

// SplitGross divides gross into commission and per-share base amounts.
//
// Commission is gross × rate/100 rounded half-up to scale. Bonuses are paid
// out of what remains, and the rest (the pool) is split by percentage: every
// non-primary share is truncated to scale and the primary share takes the
// remainder, so commission + Σbase + Σbonus == gross exactly.
func SplitGross(gross, commissionRate decimal.Decimal, shares []models.Share, primaryShareId string, scale int32) (Split, error) {
	if gross.IsNegative() {
		return Split{}, store.Invalid("allocation", primaryShareId, "gross amount %s is negative", gross.String())
	}

	commission := gross.Mul(commissionRate).Div(hundred).Round(scale)
	afterCommission := gross.Sub(commission)

	bonuses := decimal.Zero
	for _, s := range shares {
		bonuses = bonuses.Add(s.Bonus)
	}
	if bonuses.GreaterThan(afterCommission) {
		return Split{}, store.Invalid("distribution_plan", primaryShareId,
			"bonuses %s exceed the %s left after commission", bonuses.String(), afterCommission.String())
	}
	pool := afterCommission.Sub(bonuses)

	primary := -1
	allocated := decimal.Zero
	bases := make([]decimal.Decimal, len(shares))
	for i, s := range shares {
		if s.Id == primaryShareId {
			primary = i
			continue
		}
		bases[i] = pool.Mul(s.Percentage).Div(hundred).Truncate(scale)
		allocated = allocated.Add(bases[i])
	}
	if primary < 0 {
		return Split{}, store.Invalid("distribution_plan", primaryShareId, "primary share is not part of the plan")
	}

	bases[primary] = pool.Sub(allocated)
	if bases[primary].IsNegative() {
		return Split{}, store.Invalid("distribution_plan", primaryShareId,
			"primary share cannot absorb rounding remainder %s", bases[primary].String())
	}

	return Split{Commission: commission, Pool: pool, Bases: bases}, nil
}

// choosePrimary returns the share that absorbs rounding remainders: the one
// for the designated recipient if any, else the largest percentage, first
// wins ties
func choosePrimary(shares []models.Share, designatedRecipient string) (string, error) {
	if len(shares) == 0 {
		return "", store.Invalid("distribution_plan", "", "a plan needs at least one share")
	}

	if designatedRecipient != "" {
		for _, s := range shares {
			if s.RecipientId == designatedRecipient {
				return s.Id, nil
			}
		}
		return "", store.Invalid("distribution_plan", designatedRecipient, "designated primary recipient has no share")
	}

	best := shares[0]
	for _, s := range shares[1:] {
		if s.Percentage.GreaterThan(best.Percentage) {
			best = s
		}
	}
	return best.Id, nil
}
