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

package tax

import (
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Result is the split of a gross amount into withheld tax and net
type Result struct {
	Withheld decimal.Decimal
	Net      decimal.Decimal
}

// Calculator computes source-deducted tax from the configured rate table.
// It holds no state beyond the table and is safe for concurrent use.
type Calculator struct {
	categories map[string]models.TaxCategory
	policy     models.Policy
}

func NewCalculator(policy models.Policy) *Calculator {
	return &Calculator{categories: policy.TaxCategories, policy: policy}
}

// Compute splits gross into withheld and net for category. An empty category
// means no tax. Withheld rounds half-up to the currency scale so that
// Withheld + Net == gross exactly.
//
// Exclusive rates withhold gross × rate/100. Inclusive rates treat gross as
// already containing the tax: withheld = gross × rate / (100 + rate).
func (c *Calculator) Compute(gross decimal.Decimal, category, currency string) (Result, error) {
	if gross.IsNegative() {
		return Result{}, store.Invalid("tax", category, "gross amount %s is negative", gross.String())
	}
	if category == "" {
		return Result{Withheld: decimal.Zero, Net: gross}, nil
	}

	tc, ok := c.categories[category]
	if !ok {
		return Result{}, store.Invalid("tax", category, "unknown tax category")
	}

	scale := c.policy.Scale(currency)
	var withheld decimal.Decimal
	if tc.Inclusive {
		withheld = gross.Mul(tc.Rate).Div(hundred.Add(tc.Rate)).Round(scale)
	} else {
		withheld = gross.Mul(tc.Rate).Div(hundred).Round(scale)
	}

	return Result{Withheld: withheld, Net: gross.Sub(withheld)}, nil
}

// Known reports whether category exists in the rate table
func (c *Calculator) Known(category string) bool {
	if category == "" {
		return true
	}
	_, ok := c.categories[category]
	return ok
}
