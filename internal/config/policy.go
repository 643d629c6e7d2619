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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"escrow-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type taxCategoryFile struct {
	Kind      string `yaml:"kind"`
	Rate      string `yaml:"rate"`
	Inclusive bool   `yaml:"inclusive"`
}

type policyFile struct {
	DefaultCurrency     string                       `yaml:"default_currency"`
	CurrencyScales      map[string]int32             `yaml:"currency_scales"`
	Commission          map[string]string            `yaml:"commission"`
	TaxCategories       map[string]taxCategoryFile   `yaml:"tax_categories"`
	PayoutTaxCategories map[string]string            `yaml:"payout_tax_categories"`
	RoleTemplates       map[string]map[string]string `yaml:"role_templates"`
	PercentageTolerance string                       `yaml:"percentage_tolerance"`
	MinimumPayout       string                       `yaml:"minimum_payout"`
	Approvals           map[string][]string          `yaml:"approvals"`
}

// DefaultPolicy is used when no policy file exists
func DefaultPolicy() models.Policy {
	return models.Policy{
		DefaultCurrency: "INR",
		CurrencyScales:  map[string]int32{"INR": 2, "USD": 2, "USDC": 2},
		Commission: map[models.PayerType]decimal.Decimal{
			models.PayerIndividual: decimal.NewFromInt(10),
			models.PayerFirm:       decimal.NewFromInt(15),
		},
		TaxCategories: map[string]models.TaxCategory{
			"none":                  {Kind: "withholding", Rate: decimal.Zero},
			"professional_services": {Kind: "withholding", Rate: decimal.NewFromInt(10)},
			"gst":                   {Kind: "consumption", Rate: decimal.NewFromInt(18), Inclusive: true},
		},
		PayoutTaxCategories: map[models.MemberType]string{},
		RoleTemplates: map[string]map[string]decimal.Decimal{
			"standard_firm": {
				"admin":   decimal.NewFromInt(35),
				"senior":  decimal.NewFromInt(30),
				"junior":  decimal.NewFromInt(20),
				"support": decimal.NewFromInt(15),
			},
		},
		PercentageTolerance: decimal.RequireFromString("0.01"),
		MinimumPayout:       decimal.Zero,
	}
}

// LoadPolicy reads the YAML rate table. A missing file yields DefaultPolicy;
// keys present in the file replace the corresponding default table.
func LoadPolicy(policyFilePath string) (*models.Policy, error) {
	policy := DefaultPolicy()

	path := policyFilePath
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, policyFilePath)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &policy, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", policyFilePath, err)
	}

	if err := ParsePolicy(data, &policy); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", policyFilePath, err)
	}
	return &policy, nil
}

// ParsePolicy overlays YAML data onto policy
func ParsePolicy(data []byte, policy *models.Policy) error {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	if file.DefaultCurrency != "" {
		policy.DefaultCurrency = file.DefaultCurrency
	}
	if len(file.CurrencyScales) > 0 {
		for currency, scale := range file.CurrencyScales {
			if scale < 0 || scale > 8 {
				return fmt.Errorf("currency %s: scale %d out of range", currency, scale)
			}
		}
		policy.CurrencyScales = file.CurrencyScales
	}

	if len(file.Commission) > 0 {
		commission := make(map[models.PayerType]decimal.Decimal, len(file.Commission))
		for payerType, raw := range file.Commission {
			rate, err := parsePercentage(raw)
			if err != nil {
				return fmt.Errorf("commission %s: %w", payerType, err)
			}
			commission[models.PayerType(payerType)] = rate
		}
		policy.Commission = commission
	}

	if len(file.TaxCategories) > 0 {
		categories := make(map[string]models.TaxCategory, len(file.TaxCategories))
		for name, tc := range file.TaxCategories {
			rate, err := parsePercentage(tc.Rate)
			if err != nil {
				return fmt.Errorf("tax category %s: %w", name, err)
			}
			kind := tc.Kind
			if kind == "" {
				kind = "withholding"
			}
			categories[name] = models.TaxCategory{Kind: kind, Rate: rate, Inclusive: tc.Inclusive}
		}
		policy.TaxCategories = categories
	}

	if len(file.PayoutTaxCategories) > 0 {
		payoutCategories := make(map[models.MemberType]string, len(file.PayoutTaxCategories))
		for memberType, category := range file.PayoutTaxCategories {
			if _, ok := policy.TaxCategories[category]; !ok {
				return fmt.Errorf("payout tax category %s for %s is not defined", category, memberType)
			}
			payoutCategories[models.MemberType(memberType)] = category
		}
		policy.PayoutTaxCategories = payoutCategories
	}

	if len(file.RoleTemplates) > 0 {
		templates := make(map[string]map[string]decimal.Decimal, len(file.RoleTemplates))
		for name, roles := range file.RoleTemplates {
			template := make(map[string]decimal.Decimal, len(roles))
			for role, raw := range roles {
				pct, err := parsePercentage(raw)
				if err != nil {
					return fmt.Errorf("role template %s, role %s: %w", name, role, err)
				}
				template[role] = pct
			}
			templates[name] = template
		}
		policy.RoleTemplates = templates
	}

	if file.PercentageTolerance != "" {
		tolerance, err := decimal.NewFromString(file.PercentageTolerance)
		if err != nil || tolerance.IsNegative() {
			return fmt.Errorf("invalid percentage_tolerance %q", file.PercentageTolerance)
		}
		policy.PercentageTolerance = tolerance
	}

	if file.MinimumPayout != "" {
		minimum, err := decimal.NewFromString(file.MinimumPayout)
		if err != nil || minimum.IsNegative() {
			return fmt.Errorf("invalid minimum_payout %q", file.MinimumPayout)
		}
		policy.MinimumPayout = minimum
	}

	if len(file.Approvals) > 0 {
		policy.Approvals = file.Approvals
	}

	return nil
}

func parsePercentage(raw string) (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid percentage %q", raw)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("percentage %s out of range", raw)
	}
	return pct, nil
}
