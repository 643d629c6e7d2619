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

package main

import (
	"context"
	"flag"
	"fmt"
	"regexp"
	"strings"

	"escrow-ledger-go/internal/common"
	"escrow-ledger-go/internal/config"
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func validateType(memberType string) (models.MemberType, error) {
	switch t := models.MemberType(memberType); t {
	case models.MemberIndividual, models.MemberFirm:
		return t, nil
	default:
		return "", fmt.Errorf("type must be %q or %q", models.MemberIndividual, models.MemberFirm)
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "Member's full name (required)")
	emailFlag := flag.String("email", "", "Member's email address (required)")
	typeFlag := flag.String("type", string(models.MemberIndividual), "Member type: individual or firm")
	firmFlag := flag.String("firm", "", "Firm member id this professional belongs to (optional)")
	roleFlag := flag.String("role", "", "Role within the firm, as named in the role templates (optional)")
	taxFlag := flag.String("tax-category", "", "Tax category applied to this member's distributions (optional)")
	flag.Parse()

	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}
	memberType, err := validateType(*typeFlag)
	if err != nil {
		zap.L().Fatal("Invalid type", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}
	if *taxFlag != "" {
		if _, ok := cfg.Policy.TaxCategories[*taxFlag]; !ok {
			zap.L().Fatal("Unknown tax category", zap.String("tax_category", *taxFlag))
		}
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	if *firmFlag != "" {
		firm, err := dbService.GetMember(ctx, *firmFlag)
		if err != nil {
			zap.L().Fatal("Firm not found", zap.String("firm_id", *firmFlag), zap.Error(err))
		}
		if firm.Type != models.MemberFirm {
			zap.L().Fatal("Member is not a firm", zap.String("firm_id", *firmFlag))
		}
	}

	member, err := dbService.CreateMember(ctx, store.CreateMemberParams{
		Name:        *nameFlag,
		Email:       *emailFlag,
		Type:        memberType,
		FirmId:      *firmFlag,
		Role:        *roleFlag,
		TaxCategory: *taxFlag,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			zap.L().Fatal("Member already exists with this email", zap.String("email", *emailFlag))
		}
		zap.L().Fatal("Failed to create member", zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("MEMBER CREATED", common.DefaultWidth)
	fmt.Printf("ID:           %s\n", member.Id)
	fmt.Printf("Name:         %s\n", member.Name)
	fmt.Printf("Email:        %s\n", member.Email)
	fmt.Printf("Type:         %s\n", member.Type)
	if member.FirmId != "" {
		fmt.Printf("Firm:         %s (role %s)\n", member.FirmId, member.Role)
	}
	if member.TaxCategory != "" {
		fmt.Printf("Tax category: %s\n", member.TaxCategory)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("Member created successfully", zap.String("id", member.Id))
}
