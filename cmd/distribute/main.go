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
	"os"
	"strings"

	"escrow-ledger-go/internal/common"
	"escrow-ledger-go/internal/config"
	"escrow-ledger-go/internal/distribution"
	"escrow-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const usage = `usage: distribute <command> [flags]

commands:
  plan     attach a DRAFT plan to a payment
             -payment -type SINGLE_RECIPIENT|CUSTOM -recipients id:pct[:bonus[:tax]],...
             -payment -type ROLE_BASED -firm -template [-bonuses id:amount,...]
  approve  approve a CUSTOM share (-plan, -share, -signature)
  preview  show the computed allocation of a plan (-plan)
  execute  distribute a HELD payment per its plan (-plan)`

// parseRecipients reads "id:pct[:bonus[:tax]]" entries separated by commas
func parseRecipients(raw string) ([]distribution.RecipientInput, error) {
	var recipients []distribution.RecipientInput
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 4 {
			return nil, fmt.Errorf("invalid recipient %q, expected id:pct[:bonus[:tax]]", entry)
		}
		pct, err := decimal.NewFromString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid percentage in %q: %w", entry, err)
		}
		r := distribution.RecipientInput{RecipientId: parts[0], Percentage: pct}
		if len(parts) > 2 && parts[2] != "" {
			if r.Bonus, err = decimal.NewFromString(parts[2]); err != nil {
				return nil, fmt.Errorf("invalid bonus in %q: %w", entry, err)
			}
		}
		if len(parts) > 3 {
			r.TaxCategory = parts[3]
		}
		recipients = append(recipients, r)
	}
	return recipients, nil
}

// parseBonuses reads "id:amount" entries separated by commas
func parseBonuses(raw string) (map[string]decimal.Decimal, error) {
	bonuses := make(map[string]decimal.Decimal)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, amount, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("invalid bonus %q, expected id:amount", entry)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid bonus amount in %q: %w", entry, err)
		}
		bonuses[id] = d
	}
	return bonuses, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	actorFlag := fs.String("actor", "admin", "Id of the acting user")
	roleFlag := fs.String("role", "ADMIN", "Role of the acting user: ADMIN, FIRM_ADMIN, MEMBER, SYSTEM")
	paymentFlag := fs.String("payment", "", "Escrow payment id")
	planFlag := fs.String("plan", "", "Distribution plan id")
	typeFlag := fs.String("type", string(models.PlanSingleRecipient), "Plan type: SINGLE_RECIPIENT, ROLE_BASED, CUSTOM")
	recipientsFlag := fs.String("recipients", "", "Recipients as id:pct[:bonus[:tax]],...")
	firmFlag := fs.String("firm", "", "Firm id for ROLE_BASED plans")
	templateFlag := fs.String("template", "", "Role template for ROLE_BASED plans")
	bonusesFlag := fs.String("bonuses", "", "Bonuses for ROLE_BASED plans as id:amount,...")
	primaryFlag := fs.String("primary", "", "Recipient that absorbs the rounding remainder")
	shareFlag := fs.String("share", "", "Share id to approve")
	signatureFlag := fs.String("signature", "", "Approver signature recorded with the share")
	if err := fs.Parse(os.Args[2:]); err != nil {
		zap.L().Fatal("Failed to parse flags", zap.Error(err))
	}

	actor, err := common.ParseActor(*actorFlag, *roleFlag)
	if err != nil {
		zap.L().Fatal("Invalid actor", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var result any
	switch command {
	case "plan":
		input := distribution.PolicyInput{
			Type:               models.PlanType(strings.ToUpper(*typeFlag)),
			FirmId:             *firmFlag,
			Template:           *templateFlag,
			PrimaryRecipientId: *primaryFlag,
		}
		if input.Recipients, err = parseRecipients(*recipientsFlag); err != nil {
			zap.L().Fatal("Invalid recipients", zap.Error(err))
		}
		if input.Bonuses, err = parseBonuses(*bonusesFlag); err != nil {
			zap.L().Fatal("Invalid bonuses", zap.Error(err))
		}
		result, err = services.Distribution.BuildPlan(ctx, actor, *paymentFlag, input)

	case "approve":
		result, err = services.Distribution.ApproveShare(ctx, actor, *planFlag, *shareFlag, *signatureFlag)

	case "preview":
		result, err = services.Distribution.Preview(ctx, *planFlag)

	case "execute":
		result, err = services.Distribution.Execute(ctx, actor, *planFlag)

	default:
		fmt.Println(usage)
		os.Exit(2)
	}

	if err != nil {
		zap.L().Fatal("Distribution command failed",
			zap.String("command", command),
			zap.String("actor", actor.String()),
			zap.Error(err))
	}

	common.PrintHeader("DISTRIBUTION "+command, common.DefaultWidth)
	common.PrintJSON(result)
	common.PrintSeparator("=", common.DefaultWidth)
}
