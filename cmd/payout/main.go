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

	"escrow-ledger-go/internal/common"
	"escrow-ledger-go/internal/config"
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/payout"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const usage = `usage: payout <command> [flags]

commands:
  request   request a payout (-owner, -amount, -destination, -tax-category)
  approve   approve a REQUESTED payout (-id)
  reject    reject a REQUESTED payout (-id, -reason)
  process   hand an APPROVED payout to the transfer rail (-id)
  complete  record a completed transfer (-id, -ref)
  fail      record a failed transfer (-id, -reason)
  status    show one payout (-id)
  list      list payouts (-owner, -status)`

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
	idFlag := fs.String("id", "", "Payout request id")
	ownerFlag := fs.String("owner", "", "Wallet owner id")
	amountFlag := fs.String("amount", "", "Gross amount to withdraw")
	destinationFlag := fs.String("destination", "", "Destination address or account")
	taxFlag := fs.String("tax-category", "", "Withholding category (defaults by member type)")
	reasonFlag := fs.String("reason", "", "Reason for a rejection or failure")
	refFlag := fs.String("ref", "", "External transfer reference")
	statusFlag := fs.String("status", "", "Filter list by status")
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
	case "request":
		amount, err := decimal.NewFromString(*amountFlag)
		if err != nil {
			zap.L().Fatal("Invalid amount format", zap.String("amount", *amountFlag), zap.Error(err))
		}
		result, err = services.Payouts.Request(ctx, actor, payout.RequestParams{
			OwnerId:     *ownerFlag,
			Amount:      amount,
			Destination: *destinationFlag,
			TaxCategory: *taxFlag,
		})
		if err != nil {
			zap.L().Fatal("Payout request failed", zap.Error(err))
		}

	case "approve":
		result, err = services.Payouts.Approve(ctx, actor, *idFlag)

	case "reject":
		result, err = services.Payouts.Reject(ctx, actor, *idFlag, *reasonFlag)

	case "process":
		result, err = services.Payouts.Process(ctx, actor, *idFlag)

	case "complete":
		result, err = services.Payouts.Complete(ctx, actor, *idFlag, *refFlag)

	case "fail":
		result, err = services.Payouts.Fail(ctx, actor, *idFlag, *reasonFlag)

	case "status":
		result, err = services.Queries.GetPayoutStatus(ctx, *idFlag)

	case "list":
		var statuses []models.PayoutStatus
		if *statusFlag != "" {
			statuses = append(statuses, models.PayoutStatus(*statusFlag))
		}
		result, err = services.Queries.ListPayouts(ctx, *ownerFlag, statuses...)

	default:
		fmt.Println(usage)
		os.Exit(2)
	}

	if err != nil {
		zap.L().Fatal("Payout command failed",
			zap.String("command", command),
			zap.String("actor", actor.String()),
			zap.Error(err))
	}

	common.PrintHeader("PAYOUT "+command, common.DefaultWidth)
	common.PrintJSON(result)
	common.PrintSeparator("=", common.DefaultWidth)
}
