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
	"escrow-ledger-go/internal/escrow"
	"escrow-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const usage = `usage: escrow <command> [flags]

commands:
  create      register a PENDING payment (-amount, -source-ref, -payer-type)
  confirm     apply a gateway confirmation (-payment, -gateway-ref, -amount, -currency)
  refund      refund a HELD payment (-payment, -reason)
  dispute     open a dispute (-payment, -reason)
  resolve     resolve a dispute (-payment, -outcome, -percentage)
  status      show a payment and its plan (-payment)
  mismatches  list gateway confirmations awaiting review`

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
	amountFlag := fs.String("amount", "", "Amount in the payment currency")
	currencyFlag := fs.String("currency", "", "Currency code (defaults to the policy currency)")
	sourceRefFlag := fs.String("source-ref", "", "Service request this payment is for")
	payerTypeFlag := fs.String("payer-type", string(models.PayerIndividual), "Payer type: individual or firm")
	gatewayRefFlag := fs.String("gateway-ref", "", "Gateway confirmation reference")
	reasonFlag := fs.String("reason", "", "Reason recorded with a refund or dispute")
	outcomeFlag := fs.String("outcome", "", "Dispute outcome: FAVOR_PAYER, FAVOR_RECIPIENT, PARTIAL")
	percentageFlag := fs.String("percentage", "0", "Refund percentage for a PARTIAL outcome")
	limitFlag := fs.Int("limit", 50, "Maximum mismatches to list")
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

	parseAmount := func(raw string) decimal.Decimal {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			zap.L().Fatal("Invalid amount format", zap.String("amount", raw), zap.Error(err))
		}
		return amount
	}

	var result any
	switch command {
	case "create":
		result, err = services.Escrow.CreatePayment(ctx, actor, escrow.CreatePaymentParams{
			GrossAmount:      parseAmount(*amountFlag),
			Currency:         *currencyFlag,
			SourceRequestRef: *sourceRefFlag,
			PayerType:        models.PayerType(*payerTypeFlag),
		})

	case "confirm":
		currency := *currencyFlag
		if currency == "" {
			currency = cfg.Policy.DefaultCurrency
		}
		var payment *models.EscrowPayment
		var applied bool
		payment, applied, err = services.Escrow.Confirm(ctx, actor, models.GatewayConfirmation{
			GatewayRef:      *gatewayRefFlag,
			EscrowPaymentId: *paymentFlag,
			ConfirmedAmount: parseAmount(*amountFlag),
			Currency:        currency,
		})
		if err == nil && !applied {
			fmt.Println("Confirmation already applied - nothing to do")
		}
		result = payment

	case "refund":
		result, err = services.Escrow.Refund(ctx, actor, *paymentFlag, *reasonFlag)

	case "dispute":
		result, err = services.Escrow.OpenDispute(ctx, actor, *paymentFlag, *reasonFlag)

	case "resolve":
		var payment *models.EscrowPayment
		var reversals []models.LedgerTransaction
		payment, reversals, err = services.Escrow.ResolveDispute(ctx, actor, *paymentFlag, models.DisputeResolution{
			Outcome:          models.DisputeOutcome(*outcomeFlag),
			RefundPercentage: parseAmount(*percentageFlag),
		})
		result = map[string]any{"payment": payment, "reversals": reversals}

	case "status":
		result, err = services.Queries.GetEscrowStatus(ctx, *paymentFlag)

	case "mismatches":
		result, err = services.Queries.GetGatewayMismatches(ctx, *limitFlag)

	default:
		fmt.Println(usage)
		os.Exit(2)
	}

	if err != nil {
		zap.L().Fatal("Escrow command failed",
			zap.String("command", command),
			zap.String("actor", actor.String()),
			zap.Error(err))
	}

	common.PrintHeader("ESCROW "+command, common.DefaultWidth)
	common.PrintJSON(result)
	common.PrintSeparator("=", common.DefaultWidth)
}
