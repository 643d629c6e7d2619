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
	"errors"
	"flag"
	"fmt"

	"escrow-ledger-go/internal/common"
	"escrow-ledger-go/internal/config"
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalOwners    int
	ownersWithFund int
	drifted        int
	frozen         int
}

type owner struct {
	id    string
	name  string
	email string
}

func printWallet(wallet *models.WalletBalance, mirrored string) {
	frozen := ""
	if wallet.Frozen {
		frozen = "  [FROZEN]"
	}
	fmt.Printf("%s balance:   %20s (v%d, last_tx: %s, updated: %s)%s\n",
		common.BoxPrefix(false),
		wallet.Balance.String(),
		wallet.Version,
		common.ShortId(wallet.LastTransactionId),
		wallet.UpdatedAt.Format("2006-01-02 15:04:05"),
		frozen)
	fmt.Printf("%s pending:   %20s  available: %s\n", common.BoxPrefix(false), wallet.PendingPayout.String(), wallet.Available().String())
	fmt.Printf("%s earned:    %20s  withdrawn: %s\n", common.BoxPrefix(mirrored == ""), wallet.LifetimeEarned.String(), wallet.LifetimeWithdrawn.String())
	if mirrored != "" {
		fmt.Printf("%s mirrored:  %20s\n", common.BoxPrefix(true), mirrored)
	}
}

func printOwnerHeader(o owner) {
	fmt.Printf("\n┌─ Owner: %s (%s)\n", o.name, o.email)
	fmt.Printf("│  ID: %s\n", o.id)
	common.PrintBoxSeparator(78)
}

func processOwner(ctx context.Context, o owner, services *common.Services, reconcile bool, stats *balanceStats) error {
	wallet, err := services.Ledger.Balance(ctx, o.id)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}

	if reconcile {
		err := services.Ledger.Reconcile(ctx, o.id)
		var drift *store.LedgerDriftError
		switch {
		case errors.As(err, &drift):
			stats.drifted++
			wallet.Frozen = true
			fmt.Printf("│  DRIFT: maintained=%s calculated=%s\n", drift.Maintained.String(), drift.Calculated.String())
		case err != nil:
			return fmt.Errorf("failed to reconcile: %w", err)
		}
	}

	if wallet.Balance.IsZero() && wallet.LastTransactionId == "" {
		return nil
	}
	stats.ownersWithFund++
	if wallet.Frozen {
		stats.frozen++
	}

	mirrored := ""
	if services.Mirror != nil {
		balance, err := services.Mirror.WalletBalance(ctx, o.id, services.Policy.DefaultCurrency)
		if err != nil {
			zap.L().Warn("Failed to read mirrored balance", zap.String("owner_id", o.id), zap.Error(err))
		} else {
			mirrored = balance.String()
		}
	}

	printOwnerHeader(o)
	printWallet(wallet, mirrored)
	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific member email (optional)")
	reconcileFlag := flag.Bool("reconcile", false, "Recompute each balance from the transaction log and freeze drifted wallets")
	unfreezeFlag := flag.String("unfreeze", "", "Owner id to rebuild and unfreeze (operator action)")
	actorFlag := flag.String("actor", "admin", "Id of the acting operator for -unfreeze")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *unfreezeFlag != "" {
		actor, err := common.ParseActor(*actorFlag, "ADMIN")
		if err != nil {
			logger.Fatal("Invalid actor", zap.Error(err))
		}
		wallet, err := services.Ledger.Unfreeze(ctx, actor, *unfreezeFlag)
		if err != nil {
			logger.Fatal("Failed to unfreeze wallet", zap.Error(err))
		}
		common.PrintHeader("WALLET UNFROZEN", common.DefaultWidth)
		printWallet(wallet, "")
		common.PrintSeparator("=", common.DefaultWidth)
		return
	}

	members, err := common.InitializeMembers(ctx, services.DbService, *emailFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize members", zap.Error(err))
	}

	owners := make([]owner, 0, len(members)+1)
	for _, m := range members {
		owners = append(owners, owner{id: m.Id, name: m.Name, email: m.Email})
	}
	if *emailFlag == "" {
		owners = append(owners, owner{id: models.PlatformCommissionAccount, name: "Platform commission", email: "-"})
	}

	common.PrintHeader("WALLET BALANCE REPORT", common.DefaultWidth)

	stats := balanceStats{}
	for _, o := range owners {
		stats.totalOwners++
		if err := processOwner(ctx, o, services, *reconcileFlag, &stats); err != nil {
			logger.Error("Failed to process owner",
				zap.String("owner_id", o.id),
				zap.String("owner_name", o.name),
				zap.Error(err))
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d wallets with activity (%d owners queried, %d frozen, %d drifted this run)",
		stats.ownersWithFund, stats.totalOwners, stats.frozen, stats.drifted)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("owners_queried", stats.totalOwners),
		zap.Int("owners_with_activity", stats.ownersWithFund),
		zap.Int("drifted", stats.drifted))
}
