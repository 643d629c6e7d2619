package main

import (
	"context"
	"fmt"

	"escrow-ledger-go/internal/common"
	"escrow-ledger-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Opening the database applies pending migrations and, with
	// CREATE_DUMMY_USERS=true, seeds the demo firm.
	logger.Info("Setting up SQLite database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	members, err := common.InitializeMembers(ctx, dbService, "", logger)
	if err != nil {
		logger.Fatal("Failed to list members", zap.Error(err))
	}

	common.PrintHeader("REGISTERED MEMBERS", common.WideWidth)
	for i, m := range members {
		fmt.Printf("%s %-36s %-24s %-10s firm=%s role=%s\n",
			common.BoxPrefix(i == len(members)-1), m.Id, m.Name, m.Type, common.ShortId(m.FirmId), m.Role)
	}
	common.PrintFooter(fmt.Sprintf("Setup complete: %d members, policy currency %s", len(members), cfg.Policy.DefaultCurrency), common.WideWidth)

	logger.Info("Initialization complete", zap.Int("members", len(members)))
}
