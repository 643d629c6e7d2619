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
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"escrow-ledger-go/internal/common"
	"escrow-ledger-go/internal/config"
	"escrow-ledger-go/internal/httpapi"
	"escrow-ledger-go/internal/listener"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting escrow ledger server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var transfers *listener.TransferListener
	if services.PayoutWallet != nil {
		transfers = listener.NewTransferListener(listener.TransferListenerConfig{
			Source:          services.PayoutWallet,
			Payouts:         services.Payouts,
			LookbackWindow:  cfg.Listener.LookbackWindow,
			PollingInterval: cfg.Listener.PollingInterval,
			CleanupInterval: cfg.Listener.CleanupInterval,
		})
		if err := transfers.Start(ctx); err != nil {
			zap.L().Fatal("Failed to start transfer listener", zap.Error(err))
		}
	} else {
		zap.L().Info("Transfer listener disabled - payouts complete through the HTTP callback")
	}

	handler := httpapi.NewHandler(services.Queries, services.Escrow, services.Payouts)
	server := httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewRouter(handler), cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)

	serverErr := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping...")
	case err := <-serverErr:
		zap.L().Error("HTTP server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Forced HTTP shutdown after timeout", zap.Error(err))
	}

	if transfers != nil {
		done := make(chan struct{})
		go func() {
			transfers.Stop()
			close(done)
		}()

		select {
		case <-done:
			zap.L().Info("Transfer listener stopped gracefully")
		case <-shutdownCtx.Done():
			zap.L().Warn("Forced listener shutdown after timeout")
		}
	}
}
