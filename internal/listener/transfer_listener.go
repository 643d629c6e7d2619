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

package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/prime"

	"go.uber.org/zap"
)

// TransferSource reports the withdrawals made from the payout wallet
type TransferSource interface {
	ListWithdrawals(ctx context.Context, since time.Time) ([]prime.Transfer, error)
}

// PayoutSink receives the terminal outcome of a payout's transfer
type PayoutSink interface {
	Complete(ctx context.Context, actor policy.Actor, payoutId, externalRef string) (*models.PayoutRequest, error)
	Fail(ctx context.Context, actor policy.Actor, payoutId, reason string) (*models.PayoutRequest, error)
}

// TransferListenerConfig contains configuration for TransferListener
type TransferListenerConfig struct {
	Source          TransferSource
	Payouts         PayoutSink
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// TransferListener polls the payout wallet and completes or fails payouts
// once their withdrawal reaches a terminal status
type TransferListener struct {
	source  TransferSource
	payouts PayoutSink

	// State management for processed transfers
	processedTxIds  map[string]time.Time
	stranded        map[string]time.Time // payout id -> first refused completion
	mutex           sync.RWMutex
	lookbackWindow  time.Duration
	pollingInterval time.Duration
	cleanupInterval time.Duration

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewTransferListener(cfg TransferListenerConfig) *TransferListener {
	return &TransferListener{
		source:          cfg.Source,
		payouts:         cfg.Payouts,
		processedTxIds:  make(map[string]time.Time),
		stranded:        make(map[string]time.Time),
		lookbackWindow:  cfg.LookbackWindow,
		pollingInterval: cfg.PollingInterval,
		cleanupInterval: cfg.CleanupInterval,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start runs a recovery poll over the lookback window, then polls in the background
func (d *TransferListener) Start(ctx context.Context) error {
	zap.L().Info("Starting transfer listener")

	if err := d.poll(ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	go d.pollLoop(ctx)
	go d.cleanupLoop(ctx)

	zap.L().Info("Transfer listener started successfully",
		zap.Duration("polling_interval", d.pollingInterval),
		zap.Duration("lookback_window", d.lookbackWindow))
	return nil
}

// Stop gracefully stops the listener
func (d *TransferListener) Stop() {
	zap.L().Info("Stopping transfer listener")
	close(d.stopChan)
	<-d.doneChan
	zap.L().Info("Transfer listener stopped")
}

func (d *TransferListener) pollLoop(ctx context.Context) {
	defer close(d.doneChan)

	ticker := time.NewTicker(d.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := d.poll(ctx); err != nil {
				zap.L().Error("Failed to poll payout wallet", zap.Error(err))
			}
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// poll fetches recent withdrawals and settles the ones not yet seen
func (d *TransferListener) poll(ctx context.Context) error {
	since := time.Now().UTC().Add(-d.lookbackWindow)

	transfers, err := d.source.ListWithdrawals(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to fetch withdrawals: %w", err)
	}

	for _, tx := range transfers {
		if d.isTransactionProcessed(tx.Id) {
			continue
		}
		if err := d.processWithdrawal(ctx, tx); err != nil {
			zap.L().Error("Failed to process withdrawal",
				zap.String("transaction_id", tx.Id),
				zap.String("idempotency_key", tx.IdempotencyKey),
				zap.Error(err))
		}
	}
	return nil
}

func (d *TransferListener) isTransactionProcessed(txId string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	_, exists := d.processedTxIds[txId]
	return exists
}

func (d *TransferListener) markTransactionProcessed(txId string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.processedTxIds[txId] = time.Now()
}

// markStranded records a payout whose completion was refused and reports
// whether this is the first refusal
func (d *TransferListener) markStranded(payoutId string) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, exists := d.stranded[payoutId]; exists {
		return false
	}
	d.stranded[payoutId] = time.Now()
	return true
}

// clearStranded forgets a payout and returns when it was first stranded
func (d *TransferListener) clearStranded(payoutId string) (time.Time, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	since, exists := d.stranded[payoutId]
	delete(d.stranded, payoutId)
	return since, exists
}

func (d *TransferListener) isStranded(payoutId string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	_, exists := d.stranded[payoutId]
	return exists
}

func (d *TransferListener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.cleanupProcessedTransactions()
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupProcessedTransactions forgets transfers older than the lookback
// window; they can no longer be returned by a poll
func (d *TransferListener) cleanupProcessedTransactions() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	cutoff := time.Now().Add(-d.lookbackWindow)
	cleaned := 0

	for txId, processedTime := range d.processedTxIds {
		if processedTime.Before(cutoff) {
			delete(d.processedTxIds, txId)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up old processed transfers",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(d.processedTxIds)))
	}
}
