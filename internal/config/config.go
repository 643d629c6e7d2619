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
	"fmt"
	"os"
	"strconv"
	"time"

	"escrow-ledger-go/internal/models"
)

func Load() (*models.Config, error) {
	durations := map[string]time.Duration{
		"LISTENER_LOOKBACK_WINDOW":  6 * time.Hour,
		"LISTENER_POLLING_INTERVAL": 30 * time.Second,
		"LISTENER_CLEANUP_INTERVAL": 15 * time.Minute,
		"DB_CONN_MAX_LIFETIME":      5 * time.Minute,
		"DB_CONN_MAX_IDLE_TIME":     30 * time.Second,
		"DB_PING_TIMEOUT":           5 * time.Second,
		"DB_BUSY_TIMEOUT":           5 * time.Second,
		"HTTP_READ_TIMEOUT":         15 * time.Second,
		"HTTP_WRITE_TIMEOUT":        15 * time.Second,
		"HTTP_SHUTDOWN_TIMEOUT":     10 * time.Second,
	}
	for key, defaultValue := range durations {
		d, err := getEnvDuration(key, defaultValue)
		if err != nil {
			return nil, err
		}
		durations[key] = d
	}

	policy, err := LoadPolicy(getEnvString("POLICY_FILE", "policy.yaml"))
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:             getEnvString("DATABASE_PATH", "escrow.db"),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  durations["DB_CONN_MAX_LIFETIME"],
			ConnMaxIdleTime:  durations["DB_CONN_MAX_IDLE_TIME"],
			PingTimeout:      durations["DB_PING_TIMEOUT"],
			BusyTimeout:      durations["DB_BUSY_TIMEOUT"],
			CreateDummyUsers: getEnvBool("CREATE_DUMMY_USERS", false),
		},
		Listener: models.ListenerConfig{
			LookbackWindow:  durations["LISTENER_LOOKBACK_WINDOW"],
			PollingInterval: durations["LISTENER_POLLING_INTERVAL"],
			CleanupInterval: durations["LISTENER_CLEANUP_INTERVAL"],
		},
		HTTP: models.HTTPConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			ReadTimeout:     durations["HTTP_READ_TIMEOUT"],
			WriteTimeout:    durations["HTTP_WRITE_TIMEOUT"],
			ShutdownTimeout: durations["HTTP_SHUTDOWN_TIMEOUT"],
		},
		Prime: models.PrimeConfig{
			AccessKey:     os.Getenv("PRIME_ACCESS_KEY"),
			Passphrase:    os.Getenv("PRIME_PASSPHRASE"),
			SigningKey:    os.Getenv("PRIME_SIGNING_KEY"),
			PortfolioName: getEnvString("PRIME_PORTFOLIO_NAME", ""),
			PayoutSymbol:  getEnvString("PRIME_PAYOUT_SYMBOL", "USDC"),
		},
		Formance: models.FormanceConfig{
			StackURL:     os.Getenv("FORMANCE_STACK_URL"),
			ClientID:     os.Getenv("FORMANCE_CLIENT_ID"),
			ClientSecret: os.Getenv("FORMANCE_CLIENT_SECRET"),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "escrow"),
		},
		Policy: *policy,
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
