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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.Store.
var _ store.Store = (*Service)(nil)

type Service struct {
	db     *sql.DB
	mirror store.LedgerMirror
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}
	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	// _txlock=immediate takes the write lock at BEGIN so every atomic unit is serialized
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_foreign_keys=on&_txlock=immediate&_busy_timeout=%d",
		cfg.Path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	service := &Service{db: db}
	if cfg.CreateDummyUsers {
		service.seedDemoMembers(ctx)
	} else {
		zap.L().Info("Skipping demo member creation (CREATE_DUMMY_USERS=false)")
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// SetMirror registers a downstream receiver for committed ledger transactions
func (s *Service) SetMirror(mirror store.LedgerMirror) {
	s.mirror = mirror
}

// Atomically runs fn inside one immediate SQLite transaction. Ledger
// transactions appended by fn are handed to the mirror after commit;
// mirror failures are logged and never undo the commit.
func (s *Service) Atomically(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := sqlTx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Warn("Failed to roll back transaction", zap.Error(err))
		}
	}()

	t := &txn{tx: sqlTx}
	if err := fn(ctx, t); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.mirror != nil && len(t.appended) > 0 {
		if err := s.mirror.MirrorTransactions(ctx, t.appended); err != nil {
			zap.L().Warn("Failed to mirror ledger transactions",
				zap.Int("count", len(t.appended)),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Service) seedDemoMembers(ctx context.Context) {
	firmId := uuid.New().String()
	members := []store.CreateMemberParams{
		{Id: firmId, Name: "Acme Legal LLP", Email: "accounts@acme-legal.example.com", Type: models.MemberFirm},
		{Name: "Alice Johnson", Email: "alice.johnson@example.com", Type: models.MemberIndividual, FirmId: firmId, Role: "admin"},
		{Name: "Bob Smith", Email: "bob.smith@example.com", Type: models.MemberIndividual, FirmId: firmId, Role: "senior"},
		{Name: "Carol Williams", Email: "carol.williams@example.com", Type: models.MemberIndividual, FirmId: firmId, Role: "junior"},
		{Name: "Dan Brown", Email: "dan.brown@example.com", Type: models.MemberIndividual, FirmId: firmId, Role: "support"},
		{Name: "Erin Davis", Email: "erin.davis@example.com", Type: models.MemberIndividual},
	}

	for _, m := range members {
		member, err := s.CreateMember(ctx, m)
		if err != nil {
			zap.L().Error("Failed to insert demo member", zap.String("name", m.Name), zap.Error(err))
			continue
		}
		zap.L().Info("Demo member created", zap.String("id", member.Id), zap.String("name", member.Name))
	}
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func requireOneRow(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s update failed - %w", what, store.ErrConcurrentModification)
	}
	return nil
}
