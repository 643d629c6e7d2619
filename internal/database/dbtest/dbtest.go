// Package dbtest opens throwaway SQLite stores for tests in other packages.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"escrow-ledger-go/internal/database"
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

// New opens a migrated store in a temp directory and returns it with its file path
func New(t testing.TB) (*database.Service, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	cfg := models.DatabaseConfig{
		Path:            path,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     5 * time.Second,
		BusyTimeout:     30 * time.Second,
	}
	service, err := database.NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(service.Close)
	return service, path
}

// Exec runs a raw statement against the file, bypassing the store
func Exec(t testing.TB, path, query string, args ...any) {
	t.Helper()

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=30000")
	if err != nil {
		t.Fatalf("Failed to open raw connection: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("Raw exec failed: %v", err)
	}
}

// Member registers an active member and returns its id
func Member(t testing.TB, s store.Store, params store.CreateMemberParams) string {
	t.Helper()

	if params.Email == "" {
		params.Email = params.Name + "@example.com"
	}
	if params.Type == "" {
		params.Type = models.MemberIndividual
	}
	member, err := s.CreateMember(context.Background(), params)
	if err != nil {
		t.Fatalf("Failed to create member %s: %v", params.Name, err)
	}
	return member.Id
}

// Fund credits an owner directly, for tests that need a starting balance
func Fund(t testing.TB, s store.Store, ownerId, amount string) {
	t.Helper()

	err := s.Atomically(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Append(ctx, store.AppendParams{
			OwnerId:   ownerId,
			Type:      models.TxCreditDistribution,
			Amount:    decimal.RequireFromString(amount),
			Currency:  "INR",
			SourceRef: "test-funding",
		})
		return err
	})
	if err != nil {
		t.Fatalf("Failed to fund %s: %v", ownerId, err)
	}
}
