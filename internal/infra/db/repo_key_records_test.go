//go:build integration
// +build integration

package db

import (
	"context"
	"os"
	"strings"
	"testing"

	"keygate/internal/domain"
	"keygate/internal/infra/storetest"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestKeyRecordRepository_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.KeyStore {
		db := setupTestDB(t)
		resetDB(t, db)
		return NewKeyRecordRepository(db)
	})
}

func TestKeyRecordRepository_FingerprintStoredAsJSON(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewKeyRecordRepository(db)
	defer repo.Close()

	if err := repo.Upsert(context.Background(), storetest.Record("client-1", "u1", "pem")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	var lang string
	if err := db.Raw(`SELECT fingerprint->>'lang' FROM public_keys WHERE client_id = ?`, "client-1").Scan(&lang).Error; err != nil {
		t.Fatalf("query fingerprint: %v", err)
	}
	if lang != "en-US" {
		t.Fatalf("expected jsonb lang en-US, got %q", lang)
	}
}

func TestKeyRecordRepository_NilDB(t *testing.T) {
	repo := NewKeyRecordRepository(nil)
	if _, err := repo.ListAll(context.Background()); !domain.IsStorageError(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := &Store{DB: db}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func resetDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`TRUNCATE public_keys`).Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
