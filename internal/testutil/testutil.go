// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiroo/kiroo-sync-server/internal/db"
)

var dbSeq atomic.Int64

// SetupTestDB creates an in-memory SQLite DB with the schema applied.
// Each call gets its own database so tests stay independent.
func SetupTestDB(t *testing.T) *db.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1))
	database, err := db.New(dsn)
	if err != nil {
		t.Fatalf("Failed to init in-memory db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	return database
}

// SeedUser inserts a user row and returns its id.
func SeedUser(t *testing.T, database *db.DB, email string) int64 {
	t.Helper()

	id, err := database.CreateUser(context.Background(), email, "x", time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("Failed to seed user %s: %v", email, err)
	}
	return id
}
