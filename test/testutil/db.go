package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/docrag/internal/config"
	"github.com/xxxsen/docrag/internal/db"
)

const TestDimension = 8

// OpenTestDB connects to the postgres named by TEST_DB_HOST and creates a
// fresh vector table for the test. The test is skipped without TEST_DB_HOST.
func OpenTestDB(t *testing.T) (*sqlx.DB, db.Schema, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	port := 5432
	if v := os.Getenv("TEST_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	cfg := config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     envOr("TEST_DB_USER", "docrag"),
		Password: envOr("TEST_DB_PASSWORD", "docrag_pass"),
		DBName:   envOr("TEST_DB_NAME", "docrag_test"),
		SSLMode:  "disable",
		MaxConns: 2,
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	schema := db.Schema{
		Table:     fmt.Sprintf("documents_test_%d", time.Now().UnixNano()),
		Dimension: TestDimension,
	}
	if err := db.ApplyMigrations(ctx, conn, schema); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, schema, func() {
		_, _ = conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+schema.Table)
		_ = conn.Close()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
