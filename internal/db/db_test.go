package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docrag/internal/config"
	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
)

func TestDSN(t *testing.T) {
	require.Equal(t, "postgres://x", DSN(config.DatabaseConfig{DSN: "postgres://x"}))
	dsn := DSN(config.DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", DBName: "d"})
	require.Equal(t, "host=h port=5433 user=u password=p dbname=d sslmode=disable", dsn)
}

func TestRenderMigration(t *testing.T) {
	content, err := renderMigration("001_init.sql", Schema{Table: "docs", Dimension: 384})
	require.NoError(t, err)
	require.Contains(t, content, "CREATE TABLE IF NOT EXISTS docs (")
	require.Contains(t, content, "vector(384)")

	content, err = renderMigration("002_hnsw.sql", Schema{Table: "docs", Dimension: 3072})
	require.NoError(t, err)
	require.Equal(t, ";", strings.TrimSpace(content))
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func TestApplyMigrations(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS docs").WillReturnError(errors.New(`relation "docs" already exists`))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_docs_source").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS embedding_cache").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_embedding_cache_ctime").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("USING hnsw").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, ApplyMigrations(context.Background(), db, Schema{Table: "docs", Dimension: 384}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyDimension(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT a.atttypmod").WithArgs("docs").
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(384))
	require.NoError(t, VerifyDimension(context.Background(), db, Schema{Table: "Docs", Dimension: 384}))

	mock.ExpectQuery("SELECT a.atttypmod").WithArgs("docs").
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(768))
	err := VerifyDimension(context.Background(), db, Schema{Table: "docs", Dimension: 384})
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}
