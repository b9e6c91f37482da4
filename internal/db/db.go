package db

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"text/template"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/xxxsen/docrag/internal/config"
	"github.com/xxxsen/docrag/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Schema names the vector table and its embedding width. Both are rendered
// into the migrations.
type Schema struct {
	Table     string
	Dimension int
}

func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, &appErr.StoreConnectionError{Op: "open", Err: err}
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &appErr.StoreConnectionError{Op: "connect", Err: err}
	}
	return db, nil
}

func DSN(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)
}

func ApplyMigrations(ctx context.Context, db *sqlx.DB, schema Schema) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := renderMigration(file, schema)
		if err != nil {
			return err
		}
		queries := strings.Split(content, ";")
		for _, q := range queries {
			q = strings.TrimSpace(q)
			if q == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, q); err != nil {
				if dbutil.IsAlreadyExists(err) {
					continue
				}
				return fmt.Errorf("execute query in %s: %w", file, err)
			}
		}
	}
	return nil
}

func renderMigration(file string, schema Schema) (string, error) {
	raw, err := fs.ReadFile(migrationsFS, "migrations/"+file)
	if err != nil {
		return "", err
	}
	tpl, err := template.New(file).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse migration %s: %w", file, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, schema); err != nil {
		return "", fmt.Errorf("render migration %s: %w", file, err)
	}
	return buf.String(), nil
}

// VerifyDimension checks that an existing table was created with the
// configured embedding width.
func VerifyDimension(ctx context.Context, db *sqlx.DB, schema Schema) error {
	const query = `
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON a.attrelid = c.oid
		WHERE c.relname = $1 AND a.attname = 'embedding' AND NOT a.attisdropped
	`
	var typmod int
	if err := db.GetContext(ctx, &typmod, query, strings.ToLower(schema.Table)); err != nil {
		return &appErr.StoreConnectionError{Op: "verify schema", Err: err}
	}
	if typmod > 0 && typmod != schema.Dimension {
		return fmt.Errorf("%w: table %s stores %d dimensions, embedder produces %d",
			appErr.ErrDimensionMismatch, schema.Table, typmod, schema.Dimension)
	}
	return nil
}
