// Package testdb provides database fixtures for the store test suites.
package testdb

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// Schema is one migration set and its tracking table
type Schema struct {
	Table      string
	Migrations []postgres.Migration
}

// Open returns an in-memory SQLite database with schemas applied in order.
// The pool is pinned to one connection because every SQLite :memory:
// connection is its own database.
func Open(t *testing.T, schemas ...Schema) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	Apply(t, db, schemas...)
	return db
}

// Apply runs schemas against db
func Apply(t *testing.T, db *sql.DB, schemas ...Schema) {
	t.Helper()

	for _, schema := range schemas {
		if err := postgres.RunMigrations(context.Background(), db, schema.Table, schema.Migrations, nil); err != nil {
			t.Fatalf("Failed to migrate %s: %v", schema.Table, err)
		}
	}
}
