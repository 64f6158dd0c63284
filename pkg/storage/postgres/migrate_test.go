package postgres

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

var widgetMigrations = []Migration{
	{Version: 1, Description: "create widgets", SQL: `CREATE TABLE widgets (id TEXT PRIMARY KEY)`},
	{Version: 2, Description: "add widget name", SQL: `ALTER TABLE widgets ADD COLUMN name TEXT`},
}

func TestRunMigrations(t *testing.T) {
	db := openSQLite(t)
	logger, hook := test.NewNullLogger()
	ctx := context.Background()

	require.NoError(t, RunMigrations(ctx, db, "widget_migrations", widgetMigrations[:1], logger))
	require.NoError(t, RunMigrations(ctx, db, "widget_migrations", widgetMigrations, logger))
	// Re-running applies nothing.
	require.NoError(t, RunMigrations(ctx, db, "widget_migrations", widgetMigrations, nil))

	assert.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, 2, hook.LastEntry().Data["version"])

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM widget_migrations`).Scan(&count))
	assert.Equal(t, 2, count)

	_, err := db.Exec(`INSERT INTO widgets (id, name) VALUES ('w1', 'gear')`)
	assert.NoError(t, err)
}

func TestRunMigrations_FailureIsNotRecorded(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	broken := []Migration{
		widgetMigrations[0],
		{Version: 2, Description: "broken", SQL: `ALTER TABLE missing ADD COLUMN name TEXT`},
	}
	err := RunMigrations(ctx, db, "widget_migrations", broken, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")

	var versions []int
	rows, err := db.Query(`SELECT version FROM widget_migrations`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var v int
		require.NoError(t, rows.Scan(&v))
		versions = append(versions, v)
	}
	assert.Equal(t, []int{1}, versions)
}
