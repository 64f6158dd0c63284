package identity

import "github.com/platinummonkey/warden/pkg/storage/postgres"

// MigrationsTable tracks applied identity schema versions
const MigrationsTable = "identity_schema_migrations"

// Migrations returns the credential store schema
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create user accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_accounts (
					id TEXT PRIMARY KEY,
					tenant_id TEXT,
					username TEXT NOT NULL UNIQUE,
					email TEXT NOT NULL UNIQUE,
					full_name TEXT NOT NULL DEFAULT '',
					password_hash TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'inactive',
					email_verified BOOLEAN NOT NULL DEFAULT FALSE,
					last_login_at TIMESTAMP,
					password_reset_token TEXT,
					password_reset_expires_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					deleted_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_user_accounts_tenant ON user_accounts(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_user_accounts_reset_token ON user_accounts(password_reset_token);
			`,
		},
	}
}
