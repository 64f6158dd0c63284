package tenants

import "github.com/platinummonkey/warden/pkg/storage/postgres"

// MigrationsTable tracks applied directory schema versions
const MigrationsTable = "tenants_schema_migrations"

// Migrations returns the tenant directory schema
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create tenants and business info",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					slug TEXT NOT NULL UNIQUE,
					document TEXT NOT NULL UNIQUE,
					status TEXT NOT NULL DEFAULT 'pending',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					deleted_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_tenants_status_created ON tenants(status, created_at);

				CREATE TABLE IF NOT EXISTS business_info (
					tenant_id TEXT PRIMARY KEY REFERENCES tenants(id),
					legal_name TEXT NOT NULL,
					trade_name TEXT NOT NULL DEFAULT '',
					phone TEXT NOT NULL DEFAULT '',
					address_line TEXT NOT NULL DEFAULT '',
					city TEXT NOT NULL DEFAULT '',
					state TEXT NOT NULL DEFAULT '',
					postal_code TEXT NOT NULL DEFAULT '',
					country TEXT NOT NULL DEFAULT ''
				);
			`,
		},
		{
			Version:     2,
			Description: "Create plans and subscriptions",
			SQL: `
				CREATE TABLE IF NOT EXISTS plans (
					id TEXT PRIMARY KEY,
					code TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL
				);

				CREATE TABLE IF NOT EXISTS subscriptions (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id),
					plan_id TEXT NOT NULL REFERENCES plans(id),
					status TEXT NOT NULL,
					current_period_end TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_subscriptions_tenant ON subscriptions(tenant_id);
			`,
		},
	}
}
