package rbac

import "github.com/platinummonkey/warden/pkg/storage/postgres"

// MigrationsTable tracks applied RBAC schema versions
const MigrationsTable = "rbac_schema_migrations"

// Well-known group type ids seeded by the schema
const (
	SystemGroupTypeID = "6f1c2a8e-0b7d-4c51-9a3e-5d2f1b7c9e01"
	TenantGroupTypeID = "6f1c2a8e-0b7d-4c51-9a3e-5d2f1b7c9e02"
)

// Migrations returns the RBAC graph schema. It references user_accounts and
// must run after the identity migrations on the same database.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create RBAC catalog tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS group_types (
					id TEXT PRIMARY KEY,
					code TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS access_groups (
					id TEXT PRIMARY KEY,
					tenant_id TEXT,
					group_type_id TEXT NOT NULL REFERENCES group_types(id),
					name TEXT NOT NULL,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					deleted_at TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS roles (
					id TEXT PRIMARY KEY,
					tenant_id TEXT,
					code TEXT NOT NULL,
					name TEXT NOT NULL,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					deleted_at TIMESTAMP,
					UNIQUE(tenant_id, code)
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_platform_code ON roles(code) WHERE tenant_id IS NULL;

				CREATE TABLE IF NOT EXISTS modules (
					id TEXT PRIMARY KEY,
					code TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);

				CREATE TABLE IF NOT EXISTS permissions (
					id TEXT PRIMARY KEY,
					tenant_id TEXT,
					module_id TEXT NOT NULL REFERENCES modules(id),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					deleted_at TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS operations (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					value BIGINT NOT NULL UNIQUE,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					deleted_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_access_groups_tenant ON access_groups(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_roles_tenant ON roles(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_permissions_tenant ON permissions(tenant_id);
			`,
		},
		{
			Version:     2,
			Description: "Create RBAC link tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS account_access_groups (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES user_accounts(id),
					access_group_id TEXT NOT NULL REFERENCES access_groups(id),
					granted_by TEXT,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					expires_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE(user_id, access_group_id)
				);

				CREATE TABLE IF NOT EXISTS role_access_groups (
					id TEXT PRIMARY KEY,
					access_group_id TEXT NOT NULL REFERENCES access_groups(id),
					role_id TEXT NOT NULL REFERENCES roles(id),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					expires_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE(access_group_id, role_id)
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					id TEXT PRIMARY KEY,
					role_id TEXT NOT NULL REFERENCES roles(id),
					permission_id TEXT NOT NULL REFERENCES permissions(id),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					expires_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE(role_id, permission_id)
				);

				CREATE TABLE IF NOT EXISTS permission_operations (
					id TEXT PRIMARY KEY,
					permission_id TEXT NOT NULL REFERENCES permissions(id),
					operation_id TEXT NOT NULL REFERENCES operations(id),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					expires_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE(permission_id, operation_id)
				);
			`,
		},
		{
			Version:     3,
			Description: "Seed group types",
			SQL: `
				INSERT INTO group_types (id, code, name) VALUES
					('` + SystemGroupTypeID + `', 'SYSTEM', 'System'),
					('` + TenantGroupTypeID + `', 'TENANT', 'Tenant');
			`,
		},
	}
}
