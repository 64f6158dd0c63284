// Package config provides application configuration from an optional YAML
// file and environment variables.
//
// Defaults are applied first, then the file named by WARDEN_CONFIG_FILE, then
// environment variables. Later sources win.
//
// # Environment
//
// Stores:
//
//	WARDEN_IDENTITY_DB_URL="postgres://localhost/warden_identity"
//	WARDEN_TENANT_DB_URL="postgres://localhost/warden_tenants"
//	WARDEN_DB_MAX_CONNS="20"
//
// Refresh-token registry:
//
//	WARDEN_REGISTRY="redis"  # memory, redis
//	WARDEN_REDIS_URL="redis://localhost:6379"
//	WARDEN_REDIS_POOL_SIZE="10"
//
// Tokens:
//
//	WARDEN_JWT_SECRET="..."  # at least 32 bytes
//	WARDEN_ACCESS_TTL_MINUTES="15"
//	WARDEN_REFRESH_TTL="168h"
//	WARDEN_LOGIN_ATTEMPTS="10"  # per login and window, 0 disables
//	WARDEN_LOGIN_WINDOW="15m"
//
// Reconciliation and operations:
//
//	WARDEN_RECONCILE_SCHEDULE="@every 5m"
//	WARDEN_RECONCILE_GRACE="10m"
//	WARDEN_OPS_PORT="9090"
//	WARDEN_LOG_LEVEL="info"  # debug, info, warn, error
//	WARDEN_LOG_FORMAT="json"  # json, text
//
// # File
//
//	database:
//	  identity_url: postgres://localhost/warden_identity
//	  tenant_url: postgres://localhost/warden_tenants
//	auth:
//	  jwt_secret: change-me-to-a-long-random-secret
//	  refresh_ttl: 168h
package config
