// Package auth authenticates users and manages their sessions.
//
// # Overview
//
// An Issuer checks credentials against the credential store, resolves the
// user's role codes through the RBAC resolver and hands out a session: a
// short-lived HS256 access token and an opaque refresh token whose state is
// kept server-side in a registry.Registry.
//
//	issuer := auth.NewIssuer(users, directory, resolver, reg, signer, hasher,
//		auth.WithLogger(logger),
//		auth.WithMetrics(metrics),
//	)
//
//	res := issuer.Login(ctx, "alice@example.com", "secret")
//	if !res.Success {
//		// res.Error.Kind == result.KindUnauthorized
//	}
//
// # Access tokens
//
// Access tokens carry the subject id, username, email, full name, tenant id,
// slug and name when the user belongs to a tenant, and one "roles" entry per
// effective role code. ValidateToken checks structure, signature, expiry,
// issuer and audience without touching storage.
//
// # Refresh tokens
//
// Refresh tokens are 32 random bytes, base64url encoded. Each is single-use:
// Refresh rotates the presented token through the registry, and of several
// concurrent refreshes with the same token exactly one succeeds. Revoke is
// idempotent.
//
// # Failures
//
// Unknown logins, inactive accounts and wrong passwords all produce the same
// Unauthorized result with the same message, and take comparable time.
// Storage failures are logged and surfaced as a generic internal failure.
//
// Every attempt moves through the State machine Unauthenticated ->
// CredentialChecked -> TokenIssued, or ends in Rejected, and is written to
// the audit log.
package auth
