// Package identity is the credential store: user accounts, password hashes,
// status and verification flags, and the tenant each account belongs to.
//
// Accounts are never hard-deleted. Every read filters soft-deleted rows at the
// query, so callers never see them. Emails and usernames are stored
// lower-cased and looked up case-insensitively.
//
// CachedStore layers a read-through, TTL-bounded cache over Store for the
// login and by-id lookups that sit on the session hot path. Any mutation made
// through CachedStore evicts the affected account.
package identity
