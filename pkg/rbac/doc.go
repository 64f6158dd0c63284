// Package rbac stores the role-based access control graph and resolves a
// user's effective authorization from it.
//
// # Graph
//
// The graph has four node kinds joined by four link tables:
//
//	user --account_access_groups--> access group
//	access group --role_access_groups--> role
//	role --role_permissions--> permission
//	permission --permission_operations--> operation
//
// Every link carries an active flag and an optional expiry. A link is
// effective only when it is active, unexpired, and both of its endpoints are
// active and not deleted.
//
// # Tenants
//
// Groups, roles and permissions may belong to a tenant. Resolution for a user
// with a tenant only follows nodes owned by that same tenant, so two tenants
// with identically named roles never see each other's grants. Platform users
// (no tenant) are resolved without tenant filtering. Operations are global.
//
// # Resolution
//
//	resolver := rbac.NewResolver(identityStore, rbac.NewStore(db))
//	res, err := resolver.Resolve(ctx, userID)
//	if res.Roles.Has("ADMIN") { ... }
//
// Each hop is a single batched query over the id set produced by the previous
// hop, so a resolution costs a fixed number of round-trips. An unknown user, or
// a user with no groups, resolves to empty sets without error.
//
// # Administration
//
// Admin assigns and revokes links in transactions. Membership changes evict
// only the affected user from the identity cache through an Invalidator.
// Permission names are a projection of their module's code and are never
// stored.
package rbac
