// Package tenants is the tenant directory: tenants, their business details
// and subscription records.
//
// The directory lives in its own database, independent of the credential and
// RBAC store. Tenants are created in the pending state and move to active
// once their administrator identity exists:
//
//	dir := tenants.NewDirectory(db, logger)
//	t, err := dir.Register(ctx, tenants.Registration{
//		Name:     "Café Ltda",
//		Slug:     "cafe-ltda",
//		Document: "12.345.678/0001-90",
//	})
//	...
//	err = dir.Activate(ctx, t.ID)
//
// Tenants are never hard-deleted. Slugs and documents stay reserved for the
// lifetime of the row.
package tenants
