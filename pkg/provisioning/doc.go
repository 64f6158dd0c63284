// Package provisioning onboards new tenants.
//
// A Saga creates the tenant in the tenant directory, then the tenant's first
// administrator with an "Administrators" group and an "ADMIN" role in the
// credential store, activates the tenant and opens a session for the
// administrator. The directory and the credential store live in separate
// databases, so a failure after the tenant commits leaves it pending. The
// Reconciler periodically activates pending tenants that did get an
// administrator and reports the rest as orphans.
package provisioning
