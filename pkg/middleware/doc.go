// Package middleware provides HTTP middleware for services that accept warden
// access tokens.
//
// Authenticator validates the Bearer token of a request and stores its claims
// in the request context:
//
//	authn := middleware.NewAuthenticator(signer, false)
//	router.Use(authn.Handler)
//	router.Handle("/admin", middleware.RequireRole("ADMIN")(adminHandler))
//
// RateLimit throttles requests per client address with any ratelimit.Limiter:
//
//	router.Use(middleware.RateLimit(ratelimit.NewRedisLimiter(client, cfg, "")))
package middleware
