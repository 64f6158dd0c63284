package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/platinummonkey/warden/pkg/auth"
)

type contextKey string

const claimsKey contextKey = "warden_claims"

// TokenParser validates an access token and returns its claims
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Authenticator provides authentication middleware
type Authenticator struct {
	parser   TokenParser
	optional bool // If true, allow requests without auth
}

// NewAuthenticator creates a new authentication middleware
func NewAuthenticator(parser TokenParser, optional bool) *Authenticator {
	return &Authenticator{
		parser:   parser,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		// Format: "Bearer <token>"
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := m.parser.Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// WithClaims returns a context carrying claims
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims of an authenticated request, or nil
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// RequireRole creates middleware that checks for a role code in the token
func RequireRole(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusForbidden, "authentication required")
				return
			}
			if !slices.Contains(claims.Roles, code) {
				writeError(w, http.StatusForbidden, "insufficient role permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTenant creates middleware that only admits tokens of the tenant
// returned by slugOf. Platform tokens carry no tenant and are admitted.
func RequireTenant(slugOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusForbidden, "authentication required")
				return
			}
			if claims.TenantSlug != "" && claims.TenantSlug != slugOf(r) {
				writeError(w, http.StatusForbidden, "token belongs to a different tenant")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
