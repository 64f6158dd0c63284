package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/tenants"
)

func newSigner(t *testing.T) *auth.Signer {
	t.Helper()
	signer, err := auth.NewSigner(auth.SignerConfig{
		Secret:    "0123456789abcdef0123456789abcdef",
		Issuer:    "warden",
		Audience:  "warden-clients",
		AccessTTL: 15 * time.Minute,
	})
	require.NoError(t, err)
	return signer
}

func signToken(t *testing.T, signer *auth.Signer, tenant *tenants.Tenant, roles ...string) string {
	t.Helper()
	user := &identity.UserAccount{ID: uuid.New(), Username: "ana", Email: "ana@acme.com"}
	if tenant != nil {
		user.TenantID = &tenant.ID
	}
	token, err := signer.Sign(user, tenant, roles)
	require.NoError(t, err)
	return token
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body["error"]
}

func TestAuthenticator_Handler(t *testing.T) {
	signer := newSigner(t)
	token := signToken(t, signer, &tenants.Tenant{ID: uuid.New(), Slug: "acme"}, "ADMIN")

	var seen *auth.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		optional bool
		header   string
		want     int
		wantErr  string
	}{
		{"valid token", false, "Bearer " + token, http.StatusOK, ""},
		{"lowercase scheme", false, "bearer " + token, http.StatusOK, ""},
		{"missing header", false, "", http.StatusUnauthorized, "missing authorization header"},
		{"missing header optional", true, "", http.StatusOK, ""},
		{"wrong scheme", false, "Basic " + token, http.StatusUnauthorized, "invalid authorization header format"},
		{"no token", false, "Bearer", http.StatusUnauthorized, "invalid authorization header format"},
		{"garbage token", false, "Bearer garbage", http.StatusUnauthorized, "invalid or expired token"},
		{"garbage token optional", true, "Bearer garbage", http.StatusUnauthorized, "invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			handler := NewAuthenticator(signer, tt.optional).Handler(next)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.wantErr != "" {
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
				assert.Equal(t, tt.wantErr, errorBody(t, w))
				assert.Nil(t, seen)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	NewAuthenticator(signer, false).Handler(next).ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
	assert.Equal(t, "acme", seen.TenantSlug)
	assert.Equal(t, []string{"ADMIN"}, seen.Roles)
}

type rejectAll struct{}

func (rejectAll) Parse(string) (*auth.Claims, error) {
	return nil, errors.New("expired")
}

func TestAuthenticator_ParserError(t *testing.T) {
	handler := NewAuthenticator(rejectAll{}, false).Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer x")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaimsFromContext(t *testing.T) {
	assert.Nil(t, ClaimsFromContext(context.Background()))

	claims := &auth.Claims{Username: "ana"}
	assert.Same(t, claims, ClaimsFromContext(WithClaims(context.Background(), claims)))
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := RequireRole("ADMIN")(ok)

	tests := []struct {
		name   string
		claims *auth.Claims
		want   int
	}{
		{"no claims", nil, http.StatusForbidden},
		{"missing role", &auth.Claims{Roles: []string{"SALES"}}, http.StatusForbidden},
		{"has role", &auth.Claims{Roles: []string{"ADMIN", "SALES"}}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireTenant(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := RequireTenant(func(r *http.Request) string { return r.URL.Query().Get("tenant") })(ok)

	tests := []struct {
		name   string
		claims *auth.Claims
		tenant string
		want   int
	}{
		{"no claims", nil, "acme", http.StatusForbidden},
		{"same tenant", &auth.Claims{TenantSlug: "acme"}, "acme", http.StatusOK},
		{"other tenant", &auth.Claims{TenantSlug: "acme"}, "globex", http.StatusForbidden},
		{"platform token", &auth.Claims{}, "globex", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders?tenant="+tt.tenant, nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
