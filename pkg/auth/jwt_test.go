package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/tenants"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(SignerConfig{
		Secret:    testSecret,
		Issuer:    "warden",
		Audience:  "warden-clients",
		AccessTTL: 15 * time.Minute,
	})
	require.NoError(t, err)
	return s
}

func TestNewSigner_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  SignerConfig
	}{
		{"short secret", SignerConfig{Secret: "short", Issuer: "i", Audience: "a", AccessTTL: time.Minute}},
		{"no issuer", SignerConfig{Secret: testSecret, Audience: "a", AccessTTL: time.Minute}},
		{"no audience", SignerConfig{Secret: testSecret, Issuer: "i", AccessTTL: time.Minute}},
		{"no ttl", SignerConfig{Secret: testSecret, Issuer: "i", Audience: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSigner(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestSigner_SignAndParse(t *testing.T) {
	s := newTestSigner(t)
	tenant := &tenants.Tenant{ID: uuid.New(), Slug: "acme", Name: "Acme"}
	user := &identity.UserAccount{
		ID:       uuid.New(),
		TenantID: &tenant.ID,
		Username: "alice",
		Email:    "alice@acme.test",
		FullName: "Alice Doe",
	}

	token, err := s.Sign(user, tenant, []string{"SELLER", "ADMIN"})
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@acme.test", claims.Email)
	assert.Equal(t, "Alice Doe", claims.Name)
	assert.Equal(t, tenant.ID.String(), claims.TenantID)
	assert.Equal(t, "acme", claims.TenantSlug)
	assert.Equal(t, "Acme", claims.TenantName)
	assert.Equal(t, []string{"ADMIN", "SELLER"}, claims.Roles)
	assert.Equal(t, "warden", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"warden-clients"}, claims.Audience)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestSigner_PlatformUserHasNoTenantClaims(t *testing.T) {
	s := newTestSigner(t)
	token, err := s.Sign(&identity.UserAccount{ID: uuid.New(), Username: "root"}, nil, nil)
	require.NoError(t, err)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Empty(t, claims.TenantID)
	assert.Empty(t, claims.TenantSlug)
	assert.Empty(t, claims.Roles)
}

func TestSigner_ParseRejects(t *testing.T) {
	s := newTestSigner(t)
	user := &identity.UserAccount{ID: uuid.New(), Username: "alice"}
	good, err := s.Sign(user, nil, []string{"ADMIN"})
	require.NoError(t, err)

	other, err := NewSigner(SignerConfig{Secret: testSecret, Issuer: "warden", Audience: "someone-else", AccessTTL: time.Minute})
	require.NoError(t, err)
	foreignAudience, err := other.Sign(user, nil, nil)
	require.NoError(t, err)

	otherKey, err := NewSigner(SignerConfig{Secret: strings.Repeat("x", 32), Issuer: "warden", Audience: "warden-clients", AccessTTL: time.Minute})
	require.NoError(t, err)
	wrongKey, err := otherKey.Sign(user, nil, nil)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := map[string]string{
		"garbage":          "not.a.token",
		"empty":            "",
		"tampered payload": tampered,
		"wrong audience":   foreignAudience,
		"wrong key":        wrongKey,
		"alg none":         none,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.Parse(token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}

func TestSigner_Expiry(t *testing.T) {
	s := newTestSigner(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	token, err := s.Sign(&identity.UserAccount{ID: uuid.New()}, nil, nil)
	require.NoError(t, err)

	_, err = s.Parse(token)
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)
	_, err = s.Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
