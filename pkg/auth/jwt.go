package auth

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// MinSecretLength is the shortest accepted HS256 key
const MinSecretLength = 32

// ErrTokenInvalid is returned for any access token that fails validation
var ErrTokenInvalid = errors.New("invalid access token")

// Claims is the payload of an access token
type Claims struct {
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	TenantID   string   `json:"tenant_id,omitempty"`
	TenantSlug string   `json:"tenant_slug,omitempty"`
	TenantName string   `json:"tenant_name,omitempty"`
	Roles      []string `json:"roles"`
	jwt.RegisteredClaims
}

// SignerConfig configures access token signing
type SignerConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	AccessTTL time.Duration
}

// Signer mints and validates HS256 access tokens
type Signer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewSigner creates a signer
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("jwt issuer and audience are required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	return &Signer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.AccessTTL,
		now:      time.Now,
	}, nil
}

// TTL returns the access token lifetime
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign mints an access token for user. tenant may be nil.
func (s *Signer) Sign(user *identity.UserAccount, tenant *tenants.Tenant, roles []string) (string, error) {
	now := s.now()
	sorted := append([]string{}, roles...)
	sort.Strings(sorted)

	claims := Claims{
		Username: user.Username,
		Email:    user.Email,
		Name:     user.FullName,
		Roles:    sorted,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	if user.TenantID != nil {
		claims.TenantID = user.TenantID.String()
	}
	if tenant != nil {
		claims.TenantID = tenant.ID.String()
		claims.TenantSlug = tenant.Slug
		claims.TenantName = tenant.Name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Parse validates structure, signature, expiry, issuer and audience and
// returns the claims
func (s *Signer) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}
