package auth

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/tenants"
)

// Session is the token pair handed to a client
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	// ExpiresIn is the access token lifetime in whole seconds
	ExpiresIn int64 `json:"expiresIn"`
}

// TenantInfo is the tenant summary of a UserInfo
type TenantInfo struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
	Name string    `json:"name"`
	// Subscription is empty for tenants without a subscription
	Subscription tenants.SubscriptionStatus `json:"subscription,omitempty"`
}

// UserInfo is the profile of an authenticated user
type UserInfo struct {
	ID          uuid.UUID   `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	FullName    string      `json:"fullName"`
	Permissions []string    `json:"permissions"`
	Tenant      *TenantInfo `json:"tenant,omitempty"`
}

// State is the progress of one authentication attempt
type State int

const (
	StateUnauthenticated State = iota
	StateCredentialChecked
	StateTokenIssued
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateCredentialChecked:
		return "credential_checked"
	case StateTokenIssued:
		return "token_issued"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateTokenIssued || s == StateRejected
}

// Advance moves to next, refusing transitions the flow does not allow
func (s State) Advance(next State) (State, error) {
	ok := false
	switch s {
	case StateUnauthenticated:
		ok = next == StateCredentialChecked || next == StateRejected
	case StateCredentialChecked:
		ok = next == StateTokenIssued || next == StateRejected
	}
	if !ok {
		return s, fmt.Errorf("invalid transition %s -> %s", s, next)
	}
	return next, nil
}
