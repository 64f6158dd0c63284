package identity

import (
	"time"

	"github.com/google/uuid"
)

// UserStatus is the lifecycle status of an account
type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusInactive UserStatus = "inactive"
)

// UserAccount is a persisted identity
type UserAccount struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      *uuid.UUID `json:"tenant_id,omitempty"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name"`
	PasswordHash  string     `json:"-"`
	Status        UserStatus `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`

	PasswordResetToken     *string    `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsActive reports whether the account may authenticate
func (u *UserAccount) IsActive() bool {
	return u.Status == StatusActive && u.DeletedAt == nil
}

// IsPlatform reports whether the account is tenant-less
func (u *UserAccount) IsPlatform() bool {
	return u.TenantID == nil
}
