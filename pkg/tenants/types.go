package tenants

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a tenant
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Tenant is an isolated customer partition
type Tenant struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Document  string     `json:"document"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsActive reports whether the tenant may be used for sign-in
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive && t.DeletedAt == nil
}

// BusinessInfo holds the company details captured at registration
type BusinessInfo struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	LegalName   string    `json:"legal_name"`
	TradeName   string    `json:"trade_name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	AddressLine string    `json:"address_line,omitempty"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	PostalCode  string    `json:"postal_code,omitempty"`
	Country     string    `json:"country,omitempty"`
}

// Plan is a subscription plan
type Plan struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// SubscriptionStatus is the billing state of a subscription
type SubscriptionStatus string

const (
	SubscriptionTrial    SubscriptionStatus = "trial"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription binds a tenant to a plan
type Subscription struct {
	ID               uuid.UUID          `json:"id"`
	TenantID         uuid.UUID          `json:"tenant_id"`
	PlanID           uuid.UUID          `json:"plan_id"`
	Status           SubscriptionStatus `json:"status"`
	CurrentPeriodEnd time.Time          `json:"current_period_end"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}
