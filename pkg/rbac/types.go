package rbac

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Group type codes
const (
	GroupTypeSystem = "SYSTEM"
	GroupTypeTenant = "TENANT"
)

// GroupType classifies access groups
type GroupType struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// AccessGroup is a named bucket of privilege users are placed into
type AccessGroup struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    *uuid.UUID `json:"tenant_id,omitempty"`
	GroupTypeID uuid.UUID  `json:"group_type_id"`
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Role is a bundle of permissions assignable to access groups.
// Codes are unique within a tenant, and among platform roles.
type Role struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Module is a functional area permissions are scoped to
type Module struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Permission is a capability over a module. Name is the module code, read
// at query time and never stored.
type Permission struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"`
	ModuleID  uuid.UUID  `json:"module_id"`
	Name      string     `json:"name"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Operation is an atomic action identified by a power-of-two bit value
type Operation struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Value     int64     `json:"value"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPowerOfTwo reports whether v is a valid operation bit value
func IsPowerOfTwo(v int64) bool {
	return v > 0 && v&(v-1) == 0
}

// Set is an unordered set of names
type Set map[string]struct{}

// NewSet builds a set from names
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports membership
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in ascending order
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Resolution is the effective authorization of a user
type Resolution struct {
	Roles       Set `json:"roles"`
	Permissions Set `json:"permissions"`
	Operations  Set `json:"operations"`
}

func emptyResolution() *Resolution {
	return &Resolution{Roles: Set{}, Permissions: Set{}, Operations: Set{}}
}

// IsEmpty reports whether nothing was resolved
func (r *Resolution) IsEmpty() bool {
	return len(r.Roles) == 0 && len(r.Permissions) == 0 && len(r.Operations) == 0
}
