// Package domain contains the organizational entities living inside each
// tenant store: role catalog, departments, dealers and executives.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role is the closed set of roles a person can hold inside a tenant.
type Role string

const (
	RoleBusinessAdmin     Role = "BUSINESS_ADMIN"
	RoleBusinessExecutive Role = "BUSINESS_EXECUTIVE"
	RoleDealerAdmin       Role = "DEALER_ADMIN"
	RoleDealerExecutive   Role = "DEALER_EXECUTIVE"
	RoleViewer            Role = "VIEWER"
)

// Valid reports whether r is one of the closed role values.
func (r Role) Valid() bool {
	switch r {
	case RoleBusinessAdmin, RoleBusinessExecutive, RoleDealerAdmin, RoleDealerExecutive, RoleViewer:
		return true
	}
	return false
}

// IsDealerRole reports whether r is scoped to a dealer.
func (r Role) IsDealerRole() bool {
	return r == RoleDealerAdmin || r == RoleDealerExecutive
}

// RoleRecord is the seeded role row. IDs are fixed by hierarchy position;
// id 1 (business admin) is referenced by the bootstrap executive and by the
// dealer's seeded admin executive.
type RoleRecord struct {
	ID        int64     `gorm:"primaryKey"`
	Code      Role      `gorm:"type:text;not null;uniqueIndex:ux_roles_code"`
	Name      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (RoleRecord) TableName() string { return "role_mast" }

// SeedRoles is the fixed role hierarchy provisioned into every new tenant
// database, in insertion order.
func SeedRoles(now time.Time) []RoleRecord {
	return []RoleRecord{
		{ID: 1, Code: RoleBusinessAdmin, Name: "Business Admin", CreatedAt: now},
		{ID: 2, Code: RoleBusinessExecutive, Name: "Business Executive", CreatedAt: now},
		{ID: 3, Code: RoleDealerAdmin, Name: "Dealer Admin", CreatedAt: now},
		{ID: 4, Code: RoleDealerExecutive, Name: "Dealer Executive", CreatedAt: now},
		{ID: 5, Code: RoleViewer, Name: "Viewer", CreatedAt: now},
	}
}

// Department groups executives; every tenant starts with one default row.
type Department struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	IsDefault bool         `gorm:"not null;default:false"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Department) TableName() string { return "department_mast" }

// Dealer is a reseller entity inside a tenant. MappedUserID is zero until an
// invite for the dealer admin is accepted.
type Dealer struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Name         string       `gorm:"type:text;not null"`
	Email        string       `gorm:"type:text;not null"`
	Phone        string       `gorm:"type:text"`
	MappedUserID snowflake.ID `gorm:"column:mapped_user_id;not null;default:0;index"`
	CreatedBy    snowflake.ID `gorm:"column:created_by;not null"`
	UpdatedBy    snowflake.ID `gorm:"column:updated_by"`
	CreatedAt    time.Time    `gorm:"not null"`
	UpdatedAt    time.Time    `gorm:"not null"`
}

func (Dealer) TableName() string { return "dealer_mast" }

// Executive is a person record inside a tenant, optionally scoped to one
// dealer. The dealer's seeded admin executive carries role id 1 and follows
// the dealer's user binding.
type Executive struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	DealerID     snowflake.ID `gorm:"column:dealer_id;not null;default:0;index"`
	RoleID       int64        `gorm:"column:role_id;not null"`
	DepartmentID snowflake.ID `gorm:"column:department_id;not null;default:0"`
	Name         string       `gorm:"type:text;not null"`
	Email        string       `gorm:"type:text;not null"`
	Phone        string       `gorm:"type:text"`
	MappedUserID snowflake.ID `gorm:"column:mapped_user_id;not null;default:0;index"`
	InviteID     snowflake.ID `gorm:"column:invite_id;not null;default:0;index"`
	CreatedBy    snowflake.ID `gorm:"column:created_by;not null"`
	UpdatedBy    snowflake.ID `gorm:"column:updated_by"`
	CreatedAt    time.Time    `gorm:"not null"`
	UpdatedAt    time.Time    `gorm:"not null"`
}

func (Executive) TableName() string { return "executive_mast" }
