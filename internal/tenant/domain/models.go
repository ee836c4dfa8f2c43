// Package domain defines the core-store records shared by onboarding and
// membership flows: businesses, users and the membership join between them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
)

// Business is a tenant. DBHost/DBPort/DBName point at the physical database
// the schema provisioner created for it.
type Business struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	DBHost    string       `gorm:"column:db_host;type:text;not null"`
	DBPort    string       `gorm:"column:db_port;type:text;not null"`
	DBName    string       `gorm:"column:db_name;type:text;not null;uniqueIndex:ux_businesses_db_name"`
	CreatedBy snowflake.ID `gorm:"column:created_by;not null"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

func (Business) TableName() string { return "businesses" }

// User is a registered person. Identity issuance happens outside this
// service; the row exists so memberships and invites have something to bind.
type User struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	Email     string       `gorm:"type:text;not null;uniqueIndex:ux_users_email"`
	Phone     string       `gorm:"type:text"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// MembershipStatus is the closed membership state set.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "ACTIVE"
	MembershipDisabled MembershipStatus = "DISABLED"
)

// TenantMembership lets a bound user act within a tenant. Created on invite
// acceptance or tenant creation, removed on deregistration.
type TenantMembership struct {
	ID        snowflake.ID         `gorm:"primaryKey"`
	UserID    snowflake.ID         `gorm:"column:user_id;not null;uniqueIndex:ux_memberships_user_tenant"`
	TenantID  snowflake.ID         `gorm:"column:tenant_id;not null;uniqueIndex:ux_memberships_user_tenant"`
	Role      directorydomain.Role `gorm:"type:text;not null"`
	Status    MembershipStatus     `gorm:"type:text;not null"`
	CreatedAt time.Time            `gorm:"not null"`
	UpdatedAt time.Time            `gorm:"not null"`
}

func (TenantMembership) TableName() string { return "tenant_memberships" }
