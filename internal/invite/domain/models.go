// Package domain defines the invitation record and its state machine. An
// invite binds an external identifier (email or phone) to a role inside a
// tenant; acceptance wires the invitee's user id into the organizational
// entity the invite references.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
)

// Status is the closed invite state set.
//
//	Pending -> Accepted | Rejected | Cancelled
//	Accepted -> Deregistered
//
// Rejected, Cancelled and Deregistered are terminal.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusAccepted     Status = "ACCEPTED"
	StatusRejected     Status = "REJECTED"
	StatusCancelled    Status = "CANCELLED"
	StatusDeregistered Status = "DEREGISTERED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled, StatusDeregistered:
		return true
	}
	return false
}

// Terminal reports whether no further transition is accepted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusDeregistered:
		return true
	}
	return false
}

// CanTransition reports whether s -> to is a legal move.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusAccepted || to == StatusRejected || to == StatusCancelled
	case StatusAccepted:
		return to == StatusDeregistered
	}
	return false
}

// EntityKind says which tenant-store entity an invite is bound to.
type EntityKind string

const (
	EntityDealer    EntityKind = "DEALER"
	EntityExecutive EntityKind = "EXECUTIVE"
)

// KindForRole maps the invited role to the entity the acceptance must bind.
// Dealer admins bind the dealer record itself; everyone else binds an
// executive row.
func KindForRole(role directorydomain.Role) EntityKind {
	if role == directorydomain.RoleDealerAdmin {
		return EntityDealer
	}
	return EntityExecutive
}

// Invite lives in the core store so a not-yet-registered invitee can be
// looked up without knowing the tenant database.
type Invite struct {
	ID          snowflake.ID           `gorm:"primaryKey"`
	TenantID    snowflake.ID           `gorm:"column:tenant_id;not null;index:ix_invites_tenant"`
	Role        directorydomain.Role   `gorm:"type:text;not null"`
	EntityKind  EntityKind             `gorm:"column:entity_kind;type:text;not null"`
	Email       string                 `gorm:"type:text;index:ix_invites_email"`
	Phone       string                 `gorm:"type:text"`
	Token       string                 `gorm:"type:text;not null;uniqueIndex:ux_invites_token"`
	DealerID    snowflake.ID           `gorm:"column:dealer_id;not null;default:0"`
	ExecutiveID snowflake.ID           `gorm:"column:executive_id;not null;default:0"`
	Status      Status                 `gorm:"type:text;not null"`
	CreatedBy   snowflake.ID           `gorm:"column:created_by;not null"`
	UpdatedBy   snowflake.ID           `gorm:"column:updated_by"`
	CreatedAt   time.Time              `gorm:"not null"`
	UpdatedAt   time.Time              `gorm:"not null"`
}

func (Invite) TableName() string { return "invites" }

// Identifier returns the contact handle the invite was addressed to.
func (i Invite) Identifier() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Phone
}

// Active reports whether the invite still occupies its (tenant, identifier,
// entity kind) slot. Cancelled and deregistered invites free the slot;
// rejected ones do too, so the business can re-invite.
func (i Invite) Active() bool {
	return i.Status == StatusPending || i.Status == StatusAccepted
}
