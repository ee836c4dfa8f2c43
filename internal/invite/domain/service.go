package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
)

// CreateRequest is a new invitation. DealerID names the dealer a
// dealer-executive invite is scoped to; dealer-admin invites create the
// dealer record from Name.
type CreateRequest struct {
	TenantID snowflake.ID         `json:"tenant_id,string"`
	Role     directorydomain.Role `json:"role"`
	Name     string               `json:"name"`
	Email    string               `json:"email"`
	Phone    string               `json:"phone"`
	DealerID snowflake.ID         `json:"dealer_id,string"`
}

// Service runs the invite lifecycle. Acceptance and deregistration span the
// core store and the tenant store and are committed as a two-store saga.
type Service interface {
	PrepareForSave(ctx context.Context, inv *Invite) error
	Create(ctx context.Context, req CreateRequest) (*Invite, error)
	Accept(ctx context.Context, token string) (*Invite, error)
	Reject(ctx context.Context, token string) (*Invite, error)
	Cancel(ctx context.Context, inviteID snowflake.ID) (*Invite, error)
	Deregister(ctx context.Context, tenantID snowflake.ID, identifier string) (*Invite, error)
}
