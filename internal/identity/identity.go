// Package identity resolves the acting user from request-scoped credentials.
// Session issuance and verification live outside this service; the resolver
// only reads what the session gate already established.
package identity

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licentia/internal/directory/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
)

// Actor is the resolved caller for the current request.
type Actor struct {
	UserID   snowflake.ID
	Email    string
	Phone    string
	TenantID snowflake.ID
	Role     domain.Role
	DealerID snowflake.ID // set when Role is a dealer role
}

// Resolver exposes the session gate to the core services.
type Resolver interface {
	CurrentActor(ctx context.Context) (Actor, error)
}

type ctxKey struct{}

// WithActor stores the resolved actor on the request context. The session
// middleware (outside this core) calls this after verifying credentials.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

type contextResolver struct{}

// NewContextResolver reads the actor placed on the context by the gate.
func NewContextResolver() Resolver { return contextResolver{} }

func (contextResolver) CurrentActor(ctx context.Context) (Actor, error) {
	actor, ok := ctx.Value(ctxKey{}).(Actor)
	if !ok || actor.UserID == 0 {
		return Actor{}, apperr.Validation("no authenticated user on request")
	}
	return actor, nil
}

// StaticResolver returns a fixed actor; used by tests.
type StaticResolver struct {
	Actor Actor
	Err   error
}

func (r StaticResolver) CurrentActor(ctx context.Context) (Actor, error) {
	_ = ctx
	if r.Err != nil {
		return Actor{}, r.Err
	}
	return r.Actor, nil
}
