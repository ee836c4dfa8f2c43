package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// CreateRequest onboards a new business.
type CreateRequest struct {
	Name string `json:"name"`
}

// Service owns the business lifecycle. Create provisions the tenant database
// mid-flow; its DDL cannot join the core transaction, so failures are
// compensated, not rolled back.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Business, error)
	Get(ctx context.Context, id snowflake.ID) (*Business, error)
	List(ctx context.Context) ([]Business, error)
	Delete(ctx context.Context, id snowflake.ID) error
}
