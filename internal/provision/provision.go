// Package provision creates per-tenant databases: the physical database,
// its fixed table set, and the seed rows every tenant starts from. The
// operation is all-or-nothing by compensation: a failure after CREATE
// DATABASE drops the partially built database before returning.
package provision

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Request describes the tenant database to build. RequestingUser becomes the
// tenant's bootstrap admin executive.
type Request struct {
	Name           string
	Host           string
	Port           string
	RequestingUser snowflake.ID
	AdminName      string
	AdminEmail     string
}

// Provisioner builds and tears down tenant databases.
type Provisioner interface {
	Provision(ctx context.Context, req Request) error
	Drop(ctx context.Context, host, port, name string) error
}
