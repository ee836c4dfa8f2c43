// Package tenantdb hands out connections to per-tenant databases. Each
// business row points at a physical (host, port, name); the registry opens
// that target lazily and caches the pool for the life of the process.
package tenantdb

import (
	"fmt"
	"sync"
	"time"

	"github.com/smallbiznis/licentia/internal/config"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"github.com/smallbiznis/licentia/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Registry resolves a tenant database location to an open connection.
type Registry interface {
	Open(host, port, name string) (*gorm.DB, error)
	Close() error
}

type registry struct {
	log *zap.Logger
	cfg config.Config

	mu    sync.Mutex
	conns map[string]*gorm.DB
}

// NewRegistry builds the per-tenant connection registry. Credentials for the
// tenant database server come from configuration; the location comes from
// the business row.
func NewRegistry(log *zap.Logger, cfg config.Config) Registry {
	return &registry{
		log:   log.Named("tenantdb"),
		cfg:   cfg,
		conns: make(map[string]*gorm.DB),
	}
}

func (r *registry) Open(host, port, name string) (*gorm.DB, error) {
	if name == "" {
		return nil, apperr.Validation("tenant database name is required")
	}

	key := fmt.Sprintf("%s:%s/%s", host, port, name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[key]; ok {
		return conn, nil
	}

	dialect, err := db.Dialect(db.Config{
		Type:     r.cfg.DBType,
		Host:     host,
		Port:     port,
		Name:     name,
		User:     r.cfg.TenantDBUser,
		Password: r.cfg.TenantDBPassword,
		SSLMode:  r.cfg.TenantDBSSLMode,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "unsupported tenant database type", err)
	}

	conn, err := gorm.Open(dialect, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "tenant database unreachable", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "tenant database unreachable", err)
	}
	sqlDB.SetMaxIdleConns(r.cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(r.cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(r.cfg.DBConnMaxLifetime) * time.Second)

	r.log.Info("tenant store connected", zap.String("target", key))
	r.conns[key] = conn
	return conn, nil
}

func (r *registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, conn := range r.conns {
		sqlDB, err := conn.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.conns, key)
	}
	return firstErr
}
