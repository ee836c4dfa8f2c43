package provision

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/smallbiznis/licentia/internal/config"
	"github.com/smallbiznis/licentia/internal/tenantdb"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"github.com/smallbiznis/licentia/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DatabaseOps is the server-level surface the provisioner needs. It sits
// behind an interface so the all-or-nothing property is testable without a
// real database server.
type DatabaseOps interface {
	Exists(ctx context.Context, host, port, name string) (bool, error)
	Create(ctx context.Context, host, port, name string) error
	Drop(ctx context.Context, host, port, name string) error
	Open(ctx context.Context, host, port, name string) (*gorm.DB, error)
}

// Database identifiers are interpolated into DDL, not bound as parameters,
// so only slug-shaped names are accepted.
var validDBName = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

type serverOps struct {
	log *zap.Logger
	cfg config.Config
	reg tenantdb.Registry

	mu          sync.Mutex
	maintenance map[string]*gorm.DB
}

// NewServerOps talks to a real database server through per-host maintenance
// connections (no database selected) for CREATE/DROP, and through the tenant
// registry for ordinary connections.
func NewServerOps(log *zap.Logger, cfg config.Config, reg tenantdb.Registry) DatabaseOps {
	return &serverOps{
		log:         log.Named("provision.ops"),
		cfg:         cfg,
		reg:         reg,
		maintenance: make(map[string]*gorm.DB),
	}
}

func (o *serverOps) maintenanceConn(host, port string) (*gorm.DB, error) {
	key := host + ":" + port

	o.mu.Lock()
	defer o.mu.Unlock()

	if conn, ok := o.maintenance[key]; ok {
		return conn, nil
	}

	dialect, err := db.Dialect(db.Config{
		Type:     o.cfg.DBType,
		Host:     host,
		Port:     port,
		User:     o.cfg.TenantDBUser,
		Password: o.cfg.TenantDBPassword,
		SSLMode:  o.cfg.TenantDBSSLMode,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "unsupported tenant database type", err)
	}
	conn, err := gorm.Open(dialect, &gorm.Config{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "tenant database server unreachable", err)
	}
	o.maintenance[key] = conn
	return conn, nil
}

func (o *serverOps) Exists(ctx context.Context, host, port, name string) (bool, error) {
	if !validDBName.MatchString(name) {
		return false, apperr.Validation("invalid database name")
	}
	conn, err := o.maintenanceConn(host, port)
	if err != nil {
		return false, err
	}

	var query string
	switch o.cfg.DBType {
	case "postgres":
		query = "SELECT count(*) FROM pg_database WHERE datname = ?"
	case "mysql":
		query = "SELECT count(*) FROM information_schema.schemata WHERE schema_name = ?"
	default:
		return false, apperr.Validation("tenant provisioning requires postgres or mysql")
	}

	var count int64
	if err := conn.WithContext(ctx).Raw(query, name).Scan(&count).Error; err != nil {
		return false, apperr.Persistence("could not check database existence", err)
	}
	return count > 0, nil
}

func (o *serverOps) Create(ctx context.Context, host, port, name string) error {
	if !validDBName.MatchString(name) {
		return apperr.Validation("invalid database name")
	}
	conn, err := o.maintenanceConn(host, port)
	if err != nil {
		return err
	}

	var stmt string
	switch o.cfg.DBType {
	case "postgres":
		stmt = fmt.Sprintf(`CREATE DATABASE %q`, name)
	case "mysql":
		stmt = fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4", name)
	default:
		return apperr.Validation("tenant provisioning requires postgres or mysql")
	}

	if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
		return apperr.Persistence("could not create database", err)
	}
	o.log.Info("database created", zap.String("name", name), zap.String("host", host))
	return nil
}

func (o *serverOps) Drop(ctx context.Context, host, port, name string) error {
	if !validDBName.MatchString(name) {
		return apperr.Validation("invalid database name")
	}
	conn, err := o.maintenanceConn(host, port)
	if err != nil {
		return err
	}

	var stmt string
	switch o.cfg.DBType {
	case "postgres":
		stmt = fmt.Sprintf(`DROP DATABASE IF EXISTS %q`, name)
	case "mysql":
		stmt = fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name)
	default:
		return apperr.Validation("tenant provisioning requires postgres or mysql")
	}

	if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
		return apperr.Persistence("could not drop database", err)
	}
	o.log.Info("database dropped", zap.String("name", name), zap.String("host", host))
	return nil
}

func (o *serverOps) Open(ctx context.Context, host, port, name string) (*gorm.DB, error) {
	_ = ctx
	return o.reg.Open(host, port, name)
}
