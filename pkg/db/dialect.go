package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config describes one physical database target. The core store and every
// tenant store are both expressed through it.
type Config struct {
	Type     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

// Dialect builds a gorm dialector for the configured database type. An empty
// Name connects to the server's maintenance database, which is what the
// provisioner needs for CREATE/DROP DATABASE.
func Dialect(cfg Config) (gorm.Dialector, error) {
	switch cfg.Type {
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.Name,
		)), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.Host,
			cfg.User,
			cfg.Password,
			cfg.Port,
			cfg.SSLMode,
		)
		if cfg.Name != "" {
			dsn += fmt.Sprintf(" dbname=%s", cfg.Name)
		}
		return postgres.Open(dsn), nil
	case "sqlite":
		name := cfg.Name
		if name == "" {
			name = "licentia"
		}
		return sqlite.Open(name + ".db"), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.Type)
	}
}
