// Package database opens the Postgres connections and owns the schema:
// embedded SQL migrations plus gorm AutoMigrate.
package database

import (
	"cmp"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"studiodesk/internal/config"
	"studiodesk/internal/middleware"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var replica atomic.Pointer[gorm.DB]

// ConnectOptions controls side effects of ConnectWithOptions.
type ConnectOptions struct {
	// ApplySchema runs SQL migrations and/or AutoMigrate per DB_SCHEMA_MODE.
	ApplySchema bool
}

// Connect opens the primary (and optional read replica) connection and applies the schema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	return ConnectWithOptions(cfg, ConnectOptions{ApplySchema: true})
}

// ConnectWithOptions opens the database without forcing schema changes;
// cmd/migrate uses it to inspect state before acting.
func ConnectWithOptions(cfg *config.Config, opts ConnectOptions) (*gorm.DB, error) {
	db, err := open(cfg, postgresDSN{
		host: cfg.DBHost, port: cfg.DBPort, user: cfg.DBUser,
		password: cfg.DBPassword, name: cfg.DBName, sslMode: cfg.DBSSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	middleware.Logger.Info("database connected", "host", cfg.DBHost, "name", cfg.DBName)

	if opts.ApplySchema {
		if err := ApplySchema(context.Background(), db, cfg); err != nil {
			return nil, err
		}
	}
	connectReadReplica(cfg)
	return db, nil
}

type postgresDSN struct {
	host, port, user, password, name, sslMode string
}

func (d postgresDSN) String() string {
	return strings.Join([]string{
		"host=" + d.host,
		"port=" + d.port,
		"user=" + d.user,
		"password=" + d.password,
		"dbname=" + d.name,
		"sslmode=" + cmp.Or(d.sslMode, "disable"),
	}, " ")
}

func open(cfg *config.Config, dsn postgresDSN) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn.String()), &gorm.Config{Logger: NewGormLogger(logger.Warn)})
	if err != nil {
		return nil, err
	}
	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// configurePool applies DB_MAX_* settings; zero values get 25 open, 5 idle
// and a 5 minute lifetime.
func configurePool(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cmp.Or(max(cfg.DBMaxOpenConns, 0), 25))
	sqlDB.SetMaxIdleConns(cmp.Or(max(cfg.DBMaxIdleConns, 0), 5))
	sqlDB.SetConnMaxLifetime(time.Duration(cmp.Or(max(cfg.DBConnMaxLifetimeMinutes, 0), 5)) * time.Minute)
	return nil
}

// connectReadReplica is best effort: reads fall back to the primary on
// failure. Unset DB_READ_* values inherit the primary's.
func connectReadReplica(cfg *config.Config) {
	SetReadDB(nil)
	if cfg.DBReadHost == "" {
		return
	}
	db, err := open(cfg, postgresDSN{
		host:     cfg.DBReadHost,
		port:     cmp.Or(cfg.DBReadPort, cfg.DBPort),
		user:     cmp.Or(cfg.DBReadUser, cfg.DBUser),
		password: cmp.Or(cfg.DBReadPassword, cfg.DBPassword),
		name:     cfg.DBName,
		sslMode:  cfg.DBSSLMode,
	})
	if err != nil {
		middleware.Logger.Warn("read replica unavailable, reads use the primary", "host", cfg.DBReadHost, "error", err)
		return
	}
	SetReadDB(db)
	middleware.Logger.Info("read replica connected", "host", cfg.DBReadHost)
}

// GetReadDB returns the read replica, or nil when reads use the primary.
func GetReadDB() *gorm.DB { return replica.Load() }

// SetReadDB installs the read replica; nil sends reads to the primary.
func SetReadDB(db *gorm.DB) { replica.Store(db) }
