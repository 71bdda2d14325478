package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shortlink/internal/config"
	"shortlink/internal/domain"
	"shortlink/internal/metrics"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB owns the gorm handle and, for postgres, the pgx pool underneath it.
type DB struct {
	gorm *gorm.DB
	pool *pgxpool.Pool
}

// Open connects according to cfg. For postgres a pgx pool is created first
// and handed to gorm through the database/sql bridge.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	switch cfg.Driver {
	case "postgres":
		pool, err := InitPool(ctx, cfg.DatabaseDSN(), cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
		if err != nil {
			return nil, err
		}
		gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), gormCfg)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to open gorm on pool: %w", err)
		}
		return &DB{gorm: gdb, pool: pool}, nil
	case "sqlite":
		gdb, err := OpenSQLite(cfg.SQLitePath, gormCfg)
		if err != nil {
			return nil, err
		}
		return &DB{gorm: gdb}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// InitPool creates and pings a pgx connection pool.
func InitPool(ctx context.Context, dsn string, maxConns, minConns int, maxLifetime time.Duration) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolCfg.MaxConns = int32(maxConns)
	poolCfg.MinConns = int32(minConns)
	poolCfg.MaxConnLifetime = maxLifetime
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// OpenSQLite opens a file database. SQLite serializes writers, so the pool is
// pinned to one connection and concurrent transactions queue on it.
func OpenSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{TranslateError: true}
	}
	gdb, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=on"), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

// New wraps an already opened gorm handle.
func New(gdb *gorm.DB) *DB {
	return &DB{gorm: gdb}
}

// Migrate creates or updates the schema.
func (d *DB) Migrate() error {
	if err := d.gorm.AutoMigrate(
		&domain.Link{},
		&domain.ClickEvent{},
		&domain.DailyRollup{},
		&domain.DailyVisitor{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	if d.pool != nil {
		return d.pool.Ping(ctx)
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the gorm handle and the pool.
func (d *DB) Close() {
	if sqlDB, err := d.gorm.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// Dialect returns the gorm dialector name ("postgres" or "sqlite").
func (d *DB) Dialect() string {
	return d.gorm.Dialector.Name()
}

// PoolStats exposes pgx pool statistics; nil for sqlite.
func (d *DB) PoolStats() *pgxpool.Stat {
	if d.pool == nil {
		return nil
	}
	return d.pool.Stat()
}

// isUniqueViolation recognises a duplicate key from either driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// observe records the latency and outcome of one repository call.
func observe(operation string, start time.Time, err error) {
	if errors.Is(err, domain.ErrLinkNotFound) {
		err = nil
	}
	metrics.ObserveQuery(operation, time.Since(start).Seconds(), err)
}
