// Package sqlstore persists monitored locations and field tables in MySQL or
// PostgreSQL through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Config describes how to reach the database.
type Config struct {
	Driver         string
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string // postgres only; defaults to "disable"
	CreateDatabase bool
}

// Store implements the location and field stores on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// Open connects to the configured database, creating it first when
// cfg.CreateDatabase is set, and applies the schema migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	if cfg.CreateDatabase {
		if err := ensureDatabase(ctx, d, cfg); err != nil {
			return nil, err
		}
	}

	dsn, err := DSN(cfg, true)
	if err != nil {
		return nil, err
	}
	db, err := connect(ctx, d.name, dsn)
	if err != nil {
		return nil, err
	}

	if err := migrateUp(d, dsn, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("database ready", "driver", d.name, "host", cfg.Host, "database", cfg.Name)
	return &Store{db: db, dialect: d, logger: logger}, nil
}

// New wraps an existing connection without touching the schema.
func New(db *sql.DB, driver string, logger *slog.Logger) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, dialect: d, logger: logger}, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func connect(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// ensureDatabase creates cfg.Name when it does not exist yet.
func ensureDatabase(ctx context.Context, d dialect, cfg Config) error {
	dsn, err := DSN(cfg, false)
	if err != nil {
		return err
	}
	db, err := connect(ctx, d.name, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	switch d.name {
	case DriverMySQL:
		if _, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+d.quote(cfg.Name)); err != nil {
			return fmt.Errorf("create database %s: %w", cfg.Name, err)
		}
	case DriverPostgres:
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pg_database WHERE datname = $1", cfg.Name).Scan(&n); err != nil {
			return fmt.Errorf("look up database %s: %w", cfg.Name, err)
		}
		if n > 0 {
			return nil
		}
		if _, err := db.ExecContext(ctx, "CREATE DATABASE "+d.quote(cfg.Name)); err != nil {
			return fmt.Errorf("create database %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// DSN builds the driver connection string. Without withDatabase it targets the
// server itself (the "postgres" maintenance database for PostgreSQL).
func DSN(cfg Config, withDatabase bool) (string, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	switch cfg.Driver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = addr
		if withDatabase {
			mc.DBName = cfg.Name
		}
		mc.ParseTime = true
		mc.Loc = time.UTC
		return mc.FormatDSN(), nil

	case DriverPostgres:
		name := "postgres"
		if withDatabase {
			name = cfg.Name
		}
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		parts := []string{
			"host=" + pqValue(cfg.Host),
			"port=" + strconv.Itoa(cfg.Port),
			"user=" + pqValue(cfg.User),
			"password=" + pqValue(cfg.Password),
			"dbname=" + pqValue(name),
			"sslmode=" + pqValue(sslMode),
			"timezone=UTC",
		}
		return strings.Join(parts, " "), nil

	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// pqValue quotes a keyword/value connection parameter for lib/pq.
func pqValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
