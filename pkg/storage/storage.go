// Package storage manages the MediaKeep database connection and schema.
//
// Two drivers are supported: postgres (lib/pq) for multi-instance
// deployments and sqlite3 (mattn/go-sqlite3) for single-node NAS installs.
// Queries throughout the codebase are written with '?' placeholders and
// rebound to '$N' for postgres via DB.Rebind.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// DriverPostgres and DriverSQLite are the supported database/sql drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds database connection configuration
type Config struct {
	Driver      string
	URL         string
	MaxConns    int
	MaxIdle     int
	MaxLifetime time.Duration
}

// DB wraps *sql.DB with the driver name so stores can rebind placeholders
type DB struct {
	*sql.DB
	Driver string
}

// Open opens and pings a database connection
func Open(ctx context.Context, cfg Config) (*DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, Driver: cfg.Driver}, nil
}

// Wrap wraps an existing *sql.DB (used by tests with sqlmock)
func Wrap(db *sql.DB, driver string) *DB {
	return &DB{DB: db, Driver: driver}
}

// Rebind converts '?' placeholders to the driver's native form.
// SQLite accepts '?' as-is; postgres requires '$1'..'$N'.
func (d *DB) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a unique-constraint violation.
// Concurrent SSO callbacks racing to claim the same (auth_provider,
// external_id) pair surface through here.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	// mattn/go-sqlite3 error codes would need a build-tagged check; the
	// message form is stable across versions.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
