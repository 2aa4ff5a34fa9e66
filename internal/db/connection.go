// Package db opens database connections for the supported backends and
// bootstraps the tables the agent writes to.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"

	"github.com/onetrueaddress/internal/config"
)

// Connection holds the database connection and the dialect used to talk to it.
type Connection struct {
	DB      *sql.DB
	Dialect Dialect
}

// NewConnection opens and pings the database described by cfg.
func NewConnection(ctx context.Context, cfg config.DatabaseConfig) (*Connection, error) {
	dialect, err := DialectFor(cfg.Type)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "db: failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "db: failed to ping database")
	}

	// Set connection pool settings
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 20
	}
	if dialect == SQLite && strings.Contains(cfg.URL, ":memory:") {
		// every connection to :memory: is a separate database
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns/2 + 1)

	return &Connection{DB: db, Dialect: dialect}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Dialect captures the SQL differences between the supported backends.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// DialectFor maps a configured database type to its dialect.
func DialectFor(dbType string) (Dialect, error) {
	switch strings.ToLower(dbType) {
	case "", config.DBPostgres, "postgresql":
		return Postgres, nil
	case config.DBSQLite, "sqlite3":
		return SQLite, nil
	}
	return 0, eris.Errorf("db: unsupported database type %q", dbType)
}

func (d Dialect) DriverName() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "postgres"
}

// Placeholder returns the bind parameter for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// QuoteIdent quotes a possibly schema-qualified identifier such as
// "ref.golden_source". Embedded quotes are doubled.
func QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(strings.Trim(p, `"`), `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
