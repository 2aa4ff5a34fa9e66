package db

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// EventsTable is the append-only ledger of agent writes.
const EventsTable = "agent_events"

// EnsureSchema creates the updates table and the event ledger when missing.
// The golden source and internal tables are owned elsewhere and never created
// here.
func (c *Connection) EnsureSchema(ctx context.Context, updatesTable string) error {
	ts := "TIMESTAMPTZ"
	if c.Dialect == SQLite {
		ts = "TIMESTAMP"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			update_id      TEXT PRIMARY KEY,
			master_address TEXT NOT NULL,
			record         TEXT NOT NULL,
			agent_action   TEXT NOT NULL,
			tpi            INTEGER NOT NULL,
			scenario       INTEGER NOT NULL,
			created_at     %s NOT NULL
		)`, QuoteIdent(updatesTable), ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			update_id  TEXT PRIMARY KEY,
			scenario   INTEGER NOT NULL,
			tpi        INTEGER NOT NULL,
			created_at %s NOT NULL
		)`, QuoteIdent(EventsTable), ts),
	}

	for _, stmt := range statements {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "db: ensure schema")
		}
	}
	return nil
}

// CountRows returns the number of rows in table.
func (c *Connection) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, QuoteIdent(table))
	if err := c.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "db: count rows in %s", table)
	}
	return n, nil
}
