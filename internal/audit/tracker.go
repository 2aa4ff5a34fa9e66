// Package audit keeps the append-only ledger of agent writes and derives the
// manual work saved from it.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/onetrueaddress/internal/consolidate"
	"github.com/onetrueaddress/internal/db"
)

// Execer is satisfied by *sql.DB and *sql.Tx so events can be recorded inside
// the caller's transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Event is one ledger row. Rows are only ever inserted.
type Event struct {
	UpdateID  string               `json:"update_id"`
	Scenario  consolidate.Scenario `json:"scenario"`
	TPI       int                  `json:"tpi"`
	CreatedAt time.Time            `json:"created_at"`
}

// ScenarioTotals aggregates the ledger for one scenario.
type ScenarioTotals struct {
	Events   int `json:"events"`
	TotalTPI int `json:"total_tpi"`
}

// TimeSaved summarizes the ledger. TPI is read as minutes of manual work.
type TimeSaved struct {
	Events     int                       `json:"events"`
	TotalTPI   int                       `json:"total_tpi"`
	HoursSaved float64                   `json:"hours_saved"`
	ByScenario map[string]ScenarioTotals `json:"by_scenario"`
}

// Tracker reads and writes the agent_events ledger.
type Tracker struct {
	db      *sql.DB
	dialect db.Dialect
	logger  *zap.Logger
}

// NewTracker creates a new audit tracker
func NewTracker(conn *db.Connection, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{db: conn.DB, dialect: conn.Dialect, logger: logger}
}

// Record appends e using ex, normally the writer's open transaction.
func (t *Tracker) Record(ctx context.Context, ex Execer, e Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (update_id, scenario, tpi, created_at) VALUES (%s, %s, %s, %s)`,
		db.QuoteIdent(db.EventsTable),
		t.dialect.Placeholder(1), t.dialect.Placeholder(2), t.dialect.Placeholder(3), t.dialect.Placeholder(4))

	if _, err := ex.ExecContext(ctx, query, e.UpdateID, int(e.Scenario), e.TPI, e.CreatedAt.UTC()); err != nil {
		return eris.Wrapf(err, "audit: record event %s", e.UpdateID)
	}

	t.logger.Debug("recorded agent event",
		zap.String("update_id", e.UpdateID),
		zap.Stringer("scenario", e.Scenario),
		zap.Int("tpi", e.TPI))
	return nil
}

// TimeSaved sums tpi over the whole ledger.
func (t *Tracker) TimeSaved(ctx context.Context) (*TimeSaved, error) {
	rows, err := t.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT scenario, COUNT(*), COALESCE(SUM(tpi), 0) FROM %s GROUP BY scenario ORDER BY scenario`,
		db.QuoteIdent(db.EventsTable)))
	if err != nil {
		return nil, eris.Wrap(err, "audit: query time saved")
	}
	defer rows.Close()

	out := &TimeSaved{ByScenario: make(map[string]ScenarioTotals)}
	for rows.Next() {
		var scenario, count, total int
		if err := rows.Scan(&scenario, &count, &total); err != nil {
			return nil, eris.Wrap(err, "audit: scan time saved")
		}
		out.Events += count
		out.TotalTPI += total
		out.ByScenario[consolidate.Scenario(scenario).String()] = ScenarioTotals{Events: count, TotalTPI: total}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "audit: iterate time saved")
	}

	out.HoursSaved = float64(out.TotalTPI) / 60
	return out, nil
}

// History returns the most recent events, newest first.
func (t *Tracker) History(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := t.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT update_id, scenario, tpi, created_at FROM %s ORDER BY created_at DESC, update_id LIMIT %s`,
		db.QuoteIdent(db.EventsTable), t.dialect.Placeholder(1)), limit)
	if err != nil {
		return nil, eris.Wrap(err, "audit: query history")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			scenario int
		)
		if err := rows.Scan(&e.UpdateID, &scenario, &e.TPI, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "audit: scan history")
		}
		e.Scenario = consolidate.Scenario(scenario)
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "audit: iterate history")
}
