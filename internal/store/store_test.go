package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onetrueaddress/internal/config"
	"github.com/onetrueaddress/internal/consolidate"
	"github.com/onetrueaddress/internal/db"
	"github.com/onetrueaddress/internal/match"
	"github.com/onetrueaddress/internal/record"
)

func openTestDB(t *testing.T) *db.Connection {
	t.Helper()
	ctx := context.Background()

	conn, err := db.NewConnection(ctx, config.DatabaseConfig{Type: config.DBSQLite, URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.EnsureSchema(ctx, "internal_updates"))

	stmts := []string{
		`CREATE TABLE golden_source (address1 TEXT, address2 TEXT, "Mailing City" TEXT, state TEXT, zipcode INTEGER)`,
		`INSERT INTO golden_source VALUES
			('27466 US Highway 19 N', 'Lot 64', 'Clearwater', 'FL', 33761),
			('2746 US Highway 19 N', NULL, 'Clearwater', 'FL', 33761),
			('274660 Other Rd', NULL, 'Tampa', 'FL', 33601),
			('100 Elm St', NULL, 'Springfield', 'IL', 62701)`,
		`CREATE TABLE internal_addresses ("MasterAddress" TEXT, "Active Customer" TEXT, "Media" TEXT)`,
		`INSERT INTO internal_addresses VALUES
			('27466 US Highway 19 N Lot 64, Clearwater, FL 33761', 'Y', 'Fiber'),
			('27466 US Hwy 19 N Lot 64, Clearwater, FL 33761', 'N', 'Copper')`,
	}
	for _, stmt := range stmts {
		_, err := conn.DB.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return conn
}

var (
	goldenSource   = Source{Table: "golden_source", Type: match.SourceGolden, Column: "address1"}
	internalSource = Source{Table: "internal_addresses", Type: match.SourceInternal, Column: "MasterAddress"}
)

func TestFetchCandidatesPrefix(t *testing.T) {
	s := NewSQLSource(openTestDB(t), nil)

	pool, err := s.FetchCandidates(context.Background(), goldenSource, CoarseFilter{StreetNumber: "27466", Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, "golden_source", pool.Table)
	assert.Equal(t, match.SourceGolden, pool.Type)
	require.Len(t, pool.Records, 2, "27466 and 274660 share the prefix; 2746 does not")

	first := pool.Records[0]
	assert.Equal(t, "27466 US Highway 19 N", first["address1"])
	assert.Equal(t, "Clearwater", first["Mailing City"])
	assert.Equal(t, "33761", first["zipcode"])
	assert.Equal(t, "27466 US Highway 19 N Lot 64, Clearwater, FL 33761", first.MasterAddress())

	_, hasNull := pool.Records[1]["address2"]
	assert.False(t, hasNull, "NULL columns are dropped")
}

func TestFetchCandidatesLimit(t *testing.T) {
	s := NewSQLSource(openTestDB(t), nil)

	pool, err := s.FetchCandidates(context.Background(), internalSource, CoarseFilter{StreetNumber: "27466", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, pool.Records, 1)
}

func TestFetchCandidatesNoStreetNumber(t *testing.T) {
	s := NewSQLSource(openTestDB(t), nil)

	pool, err := s.FetchCandidates(context.Background(), goldenSource, CoarseFilter{Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, pool.Records)
	assert.Empty(t, pool.Records)
}

func TestFetchCandidatesRejectsNonNumeric(t *testing.T) {
	s := NewSQLSource(openTestDB(t), nil)

	_, err := s.FetchCandidates(context.Background(), goldenSource, CoarseFilter{StreetNumber: "1%' OR 1=1 --"})
	assert.Error(t, err)
}

func TestFetchCandidatesMissingTable(t *testing.T) {
	s := NewSQLSource(openTestDB(t), nil)

	_, err := s.FetchCandidates(context.Background(), Source{Table: "nope", Type: match.SourceGolden, Column: "address1"},
		CoarseFilter{StreetNumber: "1"})
	assert.Error(t, err)
}

func consolidated() *consolidate.ConsolidatedRecord {
	return &consolidate.ConsolidatedRecord{
		Record:      record.AddressRecord{"MasterAddress": "100 Elm St, Springfield, IL 62701", "Media": "Fiber"},
		Scenario:    consolidate.ScenarioMultipleRecords,
		AgentAction: "Scenario 1: consolidated 2 internal records into one",
		TPI:         20,
		SourceCount: 2,
	}
}

func TestPersistWritesRecordAndEvent(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	w := NewWriter(conn, "internal_updates",
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string { return "update-1" }))

	receipt, err := w.Persist(ctx, consolidated())
	require.NoError(t, err)
	assert.Equal(t, "update-1", receipt.UpdateID)
	assert.Equal(t, 20, receipt.TPI)
	assert.Equal(t, fixed, receipt.CreatedAt)

	var (
		master, body, action string
		tpi, scenario        int
	)
	require.NoError(t, conn.DB.QueryRowContext(ctx,
		`SELECT master_address, record, agent_action, tpi, scenario FROM internal_updates WHERE update_id = ?`, "update-1").
		Scan(&master, &body, &action, &tpi, &scenario))
	assert.Equal(t, "100 Elm St, Springfield, IL 62701", master)
	assert.Equal(t, 20, tpi)
	assert.Equal(t, 1, scenario)
	assert.Contains(t, action, "Scenario 1")

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &fields))
	assert.Equal(t, "Fiber", fields["Media"])
	assert.Equal(t, 20.0, fields["tpi"])

	history, err := w.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "update-1", history[0].UpdateID)
	assert.Equal(t, consolidate.ScenarioMultipleRecords, history[0].Scenario)
	assert.True(t, fixed.Equal(history[0].CreatedAt))
}

func TestPersistRollsBackOnLedgerFailure(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	_, err := conn.DB.ExecContext(ctx, `DROP TABLE agent_events`)
	require.NoError(t, err)

	w := NewWriter(conn, "internal_updates")
	_, err = w.Persist(ctx, consolidated())
	assert.ErrorIs(t, err, ErrPersist)
	var driverErr sqlite3.Error
	assert.ErrorAs(t, err, &driverErr)

	var n int
	require.NoError(t, conn.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM internal_updates`).Scan(&n))
	assert.Zero(t, n, "update row must not survive a failed ledger write")
}

func TestPersistDuplicateIDFails(t *testing.T) {
	w := NewWriter(openTestDB(t), "internal_updates", WithIDGenerator(func() string { return "same" }))

	_, err := w.Persist(context.Background(), consolidated())
	require.NoError(t, err)
	_, err = w.Persist(context.Background(), consolidated())
	assert.ErrorIs(t, err, ErrPersist)

	var driverErr sqlite3.Error
	require.ErrorAs(t, err, &driverErr, "the driver error stays in the chain")
	assert.Equal(t, sqlite3.ErrConstraint, driverErr.Code)
	assert.Contains(t, err.Error(), "insert update")
}

func TestPersistNil(t *testing.T) {
	w := NewWriter(openTestDB(t), "internal_updates")
	_, err := w.Persist(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPersist)
}

func TestTimeSaved(t *testing.T) {
	w := NewWriter(openTestDB(t), "internal_updates")
	ctx := context.Background()

	empty, err := w.TimeSaved(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.HoursSaved)

	records := []*consolidate.ConsolidatedRecord{
		consolidated(),
		consolidated(),
		{Record: record.AddressRecord{"MasterAddress": "1 Main St"}, Scenario: consolidate.ScenarioAddressMismatch, TPI: 10},
		{Record: record.AddressRecord{"MasterAddress": "2 Main St"}, Scenario: consolidate.ScenarioGoldenOnly, TPI: 5},
	}
	for _, r := range records {
		_, err := w.Persist(ctx, r)
		require.NoError(t, err)
	}

	saved, err := w.TimeSaved(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, saved.Events)
	assert.Equal(t, 55, saved.TotalTPI)
	assert.InDelta(t, 55.0/60, saved.HoursSaved, 1e-9)
	assert.Equal(t, 2, saved.ByScenario["multiple_records"].Events)
	assert.Equal(t, 5, saved.ByScenario["golden_source_only"].TotalTPI)
}
