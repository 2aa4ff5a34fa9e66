package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onetrueaddress/internal/config"
)

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"golden_source", `"golden_source"`},
		{"ref.golden_source", `"ref"."golden_source"`},
		{`"Internal Addresses"`, `"Internal Addresses"`},
		{`odd"name`, `"odd""name"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QuoteIdent(tt.in))
	}
}

func TestDialect(t *testing.T) {
	pg, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "$3", pg.Placeholder(3))
	assert.Equal(t, "postgres", pg.DriverName())

	lite, err := DialectFor("SQLite")
	require.NoError(t, err)
	assert.Equal(t, "?", lite.Placeholder(3))
	assert.Equal(t, "sqlite3", lite.DriverName())

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestEnsureSchemaSQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := NewConnection(ctx, config.DatabaseConfig{Type: config.DBSQLite, URL: "file::memory:?cache=shared"})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.EnsureSchema(ctx, "internal_updates"))
	require.NoError(t, conn.EnsureSchema(ctx, "internal_updates"), "second run is a no-op")

	n, err := conn.CountRows(ctx, EventsTable)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = conn.CountRows(ctx, "no_such_table")
	assert.Error(t, err)
}
