// Package store reads candidate pools from the golden source and internal
// tables and persists consolidated records with their ledger entries.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/onetrueaddress/internal/db"
	"github.com/onetrueaddress/internal/debug"
	"github.com/onetrueaddress/internal/match"
	"github.com/onetrueaddress/internal/record"
)

// Source names one reference table and the column the coarse filter runs on.
type Source struct {
	Table  string
	Type   match.SourceType
	Column string
}

// CoarseFilter narrows a fetch before fuzzy scoring. Rows whose column starts
// with StreetNumber are returned, at most Limit of them. The prefix
// over-fetches ("1234 ..." for "123"); the exact street-number gate in
// match.Filter removes those.
type CoarseFilter struct {
	StreetNumber string
	Limit        int
}

// SQLSource fetches candidate pools with database/sql.
type SQLSource struct {
	conn   *db.Connection
	logger *zap.Logger
}

func NewSQLSource(conn *db.Connection, logger *zap.Logger) *SQLSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLSource{conn: conn, logger: logger}
}

// FetchCandidates returns the pool for src. An empty street number yields an
// empty pool without touching the database.
func (s *SQLSource) FetchCandidates(ctx context.Context, src Source, f CoarseFilter) (match.Pool, error) {
	pool := match.Pool{Table: src.Table, Type: src.Type, Records: []record.AddressRecord{}}
	if f.StreetNumber == "" {
		return pool, nil
	}
	if _, err := strconv.ParseUint(f.StreetNumber, 10, 64); err != nil {
		return pool, eris.Errorf("store: street number %q is not numeric", f.StreetNumber)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}

	defer debug.Timing(s.logger, "store.fetch."+string(src.Type))()

	column := db.QuoteIdent(src.Column)
	query := fmt.Sprintf(`SELECT * FROM %s WHERE CAST(%s AS TEXT) LIKE %s ORDER BY %s LIMIT %d`,
		db.QuoteIdent(src.Table), column, s.conn.Dialect.Placeholder(1), column, limit)

	rows, err := s.conn.DB.QueryContext(ctx, query, f.StreetNumber+"%")
	if err != nil {
		return pool, eris.Wrapf(err, "store: fetch %s candidates from %s", src.Type, src.Table)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return pool, eris.Wrap(err, "store: read columns")
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return pool, eris.Wrapf(err, "store: scan %s row", src.Table)
		}

		rec := make(record.AddressRecord, len(columns))
		for i, col := range columns {
			if v, ok := stringify(values[i]); ok {
				rec[col] = v
			}
		}
		pool.Records = append(pool.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return pool, eris.Wrapf(err, "store: iterate %s rows", src.Table)
	}

	s.logger.Debug("fetched candidates",
		zap.String("table", src.Table),
		zap.String("street_number", f.StreetNumber),
		zap.Int("count", len(pool.Records)))
	return pool, nil
}

// stringify converts a scanned column value; NULLs are dropped.
func stringify(v interface{}) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case []byte:
		return string(val), true
	case string:
		return val, true
	case time.Time:
		return val.Format(time.RFC3339), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	}
	return fmt.Sprint(v), true
}
