package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/onetrueaddress/internal/audit"
	"github.com/onetrueaddress/internal/consolidate"
	"github.com/onetrueaddress/internal/db"
)

// ErrPersist marks every failure to write a consolidated record.
var ErrPersist = eris.New("store: persistence failure")

// persistError carries ErrPersist and the underlying cause, so both
// errors.Is(err, ErrPersist) and errors.As on the driver error succeed.
type persistError struct {
	cause error
}

func (e *persistError) Error() string {
	return ErrPersist.Error() + ": " + e.cause.Error()
}

func (e *persistError) Unwrap() []error {
	return []error{ErrPersist, e.cause}
}

func persistFailure(err error, op string) error {
	return &persistError{cause: eris.Wrap(err, op)}
}

// WriteReceipt identifies a persisted record.
type WriteReceipt struct {
	UpdateID  string               `json:"update_id"`
	Scenario  consolidate.Scenario `json:"scenario"`
	TPI       int                  `json:"tpi"`
	CreatedAt time.Time            `json:"created_at"`
}

// Writer appends consolidated records to the updates table. Each write also
// appends a ledger event in the same transaction, so either both rows exist
// or neither does.
type Writer struct {
	conn    *db.Connection
	table   string
	tracker *audit.Tracker
	now     func() time.Time
	newID   func() string
	logger  *zap.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// WithIDGenerator overrides update id generation.
func WithIDGenerator(gen func() string) WriterOption {
	return func(w *Writer) { w.newID = gen }
}

func WithWriterLogger(l *zap.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

func NewWriter(conn *db.Connection, table string, opts ...WriterOption) *Writer {
	w := &Writer{
		conn:   conn,
		table:  table,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.tracker = audit.NewTracker(conn, w.logger)
	return w
}

// Persist writes rec and its ledger event atomically.
func (w *Writer) Persist(ctx context.Context, rec *consolidate.ConsolidatedRecord) (*WriteReceipt, error) {
	if rec == nil {
		return nil, eris.Wrap(ErrPersist, "nil record")
	}

	receipt := &WriteReceipt{
		UpdateID:  w.newID(),
		Scenario:  rec.Scenario,
		TPI:       rec.TPI,
		CreatedAt: w.now().UTC(),
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return nil, persistFailure(err, "encode record")
	}

	tx, err := w.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistFailure(err, "begin")
	}
	defer tx.Rollback()

	d := w.conn.Dialect
	query := fmt.Sprintf(`INSERT INTO %s (update_id, master_address, record, agent_action, tpi, scenario, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		db.QuoteIdent(w.table),
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4),
		d.Placeholder(5), d.Placeholder(6), d.Placeholder(7))

	if _, err := tx.ExecContext(ctx, query,
		receipt.UpdateID, rec.Record.MasterAddress(), string(body), rec.AgentAction,
		rec.TPI, int(rec.Scenario), receipt.CreatedAt); err != nil {
		return nil, persistFailure(err, "insert update")
	}

	event := audit.Event{
		UpdateID:  receipt.UpdateID,
		Scenario:  rec.Scenario,
		TPI:       rec.TPI,
		CreatedAt: receipt.CreatedAt,
	}
	if err := w.tracker.Record(ctx, tx, event); err != nil {
		return nil, persistFailure(err, "record event")
	}

	if err := tx.Commit(); err != nil {
		return nil, persistFailure(err, "commit")
	}

	w.logger.Info("persisted consolidated record",
		zap.String("update_id", receipt.UpdateID),
		zap.Stringer("scenario", rec.Scenario),
		zap.Int("tpi", rec.TPI),
		zap.Int("source_count", rec.SourceCount))
	return receipt, nil
}

// TimeSaved reports the hours saved recorded in the ledger.
func (w *Writer) TimeSaved(ctx context.Context) (*audit.TimeSaved, error) {
	return w.tracker.TimeSaved(ctx)
}

// History lists recent ledger events.
func (w *Writer) History(ctx context.Context, limit int) ([]audit.Event, error) {
	return w.tracker.History(ctx, limit)
}
