// Package store persists raw spans in MySQL and reads them back per trace.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gofr.dev/pkg/gofr/logging"

	"gofr.dev/gofr-tracer/internal/cleaner"
	"gofr.dev/gofr-tracer/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrTraceNotFound = errors.New("trace not found")

// DB is the part of a SQL connection pool the store needs.
type DB interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db     DB
	logger logging.Logger
}

func New(db DB, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO)
	}

	return &Store{db: db, logger: logger}
}

const (
	upsertTrace = "INSERT INTO traces (trace_id, timestamp) VALUES (?, ?) " +
		"ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id), timestamp = LEAST(timestamp, VALUES(timestamp))"

	insertSpan = "INSERT INTO spans (trace_id, trace_id_high, span_id, parent_id, kind, name, timestamp, duration, " +
		"shared, debug, local_endpoint, remote_endpoint, annotations, tags) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	selectTrace = "SELECT id FROM traces WHERE trace_id = ?"

	selectSpans = "SELECT s.trace_id_high, t.trace_id, s.span_id, s.parent_id, s.kind, s.name, s.timestamp, s.duration, s.shared, " +
		"s.debug, s.local_endpoint, s.remote_endpoint, s.annotations, s.tags " +
		"FROM spans s JOIN traces t ON t.id = s.trace_id WHERE s.trace_id = ? ORDER BY s.timestamp"
)

// Insert stores spans in a single transaction. Ids are normalized before they are written, so a trace
// can be read back with an id of any case or padding. Spans are filed under the low 64 bits of their
// trace id, the way traces are grouped for processing.
func (s *Store) Insert(ctx context.Context, spans []model.Span) (err error) {
	if len(spans) == 0 {
		return nil
	}

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			if rbErr := txn.Rollback(); rbErr != nil {
				s.logger.Errorf("failed to rollback transaction: %v", rbErr)
			}

			return
		}

		if commitErr := txn.Commit(); commitErr != nil {
			s.logger.Errorf("failed to commit transaction: %v", commitErr)
			err = commitErr
		}
	}()

	traceIDs := make(map[string]int64)

	for i := range spans {
		span := cleaner.Clean(spans[i])

		lower := cleaner.LowerTraceID(span.TraceID)

		id, ok := traceIDs[lower]
		if !ok {
			id, err = insertTrace(ctx, txn, lower, span.Timestamp)
			if err != nil {
				return err
			}

			traceIDs[lower] = id
		}

		if err = insertSpanRow(ctx, txn, id, &span); err != nil {
			return err
		}
	}

	s.logger.Debugf("stored %d spans of %d traces", len(spans), len(traceIDs))

	return nil
}

func insertTrace(ctx context.Context, txn *sql.Tx, traceID string, timestamp int64) (int64, error) {
	res, err := txn.ExecContext(ctx, upsertTrace, traceID, timestamp)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func insertSpanRow(ctx context.Context, txn *sql.Tx, traceID int64, span *model.Span) error {
	local, err := marshalNullable(span.LocalEndpoint)
	if err != nil {
		return err
	}

	remote, err := marshalNullable(span.RemoteEndpoint)
	if err != nil {
		return err
	}

	annotations, err := json.Marshal(span.Annotations)
	if err != nil {
		return err
	}

	tags, err := json.Marshal(span.Tags)
	if err != nil {
		return err
	}

	high := strings.TrimSuffix(span.TraceID, cleaner.LowerTraceID(span.TraceID))

	_, err = txn.ExecContext(ctx, insertSpan, traceID, nullString(high), span.ID, nullString(span.ParentID),
		nullString(string(span.Kind)), nullString(span.Name), span.Timestamp, span.Duration, span.Shared, span.Debug,
		local, remote, string(annotations), string(tags))

	return err
}

func marshalNullable(e *model.Endpoint) (sql.NullString, error) {
	if e == nil {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(e)
	if err != nil {
		return sql.NullString{}, err
	}

	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Trace loads every stored span of a trace. The id may be given in either width and matches spans
// reported with either width.
func (s *Store) Trace(ctx context.Context, traceID string) ([]model.Span, error) {
	traceID = cleaner.LowerTraceID(traceID)

	var id int64

	err := s.db.QueryRowContext(ctx, selectTrace, traceID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, traceID)
		}

		return nil, fmt.Errorf("failed to query traces table: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, selectSpans, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spans []model.Span

	for rows.Next() {
		span, err := scanSpan(rows)
		if err != nil {
			return nil, err
		}

		spans = append(spans, span)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return spans, nil
}

func scanSpan(rows *sql.Rows) (model.Span, error) {
	var (
		span                    model.Span
		lower                   string
		high                    sql.NullString
		parentID, kind, name    sql.NullString
		local, remote           []byte
		annotations, tagsColumn []byte
	)

	err := rows.Scan(&high, &lower, &span.ID, &parentID, &kind, &name, &span.Timestamp, &span.Duration,
		&span.Shared, &span.Debug, &local, &remote, &annotations, &tagsColumn)
	if err != nil {
		return model.Span{}, err
	}

	span.TraceID = high.String + lower
	span.ParentID, span.Kind, span.Name = parentID.String, model.Kind(kind.String), name.String

	for _, col := range []struct {
		data []byte
		dst  any
	}{
		{local, &span.LocalEndpoint},
		{remote, &span.RemoteEndpoint},
		{annotations, &span.Annotations},
		{tagsColumn, &span.Tags},
	} {
		if len(col.data) == 0 {
			continue
		}

		if err := json.Unmarshal(col.data, col.dst); err != nil {
			return model.Span{}, fmt.Errorf("span %s: %w", span.ID, err)
		}
	}

	return span, nil
}
