package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goverify/goverify/internal/audit/entity"
	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/pkg/instrument"
)

type DB struct {
	conn *pgxpool.Pool
	ins  instrument.Instrumentation
}

func NewDB(conn *pgxpool.Pool, ins instrument.Instrumentation) *DB {
	return &DB{
		conn: conn,
		ins:  ins,
	}
}

func (s *DB) CreateAttempt(ctx context.Context, rec entity.AttemptRecord) (err error) {
	ctx, span := s.startSpan(ctx, "CreateAttempt")
	defer func() { s.endSpan(span, err) }()

	query := `
		INSERT INTO verification_attempt_logs (id, account_id, method, accepted, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = s.conn.Exec(ctx, query, rec.ID, rec.AccountID, rec.Method, rec.Accepted, rec.OccurredAt)
	if err != nil {
		return s.mapError(err)
	}

	return nil
}

func (s *DB) ListAttemptsBefore(ctx context.Context, cutoff time.Time, limit int32) (_ []entity.AttemptRecord, err error) {
	ctx, span := s.startSpan(ctx, "ListAttemptsBefore")
	defer func() { s.endSpan(span, err) }()

	query := `
		SELECT id, account_id, method, accepted, occurred_at
		FROM verification_attempt_logs
		WHERE occurred_at < $1
		ORDER BY id
		LIMIT $2
	`

	rows, err := s.conn.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var records []entity.AttemptRecord
	for rows.Next() {
		var rec entity.AttemptRecord
		if err = rows.Scan(&rec.ID, &rec.AccountID, &rec.Method, &rec.Accepted, &rec.OccurredAt); err != nil {
			return nil, s.mapError(err)
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, s.mapError(err)
	}

	return records, nil
}

func (s *DB) DeleteAttemptsByIDs(ctx context.Context, ids []int64) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "DeleteAttemptsByIDs")
	defer func() { s.endSpan(span, err) }()

	query := `DELETE FROM verification_attempt_logs WHERE id = ANY($1)`

	tag, err := s.conn.Exec(ctx, query, ids)
	if err != nil {
		return 0, s.mapError(err)
	}

	return tag.RowsAffected(), nil
}

func (s *DB) mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return goerror.ErrNotFound
	}

	return err
}

func (s *DB) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("audit.outbound.db").Start(ctx, name)
}

func (s *DB) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
