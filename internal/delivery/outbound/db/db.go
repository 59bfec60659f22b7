package db

import (
	"context"
	"errors"

	"github.com/goverify/goverify/internal/delivery/entity"
	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type DB struct {
	conn *pgxpool.Pool
	ins  instrument.Instrumentation
}

func NewDB(conn *pgxpool.Pool, ins instrument.Instrumentation) *DB {
	return &DB{conn: conn, ins: ins}
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
	return s.ins.Tracer("delivery.outbound.db").Start(ctx, name)
}

func (s *DB) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *DB) CreateDeliveryLog(ctx context.Context, dl entity.DeliveryLog) (err error) {
	ctx, span := s.startSpan(ctx, "CreateDeliveryLog")
	defer func() { s.endSpan(span, err) }()

	const query = `
		INSERT INTO verification_delivery_logs
			(id, session_id, account_id, channel, target, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', $7, $7)`

	_, err = s.conn.Exec(ctx, query,
		dl.ID,
		dl.SessionID,
		dl.AccountID,
		dl.Channel,
		dl.Target,
		dl.Status,
		dl.CreatedAt,
	)
	return s.mapError(err)
}

func (s *DB) UpdateDeliveryLogStatus(ctx context.Context, id int64, status entity.DeliveryStatus, errMsg string) (err error) {
	ctx, span := s.startSpan(ctx, "UpdateDeliveryLogStatus")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE verification_delivery_logs
		SET status = $1, error = $2, updated_at = now()
		WHERE id = $3`

	_, err = s.conn.Exec(ctx, query, status, errMsg, id)
	return s.mapError(err)
}
