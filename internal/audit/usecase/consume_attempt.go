package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/goverify/goverify/internal/audit/entity"
)

type ConsumeAttemptInput struct {
	AccountID  string `validate:"required,max=100"`
	Method     string `validate:"required,oneof=totp backup_code session"`
	Accepted   bool
	OccurredAt int64 `validate:"required,gt=0"`
}

// ConsumeAttempt appends one verification attempt to the audit trail.
// Malformed events are dropped with a log line rather than redelivered
// forever.
func (s *Usecase) ConsumeAttempt(ctx context.Context, in ConsumeAttemptInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeAttempt")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.ErrorContext(ctx, "Validation failed", "error", err)
		return nil
	}

	rec := entity.AttemptRecord{
		ID:         s.uid.Generate(),
		AccountID:  in.AccountID,
		Method:     in.Method,
		Accepted:   in.Accepted,
		OccurredAt: time.Unix(in.OccurredAt, 0).UTC(),
	}

	if err := s.repoDB.CreateAttempt(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "failed to repo create attempt record", "account_id", in.AccountID, "error", err)
		return err
	}

	return nil
}
