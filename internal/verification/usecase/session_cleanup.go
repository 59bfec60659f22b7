package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/pkg/idempotency"
)

const sessionCleanupKey = "verification:session_cleanup"

// SessionCleanup deletes every session whose expiry has passed, whatever
// state it was in. A short redis lock keeps overlapping instances from
// sweeping at the same time; losing the lock is not an error.
func (s *Usecase) SessionCleanup(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "SessionCleanup")
	defer span.End()

	lockTTL := s.cfg.GetSecond("modules.verification.cleanup_lock_ttl_seconds")

	err := s.idemp.Exec(ctx, sessionCleanupKey, func(ctx context.Context) error {
		deleted, err := s.repoDB.DeleteExpiredSessions(ctx, s.clock.Now())
		if err != nil {
			return err
		}

		if deleted > 0 {
			slog.InfoContext(ctx, "expired sessions swept", "deleted", deleted)
		}

		return nil
	}, idempotency.WithLockDuration(lockTTL), idempotency.WithStateTTL(lockTTL))

	switch {
	case err == nil:
		return nil
	case isIdempotencySkip(err):
		slog.InfoContext(ctx, "session cleanup skipped, another instance holds the lock")
		return nil
	default:
		slog.ErrorContext(ctx, "failed to sweep expired sessions", "error", err)
		return goerror.NewServer(err)
	}
}

func isIdempotencySkip(err error) bool {
	return errors.Is(err, idempotency.ErrAlreadyInProgress) ||
		errors.Is(err, idempotency.ErrAlreadyCompleted) ||
		errors.Is(err, idempotency.ErrAlreadyFailed)
}
