package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/goverify/goverify/internal/audit/entity"
	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/pkg/idempotency"
)

const (
	attemptArchiveKey       = "audit:attempt_archive"
	attemptArchiveBatchSize = 1000
)

// Archive moves attempt records older than the retention window out of the
// database and into object storage as NDJSON batches. It keeps draining
// batches until no old rows remain, so a long backlog clears in one run.
func (s *Usecase) Archive(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Archive")
	defer span.End()

	lockTTL := s.cfg.GetSecond("modules.audit.archive_lock_ttl_seconds")
	retention := s.cfg.GetDay("modules.audit.retention_days")

	err := s.idemp.Exec(ctx, attemptArchiveKey, func(ctx context.Context) error {
		cutoff := s.clock.Now().Add(-retention)

		for {
			records, err := s.repoDB.ListAttemptsBefore(ctx, cutoff, attemptArchiveBatchSize)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				return nil
			}

			if err := s.archiveBatch(ctx, records); err != nil {
				return err
			}

			if len(records) < attemptArchiveBatchSize {
				return nil
			}
		}
	}, idempotency.WithLockDuration(lockTTL), idempotency.WithStateTTL(lockTTL))

	switch {
	case err == nil:
		return nil
	case isIdempotencySkip(err):
		slog.InfoContext(ctx, "attempt archive skipped, another instance holds the lock")
		return nil
	default:
		slog.ErrorContext(ctx, "failed to archive attempt records", "error", err)
		return goerror.NewServer(err)
	}
}

// archiveBatch writes one NDJSON object before deleting its source rows so
// a crash between the two steps duplicates records instead of losing them.
func (s *Usecase) archiveBatch(ctx context.Context, records []entity.AttemptRecord) error {
	lines := lo.Map(records, func(rec entity.AttemptRecord, _ int) []byte {
		line, _ := json.Marshal(rec)
		return line
	})

	body := bytes.Join(lines, []byte("\n"))
	body = append(body, '\n')

	key := fmt.Sprintf("attempts/%s-%d.ndjson", s.clock.Now().UTC().Format("20060102T150405"), records[0].ID)

	if err := s.repoObjstore.Put(ctx, key, body); err != nil {
		return fmt.Errorf("put archive object %s: %w", key, err)
	}

	ids := lo.Map(records, func(rec entity.AttemptRecord, _ int) int64 { return rec.ID })

	deleted, err := s.repoDB.DeleteAttemptsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("delete archived rows: %w", err)
	}

	slog.InfoContext(ctx, "attempt batch archived", "object_key", key, "archived", len(records), "deleted", deleted)

	return nil
}

func isIdempotencySkip(err error) bool {
	return errors.Is(err, idempotency.ErrAlreadyInProgress) ||
		errors.Is(err, idempotency.ErrAlreadyCompleted) ||
		errors.Is(err, idempotency.ErrAlreadyFailed)
}
