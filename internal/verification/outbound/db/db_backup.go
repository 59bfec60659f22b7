package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/goverify/goverify/internal/verification/entity"
	"github.com/jackc/pgx/v5"
)

func (s *DB) GetUnusedBackupCodes(ctx context.Context, accountID string) (codes []entity.BackupCode, err error) {
	ctx, span := s.startSpan(ctx, "GetUnusedBackupCodes")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, account_id, code, used, used_at
		FROM verification_backup_codes
		WHERE account_id = $1 AND used = FALSE`

	rows, err := s.conn.Query(ctx, query, accountID)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	out := make([]entity.BackupCode, 0)
	for rows.Next() {
		var bc entity.BackupCode
		if err = rows.Scan(&bc.ID, &bc.AccountID, &bc.Code, &bc.Used, &bc.UsedAt); err != nil {
			return nil, s.mapError(err)
		}
		out = append(out, bc)
	}
	if err = rows.Err(); err != nil {
		return nil, s.mapError(err)
	}

	return out, nil
}

func (s *DB) CountUnusedBackupCodes(ctx context.Context, accountID string) (count int64, err error) {
	ctx, span := s.startSpan(ctx, "CountUnusedBackupCodes")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT COUNT(*)
		FROM verification_backup_codes
		WHERE account_id = $1 AND used = FALSE`

	err = s.conn.QueryRow(ctx, query, accountID).Scan(&count)
	if err != nil {
		return 0, s.mapError(err)
	}

	return count, nil
}

// MarkBackupCodeUsed flips a code to used only while it is still unused.
// The boolean result tells the caller whether this request won the flip.
func (s *DB) MarkBackupCodeUsed(ctx context.Context, bcID int64, accountID string) (used bool, err error) {
	ctx, span := s.startSpan(ctx, "MarkBackupCodeUsed")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE verification_backup_codes
		SET used = TRUE, used_at = now()
		WHERE id = $1 AND account_id = $2 AND used = FALSE`

	tag, err := s.conn.Exec(ctx, query, bcID, accountID)
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() == 1, nil
}

// ReplaceBackupCodes drops the account's whole code set and installs the
// new one in a single transaction.
func (s *DB) ReplaceBackupCodes(ctx context.Context, accountID string, codes []entity.BackupCode) (err error) {
	ctx, span := s.startSpan(ctx, "ReplaceBackupCodes")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rolback", "error", rErr)
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM verification_backup_codes WHERE account_id = $1`, accountID); err != nil {
		return s.mapError(err)
	}

	if err := s.insertBackupCodes(ctx, tx, accountID, codes); err != nil {
		return s.mapError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return s.mapError(err)
	}

	return nil
}

func (s *DB) insertBackupCodes(ctx context.Context, tx pgx.Tx, accountID string, codes []entity.BackupCode) error {
	const query = `
		INSERT INTO verification_backup_codes (id, account_id, code, used)
		VALUES ($1, $2, $3, FALSE)`

	batch := &pgx.Batch{}
	for i := range codes {
		batch.Queue(query, codes[i].ID, accountID, codes[i].Code)
	}

	res := tx.SendBatch(ctx, batch)
	defer func() {
		if cErr := res.Close(); cErr != nil {
			slog.ErrorContext(ctx, "failed to close batch", "error", cErr)
		}
	}()

	for range codes {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}

	return nil
}
