package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/verification/entity"
	"github.com/jackc/pgx/v5"
)

func (s *DB) GetCredentialByAccountID(ctx context.Context, accountID string) (cred *entity.Credential, err error) {
	ctx, span := s.startSpan(ctx, "GetCredentialByAccountID")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, account_id, secret, key_version, status, confirmed_at, last_used_at, updated_at
		FROM verification_credentials
		WHERE account_id = $1`

	var out entity.Credential
	err = s.conn.QueryRow(ctx, query, accountID).Scan(
		&out.ID,
		&out.AccountID,
		&out.Secret,
		&out.KeyVersion,
		&out.Status,
		&out.ConfirmedAt,
		&out.LastUsedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &out, nil
}

// UpsertPendingCredential writes a pending enrollment together with its
// fresh backup code set. An existing pending row for the account gets its
// secret and codes replaced in place; an enabled row is never overwritten
// here.
func (s *DB) UpsertPendingCredential(ctx context.Context, cred entity.Credential, codes []entity.BackupCode) (err error) {
	ctx, span := s.startSpan(ctx, "UpsertPendingCredential")
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

	const query = `
		INSERT INTO verification_credentials (id, account_id, secret, key_version, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id) DO UPDATE
		SET secret = EXCLUDED.secret,
			key_version = EXCLUDED.key_version,
			updated_at = EXCLUDED.updated_at
		WHERE verification_credentials.status = $7`

	tag, err := tx.Exec(ctx, query,
		cred.ID,
		cred.AccountID,
		cred.Secret,
		cred.KeyVersion,
		cred.Status,
		cred.UpdatedAt,
		entity.CredentialStatusPending,
	)
	if err != nil {
		return s.mapError(err)
	}

	// Zero rows means the conflict target was an enabled row.
	if tag.RowsAffected() == 0 {
		return goerror.ErrConflict
	}

	if _, err := tx.Exec(ctx, `DELETE FROM verification_backup_codes WHERE account_id = $1`, cred.AccountID); err != nil {
		return s.mapError(err)
	}

	if err := s.insertBackupCodes(ctx, tx, cred.AccountID, codes); err != nil {
		return s.mapError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return s.mapError(err)
	}

	return nil
}

// EnableCredential flips a pending row to enabled. The status predicate
// makes the flip a no-op when the row is not pending anymore.
func (s *DB) EnableCredential(ctx context.Context, in entity.EnableCredential) (err error) {
	ctx, span := s.startSpan(ctx, "EnableCredential")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE verification_credentials
		SET status = $1, confirmed_at = $2, updated_at = $2
		WHERE id = $3 AND account_id = $4 AND status = $5`

	tag, err := s.conn.Exec(ctx, query,
		entity.CredentialStatusEnabled,
		in.ConfirmedAt,
		in.CredentialID,
		in.AccountID,
		entity.CredentialStatusPending,
	)
	if err != nil {
		return s.mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return s.mapError(pgx.ErrNoRows)
	}

	return nil
}

func (s *DB) UpdateCredentialLastUsedAt(ctx context.Context, id int64, accountID string) (err error) {
	ctx, span := s.startSpan(ctx, "UpdateCredentialLastUsedAt")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE verification_credentials
		SET last_used_at = now(), updated_at = now()
		WHERE id = $1 AND account_id = $2`

	_, err = s.conn.Exec(ctx, query, id, accountID)
	return s.mapError(err)
}

// DeleteCredential removes the enrollment and its backup codes together.
func (s *DB) DeleteCredential(ctx context.Context, accountID string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteCredential")
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

	tag, err := tx.Exec(ctx, `DELETE FROM verification_credentials WHERE account_id = $1`, accountID)
	if err != nil {
		return s.mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return s.mapError(pgx.ErrNoRows)
	}

	if err = tx.Commit(ctx); err != nil {
		return s.mapError(err)
	}

	return nil
}
