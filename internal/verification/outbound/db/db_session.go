package db

import (
	"context"
	"time"

	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/verification/entity"
)

func (s *DB) CreateSession(ctx context.Context, sess entity.Session) (err error) {
	ctx, span := s.startSpan(ctx, "CreateSession")
	defer func() { s.endSpan(span, err) }()

	const query = `
		INSERT INTO verification_sessions
			(id, account_id, token_hash, code_hash, purpose, channel, target,
			 attempts, max_attempts, verified, used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, FALSE, FALSE, $9, $10)`

	_, err = s.conn.Exec(ctx, query,
		sess.ID,
		sess.AccountID,
		sess.TokenHash,
		sess.CodeHash,
		sess.Purpose,
		string(sess.Channel),
		sess.Target,
		sess.MaxAttempts,
		sess.ExpiresAt,
		sess.CreatedAt,
	)
	return s.mapError(err)
}

func (s *DB) GetSessionByTokenHash(ctx context.Context, tokenHash string) (sess *entity.Session, err error) {
	ctx, span := s.startSpan(ctx, "GetSessionByTokenHash")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, account_id, token_hash, code_hash, purpose, channel, target,
			attempts, max_attempts, verified, used, expires_at, created_at
		FROM verification_sessions
		WHERE token_hash = $1`

	var out entity.Session
	err = s.conn.QueryRow(ctx, query, tokenHash).Scan(
		&out.ID,
		&out.AccountID,
		&out.TokenHash,
		&out.CodeHash,
		&out.Purpose,
		&out.Channel,
		&out.Target,
		&out.Attempts,
		&out.MaxAttempts,
		&out.Verified,
		&out.Used,
		&out.ExpiresAt,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &out, nil
}

// IncrementSessionAttempts bumps the counter and returns the new value in
// one statement, so concurrent verifies each see a distinct count.
func (s *DB) IncrementSessionAttempts(ctx context.Context, id int64) (attempts int16, err error) {
	ctx, span := s.startSpan(ctx, "IncrementSessionAttempts")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE verification_sessions
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts`

	err = s.conn.QueryRow(ctx, query, id).Scan(&attempts)
	if err != nil {
		return 0, s.mapError(err)
	}

	return attempts, nil
}

// MarkSessionVerified flips verified only while the session is still open.
func (s *DB) MarkSessionVerified(ctx context.Context, id int64) (verified bool, err error) {
	ctx, span := s.startSpan(ctx, "MarkSessionVerified")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE verification_sessions
		SET verified = TRUE
		WHERE id = $1 AND verified = FALSE AND used = FALSE`

	tag, err := s.conn.Exec(ctx, query, id)
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkSessionUsed consumes a verified session exactly once.
func (s *DB) MarkSessionUsed(ctx context.Context, id int64) (used bool, err error) {
	ctx, span := s.startSpan(ctx, "MarkSessionUsed")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE verification_sessions
		SET used = TRUE
		WHERE id = $1 AND verified = TRUE AND used = FALSE`

	tag, err := s.conn.Exec(ctx, query, id)
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() == 1, nil
}

// ResetSessionForResend installs a new code hash, pushes the expiry out,
// and zeroes the attempt counter, but only while the session is open and
// not yet expired.
func (s *DB) ResetSessionForResend(ctx context.Context, in entity.ResetSession) (err error) {
	ctx, span := s.startSpan(ctx, "ResetSessionForResend")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE verification_sessions
		SET code_hash = $1, expires_at = $2, attempts = 0
		WHERE id = $3 AND verified = FALSE AND used = FALSE AND expires_at > now()`

	tag, err := s.conn.Exec(ctx, query, in.CodeHash, in.ExpiresAt, in.ID)
	if err != nil {
		return s.mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return goerror.ErrConflict
	}

	return nil
}

// DeleteExpiredSessions removes every session past its expiry regardless of
// state. It backs the periodic sweep.
func (s *DB) DeleteExpiredSessions(ctx context.Context, before time.Time) (deleted int64, err error) {
	ctx, span := s.startSpan(ctx, "DeleteExpiredSessions")
	defer func() { s.endSpan(span, err) }()

	const query = `DELETE FROM verification_sessions WHERE expires_at <= $1`

	tag, err := s.conn.Exec(ctx, query, before)
	if err != nil {
		return 0, s.mapError(err)
	}

	return tag.RowsAffected(), nil
}
