package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/verification/entity"
)

type SessionResendInput struct {
	Token string `validate:"required,max=128"`
}

// SessionResend issues a replacement code for an open session under the same
// token. The previous code stops working, the expiry is pushed out, and the
// attempt counter starts over.
func (s *Usecase) SessionResend(ctx context.Context, in SessionResendInput) error {
	ctx, span := s.startSpan(ctx, "SessionResend")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	sess, err := s.getSessionByToken(ctx, in.Token)
	if err != nil {
		return err
	}

	if sess.Verified || sess.Used {
		slog.WarnContext(ctx, "session no longer open for resend", "session_id", sess.ID)
		return goerror.NewBusiness("verification session is closed", goerror.CodeConflict)
	}

	// An expired session stays dead; the caller has to create a fresh one.
	if sess.IsExpired(s.clock.Now()) {
		slog.WarnContext(ctx, "session expired", "session_id", sess.ID)
		return goerror.NewBusiness("verification session expired", goerror.CodeUnauthorized)
	}

	code, err := s.mfaCode.Generate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate session code", "session_id", sess.ID, "error", err)
		return goerror.NewServer(err)
	}

	codeHash, err := s.hmac.Hash(code)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash session code", "session_id", sess.ID, "error", err)
		return goerror.NewServer(err)
	}

	sess.ExpiresAt = s.clock.Now().Add(s.cfg.GetMinute("modules.verification.session_ttl_minutes"))

	err = s.repoDB.ResetSessionForResend(ctx, entity.ResetSession{
		ID:        sess.ID,
		CodeHash:  string(codeHash),
		ExpiresAt: sess.ExpiresAt,
	})
	if errors.Is(err, goerror.ErrConflict) {
		slog.WarnContext(ctx, "session resend raced with verification", "session_id", sess.ID)
		return goerror.NewBusiness("verification session is closed", goerror.CodeConflict)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo reset session for resend", "session_id", sess.ID, "error", err)
		return goerror.NewServer(err)
	}

	s.publishCodeIssued(ctx, *sess, code)

	return nil
}
