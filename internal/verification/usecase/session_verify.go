package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/verification/entity"
)

type SessionVerifyInput struct {
	Token string `validate:"required,max=128"`
	Code  string `validate:"required,otpcode"`
}

type SessionVerifyOutput struct {
	AccountID string
	Purpose   string
}

// SessionVerify checks a delivered code against its session. The attempt
// counter is bumped before the code is even looked at, so a caller burning
// through wrong guesses locks the session regardless of outcome, and a
// correct code on the attempt after the limit no longer verifies.
func (s *Usecase) SessionVerify(ctx context.Context, in SessionVerifyInput) (*SessionVerifyOutput, error) {
	ctx, span := s.startSpan(ctx, "SessionVerify")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	sess, err := s.getSessionByToken(ctx, in.Token)
	if err != nil {
		return nil, err
	}

	if sess.Used {
		slog.WarnContext(ctx, "session already consumed", "session_id", sess.ID)
		return nil, goerror.NewBusiness("verification session already used", goerror.CodeConflict)
	}

	if sess.Verified {
		slog.WarnContext(ctx, "session already verified", "session_id", sess.ID)
		return nil, goerror.NewBusiness("verification session already verified", goerror.CodeConflict)
	}

	if sess.IsExpired(s.clock.Now()) {
		slog.WarnContext(ctx, "session expired", "session_id", sess.ID)
		return nil, goerror.NewBusiness("verification session expired", goerror.CodeUnauthorized)
	}

	attempts, err := s.repoDB.IncrementSessionAttempts(ctx, sess.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo increment session attempts", "session_id", sess.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if attempts > sess.MaxAttempts {
		slog.WarnContext(ctx, "session attempt limit exceeded", "session_id", sess.ID, "attempts", attempts)
		s.recordAttempt(ctx, sess.AccountID, MethodSession, false)
		return nil, goerror.NewBusiness("too many verification attempts", goerror.CodeTooManyRequest)
	}

	if !s.hmac.Verify(sess.CodeHash, in.Code) {
		slog.WarnContext(ctx, "session code rejected", "session_id", sess.ID, "attempts", attempts)
		s.recordAttempt(ctx, sess.AccountID, MethodSession, false)
		return nil, goerror.NewBusiness("invalid verification code", goerror.CodeUnauthorized)
	}

	verified, err := s.repoDB.MarkSessionVerified(ctx, sess.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo mark session verified", "session_id", sess.ID, "error", err)
		return nil, goerror.NewServer(err)
	}
	if !verified {
		slog.WarnContext(ctx, "session verify raced with another request", "session_id", sess.ID)
		return nil, goerror.NewBusiness("verification session already verified", goerror.CodeConflict)
	}

	s.recordAttempt(ctx, sess.AccountID, MethodSession, true)

	return &SessionVerifyOutput{AccountID: sess.AccountID, Purpose: sess.Purpose}, nil
}

func (s *Usecase) getSessionByToken(ctx context.Context, token string) (*entity.Session, error) {
	tokenHash, err := s.hmac.Hash(token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash session token", "error", err)
		return nil, goerror.NewServer(err)
	}

	sess, err := s.repoDB.GetSessionByTokenHash(ctx, string(tokenHash))
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "session not found for token")
		return nil, goerror.NewBusiness("invalid verification session", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get session by token", "error", err)
		return nil, goerror.NewServer(err)
	}

	return sess, nil
}
