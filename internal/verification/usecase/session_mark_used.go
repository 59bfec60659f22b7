package usecase

import (
	"context"
	"log/slog"

	"github.com/goverify/goverify/internal/pkg/goerror"
)

type SessionMarkUsedInput struct {
	Token string `validate:"required,max=128"`
}

type SessionMarkUsedOutput struct {
	AccountID string
	Purpose   string
}

// SessionMarkUsed consumes a verified session so its token cannot authorize
// the protected action twice. The flip is conditional on the session still
// being verified-and-unused, so concurrent consumers race safely.
func (s *Usecase) SessionMarkUsed(ctx context.Context, in SessionMarkUsedInput) (*SessionMarkUsedOutput, error) {
	ctx, span := s.startSpan(ctx, "SessionMarkUsed")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	sess, err := s.getSessionByToken(ctx, in.Token)
	if err != nil {
		return nil, err
	}

	if !sess.Verified {
		slog.WarnContext(ctx, "session not verified yet", "session_id", sess.ID)
		return nil, goerror.NewBusiness("verification session is not verified", goerror.CodeForbidden)
	}

	used, err := s.repoDB.MarkSessionUsed(ctx, sess.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo mark session used", "session_id", sess.ID, "error", err)
		return nil, goerror.NewServer(err)
	}
	if !used {
		slog.WarnContext(ctx, "session already consumed", "session_id", sess.ID)
		return nil, goerror.NewBusiness("verification session already used", goerror.CodeConflict)
	}

	return &SessionMarkUsedOutput{AccountID: sess.AccountID, Purpose: sess.Purpose}, nil
}
