package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/verification/entity"
)

type SessionCreateInput struct {
	AccountID string         `validate:"required,max=100"`
	Purpose   string         `validate:"required,max=50"`
	Channel   entity.Channel `validate:"required,oneof=email sms"`
	Target    string         `validate:"required,max=255"`
}

type SessionCreateOutput struct {
	Token        string
	MaskedTarget string
	ExpiresAt    time.Time
}

// SessionCreate opens an out-of-band verification session: it mints a random
// numeric code and an opaque session token, stores only their hashes, and
// hands the plaintext code to the delivery pipeline. The caller gets the
// token back and must present it together with the code on verify.
func (s *Usecase) SessionCreate(ctx context.Context, in SessionCreateInput) (*SessionCreateOutput, error) {
	ctx, span := s.startSpan(ctx, "SessionCreate")
	defer span.End()

	in.AccountID = strings.TrimSpace(in.AccountID)
	in.Target = strings.TrimSpace(in.Target)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	code, err := s.mfaCode.Generate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate session code", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	token := s.oid.Generate()

	tokenHash, err := s.hmac.Hash(token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash session token", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	codeHash, err := s.hmac.Hash(code)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash session code", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	now := s.clock.Now()
	sess := entity.Session{
		ID:          s.uid.Generate(),
		AccountID:   in.AccountID,
		TokenHash:   string(tokenHash),
		CodeHash:    string(codeHash),
		Purpose:     in.Purpose,
		Channel:     in.Channel,
		Target:      in.Target,
		MaxAttempts: int16(s.cfg.GetInt("modules.verification.session_max_attempts")),
		ExpiresAt:   now.Add(s.cfg.GetMinute("modules.verification.session_ttl_minutes")),
		CreatedAt:   now,
	}

	if err := s.repoDB.CreateSession(ctx, sess); err != nil {
		slog.ErrorContext(ctx, "failed to repo create session", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	s.publishCodeIssued(ctx, sess, code)

	return &SessionCreateOutput{
		Token:        token,
		MaskedTarget: maskTarget(in.Target),
		ExpiresAt:    sess.ExpiresAt,
	}, nil
}

// maskTarget hides the delivery target except for its last four characters,
// so callers can show the account where the code went without exposing it.
func maskTarget(target string) string {
	runes := []rune(target)
	keep := 4
	if len(runes) <= keep {
		keep = 0
	}
	for i := 0; i < len(runes)-keep; i++ {
		runes[i] = '*'
	}
	return string(runes)
}

// publishCodeIssued hands the plaintext code to the delivery pipeline. A
// publish failure is logged and absorbed; the caller can always resend.
func (s *Usecase) publishCodeIssued(ctx context.Context, sess entity.Session, code string) {
	err := s.repoMessaging.PublishCodeIssued(ctx, CodeIssuedEvent{
		SessionID: sess.ID,
		AccountID: sess.AccountID,
		Purpose:   sess.Purpose,
		Channel:   sess.Channel,
		Target:    sess.Target,
		Code:      code,
		ExpiresAt: sess.ExpiresAt,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish code issued", "account_id", sess.AccountID, "session_id", sess.ID, "error", err)
	}
}
