package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/goverify/goverify/internal/pkg/goerror"
)

type BackupConsumeInput struct {
	AccountID string `validate:"required,max=100"`
	Code      string `validate:"required,min=8,max=12"`
}

type BackupConsumeOutput struct {
	Remaining int64
}

// BackupConsume burns a single backup code without trying TOTP first. It is
// the recovery path for an account that lost its authenticator, and reports
// how many unused codes remain.
func (s *Usecase) BackupConsume(ctx context.Context, in BackupConsumeInput) (*BackupConsumeOutput, error) {
	ctx, span := s.startSpan(ctx, "BackupConsume")
	defer span.End()

	in.AccountID = strings.TrimSpace(in.AccountID)
	in.Code = strings.TrimSpace(in.Code)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if _, err := s.getEnabledCredential(ctx, in.AccountID); err != nil {
		return nil, err
	}

	ok, err := s.verifyBackupCode(ctx, in.AccountID, in.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.WarnContext(ctx, "backup code rejected", "account_id", in.AccountID)
		s.recordAttempt(ctx, in.AccountID, MethodBackupCode, false)
		return nil, goerror.NewBusiness("invalid backup code", goerror.CodeUnauthorized)
	}

	s.recordAttempt(ctx, in.AccountID, MethodBackupCode, true)

	remaining, err := s.repoDB.CountUnusedBackupCodes(ctx, in.AccountID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo count unused backup codes", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &BackupConsumeOutput{Remaining: remaining}, nil
}
