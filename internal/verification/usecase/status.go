package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/verification/entity"
)

type StatusInput struct {
	AccountID string `validate:"required,max=100"`
}

type StatusOutput struct {
	Configured           bool
	Enabled              bool
	Verified             bool
	ConfirmedAt          *time.Time
	LastUsedAt           *time.Time
	BackupCodesRemaining int64
}

// Status reports the account's enrollment state. An account with no
// credential row is simply unconfigured, not an error.
func (s *Usecase) Status(ctx context.Context, in StatusInput) (*StatusOutput, error) {
	ctx, span := s.startSpan(ctx, "Status")
	defer span.End()

	in.AccountID = strings.TrimSpace(in.AccountID)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	cred, err := s.repoDB.GetCredentialByAccountID(ctx, in.AccountID)
	if errors.Is(err, goerror.ErrNotFound) {
		return &StatusOutput{}, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get credential", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	out := &StatusOutput{
		Configured:  true,
		Enabled:     cred.Status.Ensure() == entity.CredentialStatusEnabled,
		Verified:    cred.ConfirmedAt != nil,
		ConfirmedAt: cred.ConfirmedAt,
		LastUsedAt:  cred.LastUsedAt,
	}

	if out.Enabled {
		remaining, err := s.repoDB.CountUnusedBackupCodes(ctx, in.AccountID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo count unused backup codes", "account_id", in.AccountID, "error", err)
			return nil, goerror.NewServer(err)
		}
		out.BackupCodesRemaining = remaining
	}

	return out, nil
}
