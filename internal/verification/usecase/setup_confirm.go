package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/verification/entity"
)

type SetupConfirmInput struct {
	AccountID string `validate:"required,max=100"`
	Code      string `validate:"required,otpcode"`
}

// SetupConfirm proves the authenticator holds the pending secret. On the
// first valid code the enrollment flips to enabled and the backup codes
// written at setup time become consumable.
func (s *Usecase) SetupConfirm(ctx context.Context, in SetupConfirmInput) error {
	ctx, span := s.startSpan(ctx, "SetupConfirm")
	defer span.End()

	in.AccountID = strings.TrimSpace(in.AccountID)
	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	cred, err := s.getCredential(ctx, in.AccountID)
	if err != nil {
		return err
	}

	if cred.Status.Ensure() != entity.CredentialStatusPending {
		slog.WarnContext(ctx, "credential is not awaiting confirmation", "account_id", in.AccountID, "status", cred.Status.String())
		return goerror.NewBusiness("verification setup is not in progress", goerror.CodeConflict)
	}

	secret, err := s.decryptSecret(ctx, cred)
	if err != nil {
		return err
	}

	if !s.totp.Validate(in.Code, secret, s.clock.Now()) {
		slog.WarnContext(ctx, "invalid totp code during setup", "account_id", in.AccountID)
		return goerror.NewBusiness("invalid verification code", goerror.CodeUnauthorized)
	}

	if err := s.repoDB.EnableCredential(ctx, entity.EnableCredential{
		CredentialID: cred.ID,
		AccountID:    in.AccountID,
		ConfirmedAt:  s.clock.Now(),
	}); err != nil {
		slog.ErrorContext(ctx, "failed to repo enable credential", "account_id", in.AccountID, "credential_id", cred.ID, "error", err)
		return goerror.NewServer(err)
	}

	return nil
}
