package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/pkg/mfa"
	"github.com/goverify/goverify/internal/verification/entity"
)

type SetupBeginInput struct {
	AccountID   string `validate:"required,max=100"`
	AccountName string `validate:"required,max=255"`
}

type SetupBeginOutput struct {
	Secret      string
	URI         string
	BackupCodes []string
}

// SetupBegin issues a fresh TOTP secret and backup code set for an account
// and parks the enrollment in pending state until SetupConfirm proves
// possession. Calling it again while pending replaces both; calling it on
// an enabled account is a conflict. The plaintext backup codes are returned
// exactly once.
func (s *Usecase) SetupBegin(ctx context.Context, in SetupBeginInput) (*SetupBeginOutput, error) {
	ctx, span := s.startSpan(ctx, "SetupBegin")
	defer span.End()

	in.AccountID = strings.TrimSpace(in.AccountID)
	in.AccountName = strings.TrimSpace(in.AccountName)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	cred, err := s.repoDB.GetCredentialByAccountID(ctx, in.AccountID)
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to repo get credential", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if cred != nil && cred.Status.Ensure() == entity.CredentialStatusEnabled {
		return nil, goerror.NewBusiness("verification is already configured", goerror.CodeConflict)
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate totp secret", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	uri, err := s.totp.ProvisioningURI(secret, in.AccountName)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build provisioning uri", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	encryptedSecret, err := s.mfaEncryptor.Encrypt([]byte(secret), mfa.Scope{
		AccountID: in.AccountID,
		Purpose:   mfa.PurposeOTPSecret,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to encrypt totp secret", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	plainCodes, hashedCodes, err := s.newBackupCodeSet(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}

	newCred := entity.Credential{
		ID:         s.uid.Generate(),
		AccountID:  in.AccountID,
		Secret:     encryptedSecret,
		KeyVersion: 1,
		Status:     entity.CredentialStatusPending,
		UpdatedAt:  s.clock.Now(),
	}

	err = s.repoDB.UpsertPendingCredential(ctx, newCred, hashedCodes)
	if errors.Is(err, goerror.ErrConflict) {
		return nil, goerror.NewBusiness("verification is already configured", goerror.CodeConflict)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo upsert pending credential", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &SetupBeginOutput{Secret: secret, URI: uri, BackupCodes: plainCodes}, nil
}
