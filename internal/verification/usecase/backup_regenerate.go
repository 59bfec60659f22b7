package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/verification/entity"
)

type BackupRegenerateInput struct {
	AccountID string `validate:"required,max=100"`
	Code      string `validate:"required,otpcode"`
}

type BackupRegenerateOutput struct {
	BackupCodes []string
}

// BackupRegenerate replaces the whole backup code set for an enabled
// enrollment. A currently valid TOTP code is required as proof of
// possession, and unused codes from the previous set stop working
// immediately.
func (s *Usecase) BackupRegenerate(ctx context.Context, in BackupRegenerateInput) (*BackupRegenerateOutput, error) {
	ctx, span := s.startSpan(ctx, "BackupRegenerate")
	defer span.End()

	in.AccountID = strings.TrimSpace(in.AccountID)
	in.Code = strings.TrimSpace(in.Code)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	cred, err := s.getEnabledCredential(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}

	if err := s.requireTOTPProof(ctx, cred, in.Code); err != nil {
		return nil, err
	}

	plainCodes, hashedCodes, err := s.newBackupCodeSet(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}

	if err := s.repoDB.ReplaceBackupCodes(ctx, in.AccountID, hashedCodes); err != nil {
		slog.ErrorContext(ctx, "failed to repo replace backup codes", "account_id", in.AccountID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &BackupRegenerateOutput{BackupCodes: plainCodes}, nil
}

// newBackupCodeSet generates a fresh code set and argon2id-hashes each code
// for storage. The plaintext slice is for the caller's eyes only.
func (s *Usecase) newBackupCodeSet(ctx context.Context, accountID string) ([]string, []entity.BackupCode, error) {
	plainCodes, err := s.mfaRecoveryCode.Generate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate backup codes", "account_id", accountID, "error", err)
		return nil, nil, goerror.NewServer(err)
	}

	hashedCodes := make([]entity.BackupCode, 0, len(plainCodes))
	for _, code := range plainCodes {
		h, err := s.argon2id.Hash(code)
		if err != nil {
			slog.ErrorContext(ctx, "failed to hash backup code", "account_id", accountID, "error", err)
			return nil, nil, goerror.NewServer(err)
		}

		hashedCodes = append(hashedCodes, entity.BackupCode{
			ID:        s.uid.Generate(),
			AccountID: accountID,
			Code:      string(h),
		})
	}

	return plainCodes, hashedCodes, nil
}
