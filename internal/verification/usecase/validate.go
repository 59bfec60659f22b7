package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/pkg/mfa"
	"github.com/goverify/goverify/internal/verification/entity"
)

type ValidateInput struct {
	AccountID string `validate:"required,max=100"`
	Code      string `validate:"required,min=6,max=12"`
}

type ValidateOutput struct {
	Method string
}

// Validate checks a second-factor proof against an enabled enrollment. A
// numeric code is tried as TOTP first; anything else, or a TOTP miss that
// looks like a backup code, falls through to single-use backup code
// consumption. Every outcome is published to the audit stream.
func (s *Usecase) Validate(ctx context.Context, in ValidateInput) (*ValidateOutput, error) {
	ctx, span := s.startSpan(ctx, "Validate")
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

	if ok, err := s.verifyTOTP(ctx, cred, in.Code); err != nil {
		return nil, err
	} else if ok {
		s.touchCredential(ctx, cred)
		s.recordAttempt(ctx, in.AccountID, MethodTOTP, true)
		return &ValidateOutput{Method: MethodTOTP}, nil
	}

	ok, err := s.verifyBackupCode(ctx, in.AccountID, in.Code)
	if err != nil {
		return nil, err
	}
	if ok {
		s.touchCredential(ctx, cred)
		s.recordAttempt(ctx, in.AccountID, MethodBackupCode, true)
		return &ValidateOutput{Method: MethodBackupCode}, nil
	}

	slog.WarnContext(ctx, "verification code rejected", "account_id", in.AccountID)
	s.recordAttempt(ctx, in.AccountID, MethodTOTP, false)

	return nil, goerror.NewBusiness("invalid verification code", goerror.CodeUnauthorized)
}

func (s *Usecase) verifyTOTP(ctx context.Context, cred *entity.Credential, code string) (bool, error) {
	if !isNumeric(code) {
		return false, nil
	}

	secret, err := s.decryptSecret(ctx, cred)
	if err != nil {
		return false, err
	}

	return s.totp.Validate(code, secret, s.clock.Now()), nil
}

// verifyBackupCode consumes a matching unused backup code. The mark-used
// update is conditional, so two concurrent requests holding the same code
// cannot both succeed.
func (s *Usecase) verifyBackupCode(ctx context.Context, accountID, code string) (bool, error) {
	normalized := mfa.NormalizeRecoveryCode(code)

	codes, err := s.repoDB.GetUnusedBackupCodes(ctx, accountID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get unused backup codes", "account_id", accountID, "error", err)
		return false, goerror.NewServer(err)
	}

	for i := range codes {
		if !s.argon2id.Verify(codes[i].Code, normalized) {
			continue
		}

		used, err := s.repoDB.MarkBackupCodeUsed(ctx, codes[i].ID, accountID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo mark backup code used", "account_id", accountID, "backup_code_id", codes[i].ID, "error", err)
			return false, goerror.NewServer(err)
		}
		if !used {
			slog.WarnContext(ctx, "backup code already consumed", "account_id", accountID, "backup_code_id", codes[i].ID)
			return false, nil
		}

		return true, nil
	}

	return false, nil
}

// touchCredential records last use. Failures are logged only; the proof
// already succeeded.
func (s *Usecase) touchCredential(ctx context.Context, cred *entity.Credential) {
	if err := s.repoDB.UpdateCredentialLastUsedAt(ctx, cred.ID, cred.AccountID); err != nil {
		slog.ErrorContext(ctx, "failed to repo update credential last used", "account_id", cred.AccountID, "credential_id", cred.ID, "error", err)
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
