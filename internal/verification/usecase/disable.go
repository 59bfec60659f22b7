package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/goverify/goverify/internal/pkg/goerror"
)

type DisableInput struct {
	AccountID string `validate:"required,max=100"`
	Code      string `validate:"required,otpcode"`
}

// Disable removes the account's verification configuration entirely: the
// TOTP credential and every backup code go away in one transaction. A
// currently valid TOTP code is required as proof of possession, and a
// subsequent enrollment starts from scratch.
func (s *Usecase) Disable(ctx context.Context, in DisableInput) error {
	ctx, span := s.startSpan(ctx, "Disable")
	defer span.End()

	in.AccountID = strings.TrimSpace(in.AccountID)
	in.Code = strings.TrimSpace(in.Code)
	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	cred, err := s.getEnabledCredential(ctx, in.AccountID)
	if err != nil {
		return err
	}

	if err := s.requireTOTPProof(ctx, cred, in.Code); err != nil {
		return err
	}

	if err := s.repoDB.DeleteCredential(ctx, in.AccountID); err != nil {
		slog.ErrorContext(ctx, "failed to repo delete credential", "account_id", in.AccountID, "error", err)
		return goerror.NewServer(err)
	}

	return nil
}
