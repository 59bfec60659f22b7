package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goverify/goverify/internal/pkg/clock"
	"github.com/goverify/goverify/internal/pkg/config"
	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/pkg/goroutine"
	"github.com/goverify/goverify/internal/pkg/hash"
	"github.com/goverify/goverify/internal/pkg/idempotency"
	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/goverify/goverify/internal/pkg/mfa"
	"github.com/goverify/goverify/internal/pkg/totp"
	"github.com/goverify/goverify/internal/pkg/uid"
	"github.com/goverify/goverify/internal/pkg/validator"
	"github.com/goverify/goverify/internal/verification/entity"
	"go.opentelemetry.io/otel/trace"
)

// Attempt methods recorded on the verification attempt event.
const (
	MethodTOTP       = "totp"
	MethodBackupCode = "backup_code"
	MethodSession    = "session"
)

type CodeIssuedEvent struct {
	SessionID int64
	AccountID string
	Purpose   string
	Channel   entity.Channel
	Target    string
	Code      string
	ExpiresAt time.Time
}

type VerificationAttemptEvent struct {
	AccountID  string
	Method     string
	Accepted   bool
	OccurredAt time.Time
}

type repoMessaging interface {
	PublishCodeIssued(ctx context.Context, msg CodeIssuedEvent) error
	PublishVerificationAttempt(ctx context.Context, msg VerificationAttemptEvent) error
}

type repoDB interface {
	GetCredentialByAccountID(ctx context.Context, accountID string) (*entity.Credential, error)
	UpsertPendingCredential(ctx context.Context, cred entity.Credential, codes []entity.BackupCode) error
	EnableCredential(ctx context.Context, in entity.EnableCredential) error
	UpdateCredentialLastUsedAt(ctx context.Context, id int64, accountID string) error
	DeleteCredential(ctx context.Context, accountID string) error

	GetUnusedBackupCodes(ctx context.Context, accountID string) ([]entity.BackupCode, error)
	CountUnusedBackupCodes(ctx context.Context, accountID string) (int64, error)
	MarkBackupCodeUsed(ctx context.Context, bcID int64, accountID string) (bool, error)
	ReplaceBackupCodes(ctx context.Context, accountID string, codes []entity.BackupCode) error

	CreateSession(ctx context.Context, sess entity.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error)
	IncrementSessionAttempts(ctx context.Context, id int64) (int16, error)
	MarkSessionVerified(ctx context.Context, id int64) (bool, error)
	MarkSessionUsed(ctx context.Context, id int64) (bool, error)
	ResetSessionForResend(ctx context.Context, in entity.ResetSession) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

type Usecase struct {
	repoDB          repoDB
	repoMessaging   repoMessaging
	idemp           idempotency.Idempotency
	validator       validator.Validator
	cfg             config.Config
	hmac            hash.Hash
	argon2id        hash.Hash
	mfaEncryptor    mfa.Encryptor
	mfaRecoveryCode mfa.RecoveryCodeGenerator
	mfaCode         mfa.CodeGenerator
	uid             uid.NumberID
	oid             uid.StringID
	totp            totp.OTP
	clock           clock.Clocker
	ins             instrument.Instrumentation
	goroutine       *goroutine.Manager
}

type Dependency struct {
	RepoDB          repoDB
	RepoMessaging   repoMessaging
	Idempotency     idempotency.Idempotency
	Validator       validator.Validator
	Config          config.Config
	HMAC            hash.Hash
	Argon2ID        hash.Hash
	MFAEncryptor    mfa.Encryptor
	MFARecoveryCode mfa.RecoveryCodeGenerator
	MFACode         mfa.CodeGenerator
	UID             uid.NumberID
	OID             uid.StringID
	Totp            totp.OTP
	Clock           clock.Clocker
	Instrument      instrument.Instrumentation
	Goroutine       *goroutine.Manager
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:          dep.RepoDB,
		repoMessaging:   dep.RepoMessaging,
		idemp:           dep.Idempotency,
		validator:       dep.Validator,
		cfg:             dep.Config,
		hmac:            dep.HMAC,
		argon2id:        dep.Argon2ID,
		mfaEncryptor:    dep.MFAEncryptor,
		mfaRecoveryCode: dep.MFARecoveryCode,
		mfaCode:         dep.MFACode,
		uid:             dep.UID,
		oid:             dep.OID,
		totp:            dep.Totp,
		clock:           dep.Clock,
		ins:             dep.Instrument,
		goroutine:       dep.Goroutine,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("verification.usecase").Start(ctx, name)
}

// getEnabledCredential loads the credential and maps the common failure
// modes for operations that require a confirmed enrollment.
func (s *Usecase) getEnabledCredential(ctx context.Context, accountID string) (*entity.Credential, error) {
	cred, err := s.getCredential(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if cred.Status.Ensure() != entity.CredentialStatusEnabled {
		slog.WarnContext(ctx, "account second factor is not enabled", "account_id", accountID)
		return nil, goerror.NewBusiness("verification is not enabled", goerror.CodeForbidden)
	}

	return cred, nil
}

func (s *Usecase) getCredential(ctx context.Context, accountID string) (*entity.Credential, error) {
	cred, err := s.repoDB.GetCredentialByAccountID(ctx, accountID)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "verification credential not found", "account_id", accountID)
		return nil, goerror.NewBusiness("verification is not configured", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get credential", "account_id", accountID, "error", err)
		return nil, goerror.NewServer(err)
	}
	return cred, nil
}

// decryptSecret unseals the stored TOTP secret for the account scope.
func (s *Usecase) decryptSecret(ctx context.Context, cred *entity.Credential) (string, error) {
	plain, err := s.mfaEncryptor.Decrypt(cred.Secret, mfa.Scope{
		AccountID: cred.AccountID,
		Purpose:   mfa.PurposeOTPSecret,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to decrypt totp secret", "account_id", cred.AccountID, "credential_id", cred.ID, "error", err)
		return "", goerror.NewServer(err)
	}
	return string(plain), nil
}

// requireTOTPProof demands a currently valid TOTP code before destructive
// operations on an enabled enrollment. The attempt is recorded either way.
func (s *Usecase) requireTOTPProof(ctx context.Context, cred *entity.Credential, code string) error {
	secret, err := s.decryptSecret(ctx, cred)
	if err != nil {
		return err
	}

	if !s.totp.Validate(code, secret, s.clock.Now()) {
		slog.WarnContext(ctx, "invalid totp code for proof of possession", "account_id", cred.AccountID)
		s.recordAttempt(ctx, cred.AccountID, MethodTOTP, false)
		return goerror.NewBusiness("invalid verification code", goerror.CodeUnauthorized)
	}

	s.recordAttempt(ctx, cred.AccountID, MethodTOTP, true)

	return nil
}

// recordAttempt publishes the attempt to the audit stream. Failures are
// logged but never unwind the verification result.
func (s *Usecase) recordAttempt(ctx context.Context, accountID, method string, accepted bool) {
	err := s.repoMessaging.PublishVerificationAttempt(ctx, VerificationAttemptEvent{
		AccountID:  accountID,
		Method:     method,
		Accepted:   accepted,
		OccurredAt: s.clock.Now(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish verification attempt", "account_id", accountID, "method", method, "error", err)
	}
}
