package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goverify/goverify/internal/pkg/config"
	"github.com/goverify/goverify/internal/pkg/goerror"
	"github.com/goverify/goverify/internal/pkg/hash"
	"github.com/goverify/goverify/internal/pkg/idempotency"
	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/goverify/goverify/internal/pkg/mfa"
	"github.com/goverify/goverify/internal/pkg/totp"
	"github.com/goverify/goverify/internal/pkg/validator"
	"github.com/goverify/goverify/internal/verification/entity"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type seqNumberID struct{ next int64 }

func (s *seqNumberID) Generate() int64 {
	s.next++
	return s.next
}

type fixedStringID struct{ value string }

func (s *fixedStringID) Generate() string { return s.value }

type fakeRepoDB struct {
	getCredentialFn     func(ctx context.Context, accountID string) (*entity.Credential, error)
	upsertPendingFn     func(ctx context.Context, cred entity.Credential, codes []entity.BackupCode) error
	enableCredentialFn  func(ctx context.Context, in entity.EnableCredential) error
	updateLastUsedFn    func(ctx context.Context, id int64, accountID string) error
	deleteCredentialFn  func(ctx context.Context, accountID string) error
	getUnusedCodesFn    func(ctx context.Context, accountID string) ([]entity.BackupCode, error)
	countUnusedCodesFn  func(ctx context.Context, accountID string) (int64, error)
	markCodeUsedFn      func(ctx context.Context, bcID int64, accountID string) (bool, error)
	replaceCodesFn      func(ctx context.Context, accountID string, codes []entity.BackupCode) error
	createSessionFn     func(ctx context.Context, sess entity.Session) error
	getSessionFn        func(ctx context.Context, tokenHash string) (*entity.Session, error)
	incrementAttemptsFn func(ctx context.Context, id int64) (int16, error)
	markVerifiedFn      func(ctx context.Context, id int64) (bool, error)
	markUsedFn          func(ctx context.Context, id int64) (bool, error)
	resetForResendFn    func(ctx context.Context, in entity.ResetSession) error
	deleteExpiredFn     func(ctx context.Context, before time.Time) (int64, error)
}

func (f *fakeRepoDB) GetCredentialByAccountID(ctx context.Context, accountID string) (*entity.Credential, error) {
	if f.getCredentialFn == nil {
		return nil, goerror.ErrNotFound
	}
	return f.getCredentialFn(ctx, accountID)
}

func (f *fakeRepoDB) UpsertPendingCredential(ctx context.Context, cred entity.Credential, codes []entity.BackupCode) error {
	if f.upsertPendingFn == nil {
		return nil
	}
	return f.upsertPendingFn(ctx, cred, codes)
}

func (f *fakeRepoDB) EnableCredential(ctx context.Context, in entity.EnableCredential) error {
	if f.enableCredentialFn == nil {
		return nil
	}
	return f.enableCredentialFn(ctx, in)
}

func (f *fakeRepoDB) UpdateCredentialLastUsedAt(ctx context.Context, id int64, accountID string) error {
	if f.updateLastUsedFn == nil {
		return nil
	}
	return f.updateLastUsedFn(ctx, id, accountID)
}

func (f *fakeRepoDB) DeleteCredential(ctx context.Context, accountID string) error {
	if f.deleteCredentialFn == nil {
		return nil
	}
	return f.deleteCredentialFn(ctx, accountID)
}

func (f *fakeRepoDB) GetUnusedBackupCodes(ctx context.Context, accountID string) ([]entity.BackupCode, error) {
	if f.getUnusedCodesFn == nil {
		return nil, nil
	}
	return f.getUnusedCodesFn(ctx, accountID)
}

func (f *fakeRepoDB) CountUnusedBackupCodes(ctx context.Context, accountID string) (int64, error) {
	if f.countUnusedCodesFn == nil {
		return 0, nil
	}
	return f.countUnusedCodesFn(ctx, accountID)
}

func (f *fakeRepoDB) MarkBackupCodeUsed(ctx context.Context, bcID int64, accountID string) (bool, error) {
	if f.markCodeUsedFn == nil {
		return true, nil
	}
	return f.markCodeUsedFn(ctx, bcID, accountID)
}

func (f *fakeRepoDB) ReplaceBackupCodes(ctx context.Context, accountID string, codes []entity.BackupCode) error {
	if f.replaceCodesFn == nil {
		return nil
	}
	return f.replaceCodesFn(ctx, accountID, codes)
}

func (f *fakeRepoDB) CreateSession(ctx context.Context, sess entity.Session) error {
	if f.createSessionFn == nil {
		return nil
	}
	return f.createSessionFn(ctx, sess)
}

func (f *fakeRepoDB) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error) {
	if f.getSessionFn == nil {
		return nil, goerror.ErrNotFound
	}
	return f.getSessionFn(ctx, tokenHash)
}

func (f *fakeRepoDB) IncrementSessionAttempts(ctx context.Context, id int64) (int16, error) {
	if f.incrementAttemptsFn == nil {
		return 1, nil
	}
	return f.incrementAttemptsFn(ctx, id)
}

func (f *fakeRepoDB) MarkSessionVerified(ctx context.Context, id int64) (bool, error) {
	if f.markVerifiedFn == nil {
		return true, nil
	}
	return f.markVerifiedFn(ctx, id)
}

func (f *fakeRepoDB) MarkSessionUsed(ctx context.Context, id int64) (bool, error) {
	if f.markUsedFn == nil {
		return true, nil
	}
	return f.markUsedFn(ctx, id)
}

func (f *fakeRepoDB) ResetSessionForResend(ctx context.Context, in entity.ResetSession) error {
	if f.resetForResendFn == nil {
		return nil
	}
	return f.resetForResendFn(ctx, in)
}

func (f *fakeRepoDB) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	if f.deleteExpiredFn == nil {
		return 0, nil
	}
	return f.deleteExpiredFn(ctx, before)
}

type fakeRepoMessaging struct {
	codeIssued []CodeIssuedEvent
	attempts   []VerificationAttemptEvent
	publishErr error
}

func (f *fakeRepoMessaging) PublishCodeIssued(ctx context.Context, msg CodeIssuedEvent) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.codeIssued = append(f.codeIssued, msg)
	return nil
}

func (f *fakeRepoMessaging) PublishVerificationAttempt(ctx context.Context, msg VerificationAttemptEvent) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.attempts = append(f.attempts, msg)
	return nil
}

type fakeIdempotency struct {
	err  error
	runs int
}

func (f *fakeIdempotency) Acquire(ctx context.Context, key string, lockDuration time.Duration) (idempotency.State, error) {
	return idempotency.StateNone, nil
}

func (f *fakeIdempotency) MarkCompleted(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (f *fakeIdempotency) MarkFailed(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (f *fakeIdempotency) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...idempotency.Option) error {
	if f.err != nil {
		return f.err
	}
	f.runs++
	return fn(ctx)
}

const testConfigYAML = `
modules:
  verification:
    session_max_attempts: 3
    session_ttl_minutes: 10
    cleanup_lock_ttl_seconds: 30
`

type testEnv struct {
	uc       *Usecase
	db       *fakeRepoDB
	msg      *fakeRepoMessaging
	idemp    *fakeIdempotency
	clock    *fakeClock
	totp     totp.OTP
	hmac     hash.Hash
	argon2id hash.Hash
	enc      mfa.Encryptor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	v10, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("NewV10Validator() error = %v", err)
	}

	cfg, err := config.NewViperFromBytes("yaml", []byte(testConfigYAML))
	if err != nil {
		t.Fatalf("NewViperFromBytes() error = %v", err)
	}
	t.Cleanup(func() { cfg.Close() })

	env := &testEnv{
		db:       &fakeRepoDB{},
		msg:      &fakeRepoMessaging{},
		idemp:    &fakeIdempotency{},
		clock:    &fakeClock{now: testNow},
		totp:     totp.NewEngine("GoVerify", 30, 1, 6),
		hmac:     hash.NewHMACSHA256("test-hmac-secret"),
		argon2id: hash.NewArgon2id("test-pepper"),
		enc:      mfa.NewAESGCMEncryptor(mfa.StaticKeyProvider{KeyBytes: []byte("0123456789abcdef0123456789abcdef")}),
	}

	env.uc = New(Dependency{
		RepoDB:          env.db,
		RepoMessaging:   env.msg,
		Idempotency:     env.idemp,
		Validator:       v10,
		Config:          cfg,
		HMAC:            env.hmac,
		Argon2ID:        env.argon2id,
		MFAEncryptor:    env.enc,
		MFARecoveryCode: mfa.NewRecoveryCode(10),
		MFACode:         mfa.NewNumericCode(6),
		UID:             &seqNumberID{},
		OID:             &fixedStringID{value: "tok-0001"},
		Totp:            env.totp,
		Clock:           env.clock,
		Instrument:      instrument.NewNoop(),
	})

	return env
}

func assertBusinessCode(t *testing.T, err error, want goerror.Code) {
	t.Helper()

	var gErr *goerror.Error
	if !errors.As(err, &gErr) {
		t.Fatalf("error = %v, want *goerror.Error", err)
	}
	if gErr.Code() != want {
		t.Fatalf("error code = %v, want %v", gErr.Code(), want)
	}
}

func (e *testEnv) enabledCredential(t *testing.T, accountID, secret string) *entity.Credential {
	t.Helper()

	sealed, err := e.enc.Encrypt([]byte(secret), mfa.Scope{AccountID: accountID, Purpose: mfa.PurposeOTPSecret})
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	confirmedAt := testNow.Add(-24 * time.Hour)

	return &entity.Credential{
		ID:          77,
		AccountID:   accountID,
		Secret:      sealed,
		KeyVersion:  1,
		Status:      entity.CredentialStatusEnabled,
		ConfirmedAt: &confirmedAt,
		UpdatedAt:   testNow,
	}
}

func TestUsecase_SetupBeginAndConfirm(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	var stored entity.Credential
	var storedCodes []entity.BackupCode
	env.db.upsertPendingFn = func(_ context.Context, cred entity.Credential, codes []entity.BackupCode) error {
		stored = cred
		storedCodes = codes
		return nil
	}

	// Act
	out, err := env.uc.SetupBegin(context.Background(), SetupBeginInput{
		AccountID:   "acc-1",
		AccountName: "user@example.com",
	})

	// Assert
	if err != nil {
		t.Fatalf("SetupBegin() error = %v", err)
	}
	if out.Secret == "" || !strings.HasPrefix(out.URI, "otpauth://totp/") {
		t.Fatalf("SetupBegin() = %+v, want secret and otpauth uri", out)
	}
	if stored.Status != entity.CredentialStatusPending {
		t.Fatalf("stored status = %v, want pending", stored.Status)
	}
	if string(stored.Secret) == out.Secret {
		t.Fatal("stored secret is plaintext, want sealed")
	}
	if len(out.BackupCodes) != 10 {
		t.Fatalf("backup codes = %d, want 10", len(out.BackupCodes))
	}
	if len(storedCodes) != 10 {
		t.Fatalf("persisted backup codes = %d, want 10", len(storedCodes))
	}
	for i, plain := range out.BackupCodes {
		if !env.argon2id.Verify(storedCodes[i].Code, plain) {
			t.Fatalf("backup code %d hash does not match plaintext", i)
		}
	}

	// Arrange confirm: the pending row now exists and the caller presents a
	// code generated from the plaintext secret.
	stored.AccountID = "acc-1"
	env.db.getCredentialFn = func(_ context.Context, _ string) (*entity.Credential, error) {
		return &stored, nil
	}
	var enabled entity.EnableCredential
	env.db.enableCredentialFn = func(_ context.Context, in entity.EnableCredential) error {
		enabled = in
		return nil
	}
	code, err := env.totp.GenerateCode(out.Secret, testNow)
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}

	// Act
	err = env.uc.SetupConfirm(context.Background(), SetupConfirmInput{AccountID: "acc-1", Code: code})

	// Assert
	if err != nil {
		t.Fatalf("SetupConfirm() error = %v", err)
	}
	if enabled.CredentialID != stored.ID {
		t.Fatalf("enabled credential id = %d, want %d", enabled.CredentialID, stored.ID)
	}
	if !enabled.ConfirmedAt.Equal(testNow) {
		t.Fatalf("confirmed at = %v, want %v", enabled.ConfirmedAt, testNow)
	}
}

func TestUsecase_SetupBeginAlreadyEnabled(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
		return env.enabledCredential(t, accountID, "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"), nil
	}

	// Act
	_, err := env.uc.SetupBegin(context.Background(), SetupBeginInput{
		AccountID:   "acc-1",
		AccountName: "user@example.com",
	})

	// Assert
	assertBusinessCode(t, err, goerror.CodeConflict)
}

func TestUsecase_SetupConfirmWrongCode(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	cred := env.enabledCredential(t, "acc-1", secret)
	cred.Status = entity.CredentialStatusPending
	env.db.getCredentialFn = func(_ context.Context, _ string) (*entity.Credential, error) {
		return cred, nil
	}

	// Act
	err := env.uc.SetupConfirm(context.Background(), SetupConfirmInput{AccountID: "acc-1", Code: "000000"})

	// Assert
	assertBusinessCode(t, err, goerror.CodeUnauthorized)
}

func TestUsecase_Validate(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

	t.Run("accepts current totp code", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, secret), nil
		}
		code, err := env.totp.GenerateCode(secret, testNow)
		if err != nil {
			t.Fatalf("GenerateCode() error = %v", err)
		}

		// Act
		out, err := env.uc.Validate(context.Background(), ValidateInput{AccountID: "acc-1", Code: code})

		// Assert
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if out.Method != MethodTOTP {
			t.Fatalf("method = %q, want %q", out.Method, MethodTOTP)
		}
		if len(env.msg.attempts) != 1 || !env.msg.attempts[0].Accepted {
			t.Fatalf("attempts = %+v, want one accepted", env.msg.attempts)
		}
	})

	t.Run("falls back to backup code", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, secret), nil
		}
		hashed, err := env.argon2id.Hash("A1B2-C3D4")
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		env.db.getUnusedCodesFn = func(_ context.Context, _ string) ([]entity.BackupCode, error) {
			return []entity.BackupCode{{ID: 5, AccountID: "acc-1", Code: string(hashed)}}, nil
		}
		var consumedID int64
		env.db.markCodeUsedFn = func(_ context.Context, bcID int64, _ string) (bool, error) {
			consumedID = bcID
			return true, nil
		}

		// Act: lowercase without the dash still matches after normalization.
		out, err := env.uc.Validate(context.Background(), ValidateInput{AccountID: "acc-1", Code: "a1b2c3d4"})

		// Assert
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if out.Method != MethodBackupCode {
			t.Fatalf("method = %q, want %q", out.Method, MethodBackupCode)
		}
		if consumedID != 5 {
			t.Fatalf("consumed backup code id = %d, want 5", consumedID)
		}
	})

	t.Run("loses the race for a backup code consumed concurrently", func(t *testing.T) {
		// Arrange: the hash matches but the conditional mark-used update
		// reports the row was already burned by another request.
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, secret), nil
		}
		hashed, err := env.argon2id.Hash("A1B2-C3D4")
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		env.db.getUnusedCodesFn = func(_ context.Context, _ string) ([]entity.BackupCode, error) {
			return []entity.BackupCode{{ID: 5, AccountID: "acc-1", Code: string(hashed)}}, nil
		}
		env.db.markCodeUsedFn = func(_ context.Context, _ int64, _ string) (bool, error) {
			return false, nil
		}

		// Act
		_, err = env.uc.Validate(context.Background(), ValidateInput{AccountID: "acc-1", Code: "A1B2-C3D4"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
		if len(env.msg.attempts) != 1 || env.msg.attempts[0].Accepted {
			t.Fatalf("attempts = %+v, want one rejected", env.msg.attempts)
		}
	})

	t.Run("rejects a backup code that was already consumed", func(t *testing.T) {
		// Arrange: a burned code no longer appears in the unused set.
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, secret), nil
		}
		env.db.getUnusedCodesFn = func(_ context.Context, _ string) ([]entity.BackupCode, error) {
			return nil, nil
		}
		env.db.markCodeUsedFn = func(_ context.Context, _ int64, _ string) (bool, error) {
			t.Fatal("mark used must not run for a code outside the unused set")
			return false, nil
		}

		// Act
		_, err := env.uc.Validate(context.Background(), ValidateInput{AccountID: "acc-1", Code: "A1B2-C3D4"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("rejects unknown code and records the attempt", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, secret), nil
		}

		// Act
		_, err := env.uc.Validate(context.Background(), ValidateInput{AccountID: "acc-1", Code: "999999"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
		if len(env.msg.attempts) != 1 || env.msg.attempts[0].Accepted {
			t.Fatalf("attempts = %+v, want one rejected", env.msg.attempts)
		}
	})

	t.Run("refuses when enrollment is not enabled", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			cred := env.enabledCredential(t, accountID, secret)
			cred.Status = entity.CredentialStatusPending
			return cred, nil
		}

		// Act
		_, err := env.uc.Validate(context.Background(), ValidateInput{AccountID: "acc-1", Code: "123456"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeForbidden)
	})
}

func TestUsecase_Status(t *testing.T) {
	t.Run("unconfigured account", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)

		// Act
		out, err := env.uc.Status(context.Background(), StatusInput{AccountID: "acc-1"})

		// Assert
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if out.Configured || out.Enabled {
			t.Fatalf("Status() = %+v, want unconfigured", out)
		}
	})

	t.Run("enabled account reports remaining backup codes", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"), nil
		}
		env.db.countUnusedCodesFn = func(_ context.Context, _ string) (int64, error) {
			return 7, nil
		}

		// Act
		out, err := env.uc.Status(context.Background(), StatusInput{AccountID: "acc-1"})

		// Assert
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if !out.Configured || !out.Enabled || !out.Verified || out.BackupCodesRemaining != 7 {
			t.Fatalf("Status() = %+v, want enabled with 7 codes left", out)
		}
	})
}

func TestUsecase_SessionCreate(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	var stored entity.Session
	env.db.createSessionFn = func(_ context.Context, sess entity.Session) error {
		stored = sess
		return nil
	}

	// Act
	out, err := env.uc.SessionCreate(context.Background(), SessionCreateInput{
		AccountID: "acc-1",
		Purpose:   "password_reset",
		Channel:   entity.ChannelEmail,
		Target:    "user@example.com",
	})

	// Assert
	if err != nil {
		t.Fatalf("SessionCreate() error = %v", err)
	}
	if out.Token != "tok-0001" {
		t.Fatalf("token = %q, want the minted session token", out.Token)
	}
	if out.MaskedTarget != "************.com" {
		t.Fatalf("masked target = %q", out.MaskedTarget)
	}
	if got, want := out.ExpiresAt, testNow.Add(10*time.Minute); !got.Equal(want) {
		t.Fatalf("expires at = %v, want %v", got, want)
	}
	if stored.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", stored.MaxAttempts)
	}
	if !env.hmac.Verify(stored.TokenHash, out.Token) {
		t.Fatal("stored token hash does not match the issued token")
	}

	if len(env.msg.codeIssued) != 1 {
		t.Fatalf("code issued events = %d, want 1", len(env.msg.codeIssued))
	}
	ev := env.msg.codeIssued[0]
	if !env.hmac.Verify(stored.CodeHash, ev.Code) {
		t.Fatal("stored code hash does not match the delivered code")
	}
	if ev.Target != "user@example.com" || ev.Channel != entity.ChannelEmail {
		t.Fatalf("event = %+v, want delivery target and channel", ev)
	}
}

func TestUsecase_SessionVerify(t *testing.T) {
	newSession := func(env *testEnv, code string) *entity.Session {
		codeHash, err := env.hmac.Hash(code)
		if err != nil {
			panic(err)
		}
		return &entity.Session{
			ID:          11,
			AccountID:   "acc-1",
			CodeHash:    string(codeHash),
			Purpose:     "password_reset",
			Channel:     entity.ChannelEmail,
			Target:      "user@example.com",
			MaxAttempts: 3,
			ExpiresAt:   testNow.Add(10 * time.Minute),
			CreatedAt:   testNow,
		}
	}

	t.Run("accepts the delivered code", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		sess := newSession(env, "482916")
		env.db.getSessionFn = func(_ context.Context, _ string) (*entity.Session, error) {
			return sess, nil
		}

		// Act
		out, err := env.uc.SessionVerify(context.Background(), SessionVerifyInput{Token: "tok-0001", Code: "482916"})

		// Assert
		if err != nil {
			t.Fatalf("SessionVerify() error = %v", err)
		}
		if out.AccountID != "acc-1" || out.Purpose != "password_reset" {
			t.Fatalf("SessionVerify() = %+v", out)
		}
		if len(env.msg.attempts) != 1 || !env.msg.attempts[0].Accepted {
			t.Fatalf("attempts = %+v, want one accepted", env.msg.attempts)
		}
	})

	t.Run("rejects the wrong code and counts the attempt", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		sess := newSession(env, "482916")
		env.db.getSessionFn = func(_ context.Context, _ string) (*entity.Session, error) {
			return sess, nil
		}
		var bumped bool
		env.db.incrementAttemptsFn = func(_ context.Context, _ int64) (int16, error) {
			bumped = true
			return 1, nil
		}

		// Act
		_, err := env.uc.SessionVerify(context.Background(), SessionVerifyInput{Token: "tok-0001", Code: "000000"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
		if !bumped {
			t.Fatal("attempt counter was not incremented")
		}
	})

	t.Run("locks after the attempt limit even with the right code", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		sess := newSession(env, "482916")
		env.db.getSessionFn = func(_ context.Context, _ string) (*entity.Session, error) {
			return sess, nil
		}
		env.db.incrementAttemptsFn = func(_ context.Context, _ int64) (int16, error) {
			return 4, nil
		}

		// Act
		_, err := env.uc.SessionVerify(context.Background(), SessionVerifyInput{Token: "tok-0001", Code: "482916"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeTooManyRequest)
	})

	t.Run("rejects an expired session", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		sess := newSession(env, "482916")
		sess.ExpiresAt = testNow.Add(-time.Minute)
		env.db.getSessionFn = func(_ context.Context, _ string) (*entity.Session, error) {
			return sess, nil
		}

		// Act
		_, err := env.uc.SessionVerify(context.Background(), SessionVerifyInput{Token: "tok-0001", Code: "482916"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("rejects a consumed session", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		sess := newSession(env, "482916")
		sess.Used = true
		env.db.getSessionFn = func(_ context.Context, _ string) (*entity.Session, error) {
			return sess, nil
		}

		// Act
		_, err := env.uc.SessionVerify(context.Background(), SessionVerifyInput{Token: "tok-0001", Code: "482916"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeConflict)
	})

	t.Run("rejects an unknown token", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)

		// Act
		_, err := env.uc.SessionVerify(context.Background(), SessionVerifyInput{Token: "tok-unknown", Code: "482916"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
	})
}

func TestUsecase_SessionResend(t *testing.T) {
	t.Run("replaces the code and pushes out the expiry", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		sess := &entity.Session{
			ID:          11,
			AccountID:   "acc-1",
			CodeHash:    "old-hash",
			Channel:     entity.ChannelSMS,
			Target:      "+15550100",
			MaxAttempts: 3,
			ExpiresAt:   testNow.Add(time.Minute),
			CreatedAt:   testNow,
		}
		env.db.getSessionFn = func(_ context.Context, _ string) (*entity.Session, error) {
			return sess, nil
		}
		var reset entity.ResetSession
		env.db.resetForResendFn = func(_ context.Context, in entity.ResetSession) error {
			reset = in
			return nil
		}

		// Act
		err := env.uc.SessionResend(context.Background(), SessionResendInput{Token: "tok-0001"})

		// Assert
		if err != nil {
			t.Fatalf("SessionResend() error = %v", err)
		}
		if reset.CodeHash == "old-hash" {
			t.Fatal("code hash was not replaced")
		}
		if got, want := reset.ExpiresAt, testNow.Add(10*time.Minute); !got.Equal(want) {
			t.Fatalf("expires at = %v, want %v", got, want)
		}
		if len(env.msg.codeIssued) != 1 {
			t.Fatalf("code issued events = %d, want 1", len(env.msg.codeIssued))
		}
		if !env.hmac.Verify(reset.CodeHash, env.msg.codeIssued[0].Code) {
			t.Fatal("stored code hash does not match the delivered code")
		}
	})

	t.Run("refuses a closed session", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getSessionFn = func(_ context.Context, _ string) (*entity.Session, error) {
			return &entity.Session{ID: 11, Verified: true}, nil
		}

		// Act
		err := env.uc.SessionResend(context.Background(), SessionResendInput{Token: "tok-0001"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeConflict)
	})

	t.Run("refuses an expired session", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getSessionFn = func(_ context.Context, _ string) (*entity.Session, error) {
			return &entity.Session{ID: 11, ExpiresAt: testNow.Add(-time.Second)}, nil
		}
		env.db.resetForResendFn = func(_ context.Context, _ entity.ResetSession) error {
			t.Fatal("reset must not run for an expired session")
			return nil
		}

		// Act
		err := env.uc.SessionResend(context.Background(), SessionResendInput{Token: "tok-0001"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
		if len(env.msg.codeIssued) != 0 {
			t.Fatalf("code issued events = %d, want none", len(env.msg.codeIssued))
		}
	})
}

func TestUsecase_SessionMarkUsed(t *testing.T) {
	t.Run("consumes a verified session", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getSessionFn = func(_ context.Context, _ string) (*entity.Session, error) {
			return &entity.Session{ID: 11, AccountID: "acc-1", Purpose: "password_reset", Verified: true}, nil
		}

		// Act
		out, err := env.uc.SessionMarkUsed(context.Background(), SessionMarkUsedInput{Token: "tok-0001"})

		// Assert
		if err != nil {
			t.Fatalf("SessionMarkUsed() error = %v", err)
		}
		if out.AccountID != "acc-1" || out.Purpose != "password_reset" {
			t.Fatalf("SessionMarkUsed() = %+v", out)
		}
	})

	t.Run("refuses an unverified session", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getSessionFn = func(_ context.Context, _ string) (*entity.Session, error) {
			return &entity.Session{ID: 11}, nil
		}

		// Act
		_, err := env.uc.SessionMarkUsed(context.Background(), SessionMarkUsedInput{Token: "tok-0001"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeForbidden)
	})

	t.Run("loses the race to another consumer", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getSessionFn = func(_ context.Context, _ string) (*entity.Session, error) {
			return &entity.Session{ID: 11, Verified: true}, nil
		}
		env.db.markUsedFn = func(_ context.Context, _ int64) (bool, error) {
			return false, nil
		}

		// Act
		_, err := env.uc.SessionMarkUsed(context.Background(), SessionMarkUsedInput{Token: "tok-0001"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeConflict)
	})
}

func TestUsecase_BackupRegenerate(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

	t.Run("replaces the whole set with a valid totp proof", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, secret), nil
		}
		var replaced []entity.BackupCode
		env.db.replaceCodesFn = func(_ context.Context, _ string, codes []entity.BackupCode) error {
			replaced = codes
			return nil
		}
		code, err := env.totp.GenerateCode(secret, testNow)
		if err != nil {
			t.Fatalf("GenerateCode() error = %v", err)
		}

		// Act
		out, err := env.uc.BackupRegenerate(context.Background(), BackupRegenerateInput{AccountID: "acc-1", Code: code})

		// Assert
		if err != nil {
			t.Fatalf("BackupRegenerate() error = %v", err)
		}
		if len(out.BackupCodes) != 10 || len(replaced) != 10 {
			t.Fatalf("codes = %d returned, %d persisted, want 10 of each", len(out.BackupCodes), len(replaced))
		}
	})

	t.Run("rejects a wrong totp proof and records the attempt", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, secret), nil
		}
		env.db.replaceCodesFn = func(_ context.Context, _ string, _ []entity.BackupCode) error {
			t.Fatal("replace must not run without a valid proof")
			return nil
		}

		// Act
		_, err := env.uc.BackupRegenerate(context.Background(), BackupRegenerateInput{AccountID: "acc-1", Code: "000000"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
		if len(env.msg.attempts) != 1 || env.msg.attempts[0].Accepted {
			t.Fatalf("attempts = %+v, want one rejected", env.msg.attempts)
		}
	})
}

func TestUsecase_BackupConsume(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

	t.Run("burns a code and reports the remainder", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, secret), nil
		}
		hashed, err := env.argon2id.Hash("A1B2-C3D4")
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		env.db.getUnusedCodesFn = func(_ context.Context, _ string) ([]entity.BackupCode, error) {
			return []entity.BackupCode{{ID: 5, AccountID: "acc-1", Code: string(hashed)}}, nil
		}
		env.db.markCodeUsedFn = func(_ context.Context, _ int64, _ string) (bool, error) {
			return true, nil
		}
		env.db.countUnusedCodesFn = func(_ context.Context, _ string) (int64, error) {
			return 6, nil
		}

		// Act
		out, err := env.uc.BackupConsume(context.Background(), BackupConsumeInput{AccountID: "acc-1", Code: "a1b2c3d4"})

		// Assert
		if err != nil {
			t.Fatalf("BackupConsume() error = %v", err)
		}
		if out.Remaining != 6 {
			t.Fatalf("remaining = %d, want 6", out.Remaining)
		}
		if len(env.msg.attempts) != 1 || !env.msg.attempts[0].Accepted {
			t.Fatalf("attempts = %+v, want one accepted", env.msg.attempts)
		}
	})

	t.Run("rejects an unknown code", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, secret), nil
		}

		// Act
		_, err := env.uc.BackupConsume(context.Background(), BackupConsumeInput{AccountID: "acc-1", Code: "ZZZZ-ZZZZ"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
	})
}

func TestUsecase_Disable(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

	t.Run("deletes the enrollment with a valid totp proof", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, secret), nil
		}
		var deleted string
		env.db.deleteCredentialFn = func(_ context.Context, accountID string) error {
			deleted = accountID
			return nil
		}
		code, err := env.totp.GenerateCode(secret, testNow)
		if err != nil {
			t.Fatalf("GenerateCode() error = %v", err)
		}

		// Act
		err = env.uc.Disable(context.Background(), DisableInput{AccountID: "acc-1", Code: code})

		// Assert
		if err != nil {
			t.Fatalf("Disable() error = %v", err)
		}
		if deleted != "acc-1" {
			t.Fatalf("deleted account = %q, want acc-1", deleted)
		}
	})

	t.Run("refuses a wrong totp proof", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			return env.enabledCredential(t, accountID, secret), nil
		}
		env.db.deleteCredentialFn = func(_ context.Context, _ string) error {
			t.Fatal("delete must not run without a valid proof")
			return nil
		}

		// Act
		err := env.uc.Disable(context.Background(), DisableInput{AccountID: "acc-1", Code: "000000"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("refuses when enrollment is not enabled", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.db.getCredentialFn = func(_ context.Context, accountID string) (*entity.Credential, error) {
			cred := env.enabledCredential(t, accountID, secret)
			cred.Status = entity.CredentialStatusPending
			return cred, nil
		}

		// Act
		err := env.uc.Disable(context.Background(), DisableInput{AccountID: "acc-1", Code: "123456"})

		// Assert
		assertBusinessCode(t, err, goerror.CodeForbidden)
	})
}

func TestUsecase_SessionCleanup(t *testing.T) {
	t.Run("sweeps expired sessions under the lock", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		var sweptBefore time.Time
		env.db.deleteExpiredFn = func(_ context.Context, before time.Time) (int64, error) {
			sweptBefore = before
			return 3, nil
		}

		// Act
		err := env.uc.SessionCleanup(context.Background())

		// Assert
		if err != nil {
			t.Fatalf("SessionCleanup() error = %v", err)
		}
		if env.idemp.runs != 1 {
			t.Fatalf("lock executions = %d, want 1", env.idemp.runs)
		}
		if !sweptBefore.Equal(testNow) {
			t.Fatalf("swept before = %v, want %v", sweptBefore, testNow)
		}
	})

	t.Run("skips quietly when another instance holds the lock", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		env.idemp.err = idempotency.ErrAlreadyInProgress

		// Act
		err := env.uc.SessionCleanup(context.Background())

		// Assert
		if err != nil {
			t.Fatalf("SessionCleanup() error = %v, want nil on lock contention", err)
		}
	})
}
