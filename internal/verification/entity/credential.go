package entity

import "time"

// Credential is the per-account TOTP enrollment record. Secret holds the
// AES-GCM ciphertext of the base32 shared secret, never the plaintext.
type Credential struct {
	ID          int64
	AccountID   string
	Secret      []byte
	KeyVersion  int16 // key rotation version
	Status      CredentialStatus
	ConfirmedAt *time.Time
	LastUsedAt  *time.Time
	UpdatedAt   time.Time
}

// BackupCode is a single-use recovery code. Code holds the argon2id hash.
type BackupCode struct {
	ID        int64
	AccountID string
	Code      string
	Used      bool
	UsedAt    *time.Time
}

// EnableCredential carries the transition from pending to enabled once
// the authenticator has produced a valid code.
type EnableCredential struct {
	CredentialID int64
	AccountID    string
	ConfirmedAt  time.Time
}
