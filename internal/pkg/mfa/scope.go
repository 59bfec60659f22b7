package mfa

// Purpose identifies the MFA encryption purpose.
type Purpose string

const (
	// PurposeOTPSecret scopes encryption to TOTP shared secrets.
	PurposeOTPSecret Purpose = "otp_secret"
)

// Scope binds encryption to MFA-specific identifiers.
// This is used as AAD (Additional Authenticated Data) in AES-GCM.
type Scope struct {
	// AccountID is the external account identifier for scoping.
	AccountID string
	// Purpose is the encryption purpose.
	Purpose Purpose
}
