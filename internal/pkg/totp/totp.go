package totp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	secretBytes    = 20 // 160-bit secrets per RFC 4226 recommendation
	minSecretBytes = 16 // anything below 128 bits is rejected outright

	defaultPeriod = 30
	defaultSkew   = 1
	defaultDigits = 6
)

var (
	// ErrInvalidSecret indicates the secret is not valid unpadded base32.
	ErrInvalidSecret = errors.New("totp: secret is not valid base32")
	// ErrSecretTooShort indicates the decoded secret is below 128 bits.
	ErrSecretTooShort = errors.New("totp: secret is shorter than 128 bits")
	// ErrMissingAccountName indicates no account label was supplied for the URI.
	ErrMissingAccountName = errors.New("totp: account name is empty")
)

var secretPattern = regexp.MustCompile(`^[A-Z2-7]+$`)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// OTP defines the contract for time-based one-time password operations.
type OTP interface {
	// GenerateSecret creates a new random base32-encoded shared secret.
	GenerateSecret() (string, error)
	// GenerateCode derives the code for the window containing the given time.
	GenerateCode(secret string, at time.Time) (string, error)
	// Validate checks a code against the secret within the drift window.
	Validate(code, secret string, at time.Time) bool
	// ProvisioningURI builds an otpauth:// URI for authenticator apps.
	ProvisioningURI(secret, accountName string) (string, error)
}

// Engine implements OTP using HMAC-SHA1 with dynamic truncation.
type Engine struct {
	issuer string
	period int64
	skew   int
	digits int
}

// NewEngine constructs an Engine with sensible defaults.
//
// If digits is not 6 or 8, it falls back to 6 digits. A zero period uses the
// common 30-second window. A negative skew falls back to one step of drift
// on either side; zero is honored and disables drift tolerance entirely.
func NewEngine(issuer string, period, skew, digits int) *Engine {
	if digits != 6 && digits != 8 {
		digits = defaultDigits
	}

	if period <= 0 {
		period = defaultPeriod
	}

	if skew < 0 {
		skew = defaultSkew
	}

	return &Engine{
		issuer: issuer,
		period: int64(period),
		skew:   skew,
		digits: digits,
	}
}

// GenerateSecret creates a new random base32-encoded shared secret.
func (e *Engine) GenerateSecret() (string, error) {
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("totp: generate secret: %w", err)
	}

	return b32.EncodeToString(secret), nil
}

// GenerateCode derives the code for the window containing the given time.
//
// The result is zero-padded to the configured digit length.
func (e *Engine) GenerateCode(secret string, at time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}

	code := hotp(key, at.Unix()/e.period, e.digits)

	return fmt.Sprintf("%0*d", e.digits, code), nil
}

// Validate checks a code against the secret within the drift window.
//
// The code must be exactly the configured number of decimal digits. Every
// window from -skew to +skew steps around the given time is tried, so a code
// from an adjacent step still verifies.
func (e *Engine) Validate(code, secret string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != e.digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return false
	}

	counter := at.Unix() / e.period
	for i := -e.skew; i <= e.skew; i++ {
		want := fmt.Sprintf("%0*d", e.digits, hotp(key, counter+int64(i), e.digits))
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return true
		}
	}

	return false
}

// ProvisioningURI builds an otpauth:// URI for authenticator apps.
//
// The format follows the Key Uri specification used by Google Authenticator:
// otpauth://totp/Issuer:account?secret=...&issuer=...
func (e *Engine) ProvisioningURI(secret, accountName string) (string, error) {
	if _, err := decodeSecret(secret); err != nil {
		return "", err
	}

	if strings.TrimSpace(accountName) == "" {
		return "", ErrMissingAccountName
	}

	label := fmt.Sprintf("%s:%s", url.PathEscape(e.issuer), url.PathEscape(accountName))

	query := url.Values{}
	query.Set("secret", strings.ToUpper(strings.TrimSpace(secret)))
	query.Set("issuer", e.issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", strconv.Itoa(e.digits))
	query.Set("period", strconv.FormatInt(e.period, 10))

	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode()), nil
}

func decodeSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	if !secretPattern.MatchString(secret) {
		return nil, ErrInvalidSecret
	}

	key, err := b32.DecodeString(secret)
	if err != nil {
		return nil, ErrInvalidSecret
	}

	if len(key) < minSecretBytes {
		return nil, ErrSecretTooShort
	}

	return key, nil
}
