package mfa

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// RecoveryCodeGenerator defines an interface for generating MFA backup codes.
type RecoveryCodeGenerator interface {
	// Generate returns a slice of unique backup codes or an error if the
	// random source fails.
	Generate() ([]string, error)
}

// RecoveryCode generates cryptographically secure MFA backup codes.
//
// It produces codes formatted as:
//
//	XXXX-XXXX
//
// where X is an uppercase hex character. Each code carries 32 bits of
// entropy drawn from crypto/rand.
type RecoveryCode struct {
	count int
}

// NewRecoveryCode returns a RecoveryCode generator producing count codes
// per set. A count below 1 falls back to 10.
func NewRecoveryCode(count int) *RecoveryCode {
	if count < 1 {
		count = 10
	}
	return &RecoveryCode{count: count}
}

// Generate produces a set of unique backup codes.
func (rc *RecoveryCode) Generate() ([]string, error) {
	out := make([]string, 0, rc.count)
	seen := make(map[string]struct{}, rc.count)

	for len(out) < rc.count {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}

		// extremely unlikely, but prevents accidental duplicates
		if _, ok := seen[code]; ok {
			continue
		}

		seen[code] = struct{}{}
		out = append(out, code)
	}

	return out, nil
}

func generateCode() (string, error) {
	raw := make([]byte, 4)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	s := strings.ToUpper(hex.EncodeToString(raw))

	return s[0:4] + "-" + s[4:8], nil
}

// NormalizeRecoveryCode canonicalizes user input before comparison: it
// uppercases the code and strips separators and surrounding whitespace, so
// "a1b2 c3d4" and "A1B2-C3D4" hash identically.
func NormalizeRecoveryCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")

	if len(code) == 8 {
		return code[0:4] + "-" + code[4:8]
	}

	return code
}
