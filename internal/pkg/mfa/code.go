package mfa

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeGenerator defines an interface for generating delivery OTP codes.
type CodeGenerator interface {
	// Generate returns a fresh numeric one-time code.
	Generate() (string, error)
}

// NumericCode generates fixed-length numeric one-time codes for delivery
// over out-of-band channels. Unlike TOTP codes these are pure random values
// with no derivation from a shared secret.
type NumericCode struct {
	length int
}

// NewNumericCode returns a NumericCode generator. Lengths outside 4..10
// fall back to 6 digits.
func NewNumericCode(length int) *NumericCode {
	if length < 4 || length > 10 {
		length = 6
	}
	return &NumericCode{length: length}
}

// Generate produces a zero-padded numeric code of the configured length.
func (nc *NumericCode) Generate() (string, error) {
	bound := big.NewInt(10)
	bound.Exp(bound, big.NewInt(int64(nc.length)), nil)

	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", nc.length, n), nil
}
