package totp

import (
	"strings"
	"testing"
	"time"

	potp "github.com/pquerna/otp"
	ptotp "github.com/pquerna/otp/totp"
)

// rfcSecret is the base32 encoding of the ASCII key "12345678901234567890"
// used by the RFC 6238 appendix B test vectors.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestEngineGenerateSecret(t *testing.T) {
	// Arrange
	e := NewEngine("GoVerify", 30, 1, 6)

	// Act
	first, err1 := e.GenerateSecret()
	second, err2 := e.GenerateSecret()

	// Assert
	if err1 != nil || err2 != nil {
		t.Fatalf("generate secret failed: err1=%v err2=%v", err1, err2)
	}
	if len(first) != 32 {
		t.Fatalf("secret length = %d, want 32 base32 chars for 20 bytes", len(first))
	}
	if first == second {
		t.Fatalf("two generated secrets are identical: %s", first)
	}
	if _, err := decodeSecret(first); err != nil {
		t.Fatalf("generated secret does not decode: %v", err)
	}
}

func TestEngineGenerateCodeRFCVectors(t *testing.T) {
	// Arrange
	e := NewEngine("GoVerify", 30, 1, 8)
	vectors := []struct {
		unix int64
		want string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, v := range vectors {
		// Act
		got, err := e.GenerateCode(rfcSecret, time.Unix(v.unix, 0))

		// Assert
		if err != nil {
			t.Fatalf("generate code at %d failed: %v", v.unix, err)
		}
		if got != v.want {
			t.Fatalf("code at %d = %s, want %s", v.unix, got, v.want)
		}
	}
}

func TestEngineGenerateCodeZeroPadding(t *testing.T) {
	// Arrange
	e := NewEngine("GoVerify", 30, 1, 6)

	// Act: t=59 yields 94287082 for 8 digits, so 6 digits must be "287082".
	got, err := e.GenerateCode(rfcSecret, time.Unix(59, 0))

	// Assert
	if err != nil {
		t.Fatalf("generate code failed: %v", err)
	}
	if got != "287082" {
		t.Fatalf("code = %s, want 287082", got)
	}
	if len(got) != 6 {
		t.Fatalf("code length = %d, want 6", len(got))
	}
}

func TestEngineAgainstReferenceLibrary(t *testing.T) {
	// Arrange
	e := NewEngine("GoVerify", 30, 1, 6)
	secret, err := e.GenerateSecret()
	if err != nil {
		t.Fatalf("generate secret failed: %v", err)
	}

	for _, at := range []time.Time{
		time.Unix(1700000000, 0),
		time.Unix(1700000029, 0),
		time.Unix(1899999999, 0),
	} {
		// Act
		got, err := e.GenerateCode(secret, at)
		if err != nil {
			t.Fatalf("generate code failed: %v", err)
		}
		want, err := ptotp.GenerateCodeCustom(secret, at, ptotp.ValidateOpts{
			Period:    30,
			Digits:    potp.DigitsSix,
			Algorithm: potp.AlgorithmSHA1,
		})
		if err != nil {
			t.Fatalf("reference generate failed: %v", err)
		}

		// Assert
		if got != want {
			t.Fatalf("code at %d = %s, reference = %s", at.Unix(), got, want)
		}
	}
}

func TestEngineValidate(t *testing.T) {
	e := NewEngine("GoVerify", 30, 1, 6)
	now := time.Unix(1700000015, 0)

	code, err := e.GenerateCode(rfcSecret, now)
	if err != nil {
		t.Fatalf("generate code failed: %v", err)
	}

	t.Run("current window", func(t *testing.T) {
		if !e.Validate(code, rfcSecret, now) {
			t.Fatalf("code %s rejected in its own window", code)
		}
	})

	t.Run("previous window within skew", func(t *testing.T) {
		if !e.Validate(code, rfcSecret, now.Add(30*time.Second)) {
			t.Fatalf("code %s rejected one step late", code)
		}
	})

	t.Run("next window within skew", func(t *testing.T) {
		if !e.Validate(code, rfcSecret, now.Add(-30*time.Second)) {
			t.Fatalf("code %s rejected one step early", code)
		}
	})

	t.Run("outside skew", func(t *testing.T) {
		if e.Validate(code, rfcSecret, now.Add(90*time.Second)) {
			t.Fatalf("code %s accepted two steps late", code)
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		if e.Validate(code+"1", rfcSecret, now) {
			t.Fatalf("7-digit code accepted by 6-digit engine")
		}
	})

	t.Run("non numeric", func(t *testing.T) {
		if e.Validate("12a456", rfcSecret, now) {
			t.Fatalf("non-numeric code accepted")
		}
	})

	t.Run("bad secret", func(t *testing.T) {
		if e.Validate(code, "not base32!", now) {
			t.Fatalf("code accepted against malformed secret")
		}
	})
}

func TestEngineValidateZeroSkew(t *testing.T) {
	// Arrange: skew 0 means only the exact current window counts.
	e := NewEngine("GoVerify", 30, 0, 6)
	stepStart := time.Unix(1700000010, 0)

	code, err := e.GenerateCode(rfcSecret, stepStart)
	if err != nil {
		t.Fatalf("generate code failed: %v", err)
	}

	t.Run("current window still accepted", func(t *testing.T) {
		if !e.Validate(code, rfcSecret, stepStart.Add(29*time.Second)) {
			t.Fatalf("code %s rejected inside its own window", code)
		}
	})

	t.Run("one second past the window is rejected", func(t *testing.T) {
		if e.Validate(code, rfcSecret, stepStart.Add(31*time.Second)) {
			t.Fatalf("code %s accepted after its window with zero drift tolerance", code)
		}
	})

	t.Run("one step early is rejected", func(t *testing.T) {
		if e.Validate(code, rfcSecret, stepStart.Add(-1*time.Second)) {
			t.Fatalf("code %s accepted before its window with zero drift tolerance", code)
		}
	})
}

func TestEngineSecretRules(t *testing.T) {
	e := NewEngine("GoVerify", 30, 1, 6)

	t.Run("short secret rejected", func(t *testing.T) {
		// "JBSWY3DP" decodes to 5 bytes, far below the 128-bit floor.
		if _, err := e.GenerateCode("JBSWY3DP", time.Unix(59, 0)); err != ErrSecretTooShort {
			t.Fatalf("err = %v, want ErrSecretTooShort", err)
		}
	})

	t.Run("invalid alphabet rejected", func(t *testing.T) {
		if _, err := e.GenerateCode("01010101!!", time.Unix(59, 0)); err != ErrInvalidSecret {
			t.Fatalf("err = %v, want ErrInvalidSecret", err)
		}
	})

	t.Run("lowercase normalized", func(t *testing.T) {
		got, err := e.GenerateCode(strings.ToLower(rfcSecret), time.Unix(59, 0))
		if err != nil {
			t.Fatalf("lowercase secret failed: %v", err)
		}
		if got != "287082" {
			t.Fatalf("code = %s, want 287082", got)
		}
	})
}

func TestEngineProvisioningURI(t *testing.T) {
	// Arrange
	e := NewEngine("Go Verify", 30, 1, 6)

	// Act
	uri, err := e.ProvisioningURI(rfcSecret, "alice@example.com")

	// Assert
	if err != nil {
		t.Fatalf("provisioning uri failed: %v", err)
	}
	if !strings.HasPrefix(uri, "otpauth://totp/Go%20Verify:alice@example.com?") {
		t.Fatalf("uri label malformed: %s", uri)
	}
	for _, part := range []string{
		"secret=" + rfcSecret,
		"issuer=Go+Verify",
		"algorithm=SHA1",
		"digits=6",
		"period=30",
	} {
		if !strings.Contains(uri, part) {
			t.Fatalf("uri missing %q: %s", part, uri)
		}
	}

	t.Run("reference library parses it", func(t *testing.T) {
		key, err := potp.NewKeyFromURL(uri)
		if err != nil {
			t.Fatalf("reference parse failed: %v", err)
		}
		if key.Secret() != rfcSecret {
			t.Fatalf("parsed secret = %s, want %s", key.Secret(), rfcSecret)
		}
		if key.Issuer() != "Go Verify" {
			t.Fatalf("parsed issuer = %s, want Go Verify", key.Issuer())
		}
		if key.AccountName() != "alice@example.com" {
			t.Fatalf("parsed account = %s, want alice@example.com", key.AccountName())
		}
	})

	t.Run("empty account rejected", func(t *testing.T) {
		if _, err := e.ProvisioningURI(rfcSecret, "  "); err != ErrMissingAccountName {
			t.Fatalf("err = %v, want ErrMissingAccountName", err)
		}
	})
}
