package mfa

import (
	"bytes"
	"strings"
	"testing"
)

func TestRecoveryCodeGenerate(t *testing.T) {
	// Arrange
	gen := NewRecoveryCode(10)

	// Act
	codes, err := gen.Generate()

	// Assert
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("got %d codes, want 10", len(codes))
	}

	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if len(c) != 9 || c[4] != '-' {
			t.Fatalf("code %q is not in XXXX-XXXX form", c)
		}
		for _, r := range strings.ReplaceAll(c, "-", "") {
			if !strings.ContainsRune("0123456789ABCDEF", r) {
				t.Fatalf("code %q contains non-hex character %q", c, r)
			}
		}
		if _, ok := seen[c]; ok {
			t.Fatalf("duplicate code in one set: %q", c)
		}
		seen[c] = struct{}{}
	}
}

func TestRecoveryCodeCountFallback(t *testing.T) {
	gen := NewRecoveryCode(0)

	codes, err := gen.Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("got %d codes, want fallback of 10", len(codes))
	}
}

func TestNormalizeRecoveryCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"A1B2-C3D4", "A1B2-C3D4"},
		{"a1b2c3d4", "A1B2-C3D4"},
		{" a1b2 c3d4 ", "A1B2-C3D4"},
		{"a1-b2-c3-d4", "A1B2-C3D4"},
		{"short", "SHORT"},
	}

	for _, c := range cases {
		if got := NormalizeRecoveryCode(c.in); got != c.want {
			t.Fatalf("normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNumericCodeGenerate(t *testing.T) {
	gen := NewNumericCode(6)

	for range 50 {
		code, err := gen.Generate()
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q length = %d, want 6", code, len(code))
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q contains non-digit %q", code, r)
			}
		}
	}
}

func TestNumericCodeLengthFallback(t *testing.T) {
	gen := NewNumericCode(99)

	code, err := gen.Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code %q length = %d, want fallback of 6", code, len(code))
	}
}

func TestAESGCMEncryptorRoundTrip(t *testing.T) {
	// Arrange
	key := bytes.Repeat([]byte{0x42}, 32)
	enc := NewAESGCMEncryptor(StaticKeyProvider{KeyBytes: key})
	scope := Scope{AccountID: "acct-1", Purpose: PurposeOTPSecret}
	plain := []byte("GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ")

	// Act
	sealed, err := enc.Encrypt(plain, scope)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	got, err := enc.Decrypt(sealed, scope)

	// Assert
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plain)
	}
	if bytes.Contains(sealed, plain) {
		t.Fatalf("ciphertext contains plaintext")
	}
}

func TestAESGCMEncryptorScopeBinding(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	enc := NewAESGCMEncryptor(StaticKeyProvider{KeyBytes: key})

	sealed, err := enc.Encrypt([]byte("secret"), Scope{AccountID: "acct-1", Purpose: PurposeOTPSecret})
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	t.Run("different account", func(t *testing.T) {
		if _, err := enc.Decrypt(sealed, Scope{AccountID: "acct-2", Purpose: PurposeOTPSecret}); err == nil {
			t.Fatalf("decrypt succeeded under a different account scope")
		}
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		bad := append([]byte(nil), sealed...)
		bad[len(bad)-1] ^= 0xff
		if _, err := enc.Decrypt(bad, Scope{AccountID: "acct-1", Purpose: PurposeOTPSecret}); err == nil {
			t.Fatalf("decrypt succeeded on tampered ciphertext")
		}
	})
}

func TestAESGCMEncryptorKeyLength(t *testing.T) {
	enc := NewAESGCMEncryptor(StaticKeyProvider{KeyBytes: []byte("too-short")})

	if _, err := enc.Encrypt([]byte("secret"), Scope{AccountID: "acct-1", Purpose: PurposeOTPSecret}); err == nil {
		t.Fatalf("encrypt succeeded with a non-256-bit key")
	}
}
