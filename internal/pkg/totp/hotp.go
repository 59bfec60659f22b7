package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"math"
)

// hotp derives an RFC 4226 one-time code from a shared key and counter.
//
// The counter is serialized as an 8-byte big-endian value and run through
// HMAC-SHA1. Dynamic truncation takes the low nibble of the final digest byte
// as an offset, reads 4 bytes from there, clears the sign bit, and reduces
// the result modulo 10^digits.
func hotp(key []byte, counter int64, digits int) int {
	var msg [8]byte
	for i := 7; i >= 0; i-- {
		msg[i] = byte(counter & 0xff)
		counter >>= 8
	}

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := int(sum[offset]&0x7f)<<24 |
		int(sum[offset+1])<<16 |
		int(sum[offset+2])<<8 |
		int(sum[offset+3])

	return code % int(math.Pow10(digits))
}
