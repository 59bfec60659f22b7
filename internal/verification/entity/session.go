package entity

import "time"

// Session is a transient out-of-band verification challenge. TokenHash and
// CodeHash hold HMAC-SHA256 digests; the plaintext token goes back to the
// caller and the plaintext code goes out over the delivery channel.
type Session struct {
	ID          int64
	AccountID   string
	TokenHash   string
	CodeHash    string
	Purpose     string
	Channel     Channel
	Target      string
	Attempts    int16
	MaxAttempts int16
	Verified    bool
	Used        bool
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// ResetSession carries the atomic resend transition: a fresh code hash,
// a pushed-out expiry, and an attempt counter back at zero.
type ResetSession struct {
	ID        int64
	CodeHash  string
	ExpiresAt time.Time
}

// IsExpired reports whether the session lapsed at the given time.
func (s Session) IsExpired(at time.Time) bool {
	return !at.Before(s.ExpiresAt)
}
