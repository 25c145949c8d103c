package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strings"
	"time"
)

// GenerateOTP returns a random numeric code of the given length.
func GenerateOTP(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// CheckOTP reports whether code matches the pending one and has not expired.
func CheckOTP(stored *string, expiry *time.Time, code string, now time.Time) bool {
	if stored == nil || expiry == nil || *stored == "" || code == "" {
		return false
	}
	if !now.Before(*expiry) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(code)) == 1
}

// NormalizeMobile strips separators and prefixes countryCode when the number
// carries no international prefix.
func NormalizeMobile(mobile, countryCode string) string {
	m := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(mobile))
	if m == "" || strings.HasPrefix(m, "+") {
		return m
	}
	return countryCode + m
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
