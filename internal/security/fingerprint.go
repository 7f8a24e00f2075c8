package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Fingerprinter produces salted, non-reversible digests of request attributes (user agent, IP).
// Sessions and trusted devices store only these digests.
type Fingerprinter struct {
	salt []byte
}

// NewFingerprinter returns a Fingerprinter keyed with salt.
func NewFingerprinter(salt []byte) *Fingerprinter {
	return &Fingerprinter{salt: salt}
}

// Hash returns hex(HMAC-SHA256(salt, value)). Empty input hashes to the empty string.
func (f *Fingerprinter) Hash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mac := hmac.New(sha256.New, f.salt)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Fingerprint derives a device fingerprint from the user agent.
func (f *Fingerprinter) Fingerprint(userAgent string) string {
	return f.Hash("ua:" + strings.TrimSpace(userAgent))
}

// HashEqual performs constant-time comparison of two hex digests.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hex returns the hex-encoded SHA-256 of s.
func SHA256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
