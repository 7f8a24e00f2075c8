package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"os"
	"strings"
)

// ErrInvalidKey is returned when a secret is missing or too short.
var ErrInvalidKey = errors.New("invalid key")

// MinSecretLen is the shortest master secret accepted for HMAC signing.
const MinSecretLen = 32

// Key purposes. Each token family is signed with its own derived key.
const (
	PurposeSession       = "session"
	PurposeMFAAssertion  = "mfa"
	PurposeImpersonation = "impersonation"
	PurposeFingerprint   = "fingerprint"
)

// LoadSecret returns s as the secret, or the contents of the file at s when s names an existing file.
// Surrounding whitespace is trimmed either way.
func LoadSecret(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if info, err := os.Stat(s); err == nil && !info.IsDir() {
		b, err := os.ReadFile(s)
		if err != nil {
			return nil, err
		}
		s = strings.TrimSpace(string(b))
	}
	if len(s) < MinSecretLen {
		return nil, ErrInvalidKey
	}
	return []byte(s), nil
}

// DeriveKey returns HMAC-SHA256(master, purpose).
func DeriveKey(master []byte, purpose string) []byte {
	mac := hmac.New(sha256.New, master)
	mac.Write([]byte(purpose))
	return mac.Sum(nil)
}

// Keys holds one signer per token family plus the request-attribute fingerprinter, all derived from
// a single master secret.
type Keys struct {
	Session       *Signer
	MFAAssertion  *Signer
	Impersonation *Signer
	Fingerprinter *Fingerprinter
}

// NewKeys derives every purpose key from master. The purpose is used as the token audience.
func NewKeys(master []byte, issuer string, fingerprintSalt []byte) Keys {
	if len(fingerprintSalt) == 0 {
		fingerprintSalt = DeriveKey(master, PurposeFingerprint)
	}
	return Keys{
		Session:       NewSigner(DeriveKey(master, PurposeSession), issuer, PurposeSession),
		MFAAssertion:  NewSigner(DeriveKey(master, PurposeMFAAssertion), issuer, PurposeMFAAssertion),
		Impersonation: NewSigner(DeriveKey(master, PurposeImpersonation), issuer, PurposeImpersonation),
		Fingerprinter: NewFingerprinter(fingerprintSalt),
	}
}
