// Package mfa holds the MFA primitives: TOTP verification, one-time recovery codes and the signed
// MFA assertions that prove a recent verification for a tenant or the global scope.
package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

const (
	// RecoveryCodeCount is how many recovery codes are issued per enrollment or regeneration.
	RecoveryCodeCount = 10
	recoveryCodeLen   = 10
	// recoveryAlphabet omits characters that are easy to confuse (0/O, 1/I).
	recoveryAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateRecoveryCodes returns n recovery codes formatted for display (e.g. "ABCDE-FGH23").
func GenerateRecoveryCodes(n int) ([]string, error) {
	out := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for len(out) < n {
		code, err := newRecoveryCode()
		if err != nil {
			return nil, err
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code[:recoveryCodeLen/2]+"-"+code[recoveryCodeLen/2:])
	}
	return out, nil
}

func newRecoveryCode() (string, error) {
	var b strings.Builder
	b.Grow(recoveryCodeLen)
	max := big.NewInt(int64(len(recoveryAlphabet)))
	for i := 0; i < recoveryCodeLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(recoveryAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// CanonicalRecoveryCode upper-cases the code and strips dashes and spaces.
// Returns "" when the result does not look like a recovery code.
func CanonicalRecoveryCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	if len(s) != recoveryCodeLen {
		return ""
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(recoveryAlphabet, rune(s[i])) {
			return ""
		}
	}
	return s
}

// HashRecoveryCode returns hex(SHA-256(userID ":" canonical)). Binding the user id means the same
// code issued to two users hashes differently.
func HashRecoveryCode(userID, canonical string) string {
	h := sha256.Sum256([]byte(userID + ":" + canonical))
	return hex.EncodeToString(h[:])
}
