package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or signed for another audience.
	ErrInvalidToken = errors.New("invalid token")
)

// Signer issues and validates HS256 JWTs for one token family. Session tokens, MFA assertions
// and impersonation grants each get their own Signer with a derived key and audience, so a token
// of one family never validates as another.
type Signer struct {
	key      []byte
	issuer   string
	audience string
}

// NewSigner returns a Signer for the given key, issuer and audience.
func NewSigner(key []byte, issuer, audience string) *Signer {
	return &Signer{key: key, issuer: issuer, audience: audience}
}

// Registered builds registered claims with this signer's issuer and audience, a random jti,
// iat = issuedAt and exp = issuedAt + ttl.
func (s *Signer) Registered(subject string, issuedAt time.Time, ttl time.Duration) (jwt.RegisteredClaims, error) {
	jti, err := generateJTI()
	if err != nil {
		return jwt.RegisteredClaims{}, err
	}
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}, nil
}

// Sign serializes claims as an HS256 JWT.
func (s *Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.key)
}

// Parse verifies signature, issuer, audience and expiry (evaluated at now) and decodes into claims.
// Any failure is reported as ErrInvalidToken.
func (s *Signer) Parse(tokenString string, claims jwt.Claims, now time.Time) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// generateJTI returns a random jti (16 bytes hex-encoded).
func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
