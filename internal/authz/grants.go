package authz

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"backoffice/authcore/internal/security"
)

const grantCookiePrefix = "bo_imp_"

// GrantCookieName returns the cookie carrying the impersonation grant for tenantID.
func GrantCookieName(tenantID string) string {
	return grantCookiePrefix + tenantID
}

// GrantClaims is the impersonation grant payload. The grant names exactly one tenant and one subject.
type GrantClaims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// Grants signs and verifies impersonation grants.
type Grants struct {
	signer *security.Signer
	ttl    time.Duration
}

// NewGrants returns a grant issuer. ttl <= 0 uses one hour.
func NewGrants(signer *security.Signer, ttl time.Duration) *Grants {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Grants{signer: signer, ttl: ttl}
}

// Issue signs a grant for userID on tenantID.
func (g *Grants) Issue(userID, tenantID string, now time.Time) (string, time.Time, error) {
	if userID == "" || tenantID == "" {
		return "", time.Time{}, errors.New("grant requires user and tenant")
	}
	reg, err := g.signer.Registered(userID, now, g.ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	token, err := g.signer.Sign(GrantClaims{TenantID: tenantID, RegisteredClaims: reg})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, reg.ExpiresAt.Time, nil
}

// Verify reports whether token is an unexpired grant naming exactly userID and tenantID.
func (g *Grants) Verify(token, userID, tenantID string, now time.Time) bool {
	if token == "" {
		return false
	}
	var claims GrantClaims
	if err := g.signer.Parse(token, &claims, now); err != nil {
		return false
	}
	return claims.Subject == userID && claims.TenantID == tenantID
}
