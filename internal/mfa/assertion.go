package mfa

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/security"
	tenantdomain "backoffice/authcore/internal/tenant/domain"
)

// Cookie names for MFA assertions. Tenant assertions are namespaced by tenant id.
const (
	GlobalCookieName   = "bo_mfa_global"
	tenantCookiePrefix = "bo_mfa_t_"
)

// Scope names what an assertion was issued for: a tenant id or the global scope.
type Scope string

// GlobalScope is the scope of assertions issued outside any tenant (superadmin flows).
const GlobalScope Scope = Scope(tenantdomain.GlobalScopeID)

// TenantScope returns the scope for tenantID.
func TenantScope(tenantID string) Scope {
	return Scope(tenantID)
}

// IsGlobal reports whether s is the global scope.
func (s Scope) IsGlobal() bool {
	return s == GlobalScope
}

// CookieName returns the cookie carrying the assertion for s.
func (s Scope) CookieName() string {
	if s.IsGlobal() {
		return GlobalCookieName
	}
	return tenantCookiePrefix + string(s)
}

// ErrInvalidScope is returned when issuing an assertion for an empty scope.
var ErrInvalidScope = errors.New("invalid assertion scope")

// AssertionClaims is the signed assertion payload: sub, scope, iat and exp.
type AssertionClaims struct {
	Scope Scope `json:"scope"`
	jwt.RegisteredClaims
}

// Assertion is a verified MFA assertion.
type Assertion struct {
	UserID    string
	Scope     Scope
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// FreshWithin reports whether the assertion was issued no more than maxAge before now.
func (a *Assertion) FreshWithin(maxAge time.Duration, now time.Time) bool {
	if a == nil {
		return false
	}
	age := now.Sub(a.IssuedAt)
	return age >= 0 && age <= maxAge
}

// Assertions issues and verifies MFA assertions.
type Assertions struct {
	signer *security.Signer
	ttl    time.Duration
}

// NewAssertions returns an assertion issuer with enforcement lifetime ttl.
func NewAssertions(signer *security.Signer, ttl time.Duration) *Assertions {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Assertions{signer: signer, ttl: ttl}
}

// TTL is the enforcement lifetime of issued assertions.
func (a *Assertions) TTL() time.Duration {
	return a.ttl
}

// Issue signs an assertion for userID in scope at now.
func (a *Assertions) Issue(userID string, scope Scope, now time.Time) (string, time.Time, error) {
	if scope == "" {
		return "", time.Time{}, ErrInvalidScope
	}
	reg, err := a.signer.Registered(userID, now, a.ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	token, err := a.signer.Sign(AssertionClaims{Scope: scope, RegisteredClaims: reg})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, reg.ExpiresAt.Time, nil
}

// Verify returns the assertion when token is a valid, unexpired assertion for exactly userID and scope.
// Any mismatch returns nil.
func (a *Assertions) Verify(token, userID string, scope Scope, now time.Time) *Assertion {
	if token == "" || userID == "" || scope == "" {
		return nil
	}
	var claims AssertionClaims
	if err := a.signer.Parse(token, &claims, now); err != nil {
		return nil
	}
	if claims.Subject != userID || claims.Scope != scope || claims.IssuedAt == nil {
		return nil
	}
	return &Assertion{
		UserID:    claims.Subject,
		Scope:     claims.Scope,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
}

// FromRequest verifies the assertion cookie for scope on rc. Returns nil for unauthenticated requests.
func (a *Assertions) FromRequest(rc *authctx.RequestContext, scope Scope) *Assertion {
	if !rc.Authenticated() {
		return nil
	}
	return a.Verify(rc.Cookies.Get(scope.CookieName()), rc.Session.UserID, scope, rc.Now)
}
