// Package service verifies local password credentials and drives login, logout and password reset
// on top of the session service.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	identitydomain "backoffice/authcore/internal/identity/domain"
	userdomain "backoffice/authcore/internal/user/domain"
)

// ErrAuthenticationFailed is the single error for every credential rejection: rate limited, unknown
// email, disabled user or wrong password.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Rejection carries the internal reason of a credential rejection for audit. It matches
// ErrAuthenticationFailed and its message never includes the reason.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return ErrAuthenticationFailed.Error() }

func (r *Rejection) Is(target error) bool { return target == ErrAuthenticationFailed }

// Rejection reasons.
const (
	ReasonRateLimited   = "rate_limited"
	ReasonUnknownUser   = "unknown_user"
	ReasonDisabled      = "disabled"
	ReasonNoPassword    = "no_password"
	ReasonWrongPassword = "wrong_password"
)

func reject(reason string) error {
	return &Rejection{Reason: reason}
}

// RejectionReason returns the audit reason of err, or "" when err is not a rejection.
func RejectionReason(err error) string {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	return ""
}

// UserRepo is the subset of the user repository the verifier needs.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// IdentityRepo is the subset of the identity repository the verifier needs.
type IdentityRepo interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error)
}

// PasswordHasher compares passwords against stored hashes.
type PasswordHasher interface {
	Hash(password []byte) (string, error)
	Compare(hash string, password []byte) error
	CompareDummy(password []byte)
}

// Limiter counts attempts per key in a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Verified is a successful credential check.
type Verified struct {
	User               *userdomain.User
	SessionVersion     int64
	MustChangePassword bool
}

// Verifier checks email and password against the local identity.
type Verifier struct {
	users        UserRepo
	identities   IdentityRepo
	hasher       PasswordHasher
	ipLimit      Limiter
	emailLimit   Limiter
	storeTimeout time.Duration
}

// NewVerifier returns a Verifier. Either limiter may be nil to disable that bucket.
func NewVerifier(users UserRepo, identities IdentityRepo, hasher PasswordHasher, ipLimit, emailLimit Limiter, storeTimeout time.Duration) *Verifier {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &Verifier{
		users:        users,
		identities:   identities,
		hasher:       hasher,
		ipLimit:      ipLimit,
		emailLimit:   emailLimit,
		storeTimeout: storeTimeout,
	}
}

// NormalizeEmail trims and lower-cases email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Verify checks the credentials. Rejections return ErrAuthenticationFailed; store and limiter
// faults are returned wrapped and must be treated as transient.
func (v *Verifier) Verify(ctx context.Context, email, password, ip string) (*Verified, error) {
	email = NormalizeEmail(email)
	if err := v.allow(ctx, v.ipLimit, ip); err != nil {
		return nil, err
	}
	if err := v.allow(ctx, v.emailLimit, email); err != nil {
		return nil, err
	}
	if email == "" || password == "" {
		v.hasher.CompareDummy([]byte(password))
		return nil, reject(ReasonUnknownUser)
	}

	ctx, cancel := context.WithTimeout(ctx, v.storeTimeout)
	defer cancel()

	user, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		v.hasher.CompareDummy([]byte(password))
		return nil, reject(ReasonUnknownUser)
	}
	if !user.Active() {
		v.hasher.CompareDummy([]byte(password))
		return nil, reject(ReasonDisabled)
	}
	ident, err := v.identities.GetByUserAndProvider(ctx, user.ID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if !ident.HasPassword() {
		v.hasher.CompareDummy([]byte(password))
		return nil, reject(ReasonNoPassword)
	}
	if err := v.hasher.Compare(ident.PasswordHash, []byte(password)); err != nil {
		return nil, reject(ReasonWrongPassword)
	}
	return &Verified{
		User:               user,
		SessionVersion:     user.SessionVersion,
		MustChangePassword: user.MustChangePassword,
	}, nil
}

func (v *Verifier) allow(ctx context.Context, l Limiter, key string) error {
	if l == nil || key == "" {
		return nil
	}
	ok, err := l.Allow(ctx, key)
	if err != nil {
		return fmt.Errorf("login rate limit: %w", err)
	}
	if !ok {
		return reject(ReasonRateLimited)
	}
	return nil
}
