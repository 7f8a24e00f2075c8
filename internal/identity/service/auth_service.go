package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"backoffice/authcore/internal/audit"
	auditdomain "backoffice/authcore/internal/audit/domain"
	"backoffice/authcore/internal/authctx"
	identitydomain "backoffice/authcore/internal/identity/domain"
	sessiondomain "backoffice/authcore/internal/session/domain"
	sessionsvc "backoffice/authcore/internal/session/service"
	userdomain "backoffice/authcore/internal/user/domain"
)

// Sentinel errors for account management; the HTTP layer maps them to status codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrUserNotFound           = errors.New("user not found")
)

// Sessions is the subset of the session service used by login and logout.
type Sessions interface {
	Issue(ctx context.Context, u *userdomain.User, rc *authctx.RequestContext) (*sessionsvc.Issued, error)
	Revoke(ctx context.Context, sessionID, reason string, rc *authctx.RequestContext) (bool, error)
	LogoutEverywhere(ctx context.Context, userID, reason string, rc *authctx.RequestContext) (int64, error)
	RevokeAllForUser(ctx context.Context, userID, reason string, rc *authctx.RequestContext)
}

// AccountUsers is the user persistence used for registration and password reset.
type AccountUsers interface {
	UserRepo
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// AccountIdentities is the identity persistence used for registration and password reset.
type AccountIdentities interface {
	IdentityRepo
	Create(ctx context.Context, i *identitydomain.Identity) error
	ResetPassword(ctx context.Context, userID, passwordHash string) (int64, error)
}

// LoginResult is a successful login.
type LoginResult struct {
	Token              string
	Session            *sessiondomain.Session
	UserID             string
	RequiresStepUp     bool
	MustChangePassword bool
}

// AuthService implements password login, logout and password reset.
type AuthService struct {
	verifier   *Verifier
	users      AccountUsers
	identities AccountIdentities
	hasher     PasswordHasher
	sessions   Sessions
	recorder   audit.Recorder
	log        zerolog.Logger
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(verifier *Verifier, users AccountUsers, identities AccountIdentities, hasher PasswordHasher,
	sessions Sessions, recorder audit.Recorder, log zerolog.Logger) *AuthService {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &AuthService{
		verifier:   verifier,
		users:      users,
		identities: identities,
		hasher:     hasher,
		sessions:   sessions,
		recorder:   recorder,
		log:        log,
	}
}

// Login verifies credentials and issues a session.
func (s *AuthService) Login(ctx context.Context, email, password string, rc *authctx.RequestContext) (*LoginResult, error) {
	v, err := s.verifier.Verify(ctx, email, password, rc.IP)
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			s.recorder.Record(ctx, auditdomain.AccessEvent{
				Kind:      auditdomain.KindLoginFailure,
				IP:        rc.IP,
				UserAgent: rc.UserAgent,
				Metadata:  map[string]string{"email": NormalizeEmail(email), "reason": RejectionReason(err)},
			})
		}
		return nil, err
	}
	issued, err := s.sessions.Issue(ctx, v.User, rc)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	s.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindLoginSuccess,
		ActorUserID: v.User.ID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"session_id": issued.Session.ID},
	})
	return &LoginResult{
		Token:              issued.Token,
		Session:            issued.Session,
		UserID:             v.User.ID,
		RequiresStepUp:     issued.Session.RequiresStepUp,
		MustChangePassword: v.MustChangePassword,
	}, nil
}

// Logout revokes the current session. No-op without a session.
func (s *AuthService) Logout(ctx context.Context, rc *authctx.RequestContext) error {
	if !rc.Authenticated() {
		return nil
	}
	_, err := s.sessions.Revoke(ctx, rc.Session.ID, sessiondomain.ReasonLogout, rc)
	return err
}

// LogoutEverywhere invalidates every session of the current user, including this one.
func (s *AuthService) LogoutEverywhere(ctx context.Context, rc *authctx.RequestContext) error {
	if !rc.Authenticated() {
		return nil
	}
	_, err := s.sessions.LogoutEverywhere(ctx, rc.Session.UserID, sessiondomain.ReasonLogoutEverywhere, rc)
	return err
}

// ResetPassword sets a new password for targetUserID, forces a change at next login and invalidates
// all of the target's sessions. Callers must gate it as a sensitive operation.
func (s *AuthService) ResetPassword(ctx context.Context, rc *authctx.RequestContext, targetUserID, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	target, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrUserNotFound
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	if _, err := s.identities.ResetPassword(ctx, targetUserID, hashed); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	s.sessions.RevokeAllForUser(ctx, targetUserID, sessiondomain.ReasonPasswordReset, rc)
	s.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindPasswordReset,
		ActorUserID: actorID(rc),
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"user_id": targetUserID},
	})
	return nil
}

// Register creates a user and local identity. Used by provisioning tools; there is no public sign-up.
func (s *AuthService) Register(ctx context.Context, email, password, name string, superadmin bool) (*userdomain.User, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Status:       userdomain.UserStatusActive,
		IsSuperadmin: superadmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := s.identities.Create(ctx, &identitydomain.Identity{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hashed,
		CreatedAt:    now,
	}); err != nil {
		return nil, err
	}
	return user, nil
}

func actorID(rc *authctx.RequestContext) string {
	if rc.Authenticated() {
		return rc.Session.UserID
	}
	return ""
}

var simpleEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !simpleEmail.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

// ErrWeakPassword wraps every password policy failure.
var ErrWeakPassword = errors.New("password does not meet policy")

func validatePassword(password string) error {
	if len(password) < 12 {
		return fmt.Errorf("%w: at least 12 characters", ErrWeakPassword)
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return fmt.Errorf("%w: needs an uppercase letter", ErrWeakPassword)
	case !hasLower:
		return fmt.Errorf("%w: needs a lowercase letter", ErrWeakPassword)
	case !hasNumber:
		return fmt.Errorf("%w: needs a number", ErrWeakPassword)
	case !hasSymbol:
		return fmt.Errorf("%w: needs a symbol", ErrWeakPassword)
	}
	return nil
}
