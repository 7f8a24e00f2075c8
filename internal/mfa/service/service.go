// Package service is the MFA policy engine: it decides whether a tenant access needs an MFA
// assertion, verifies TOTP and recovery codes, and manages enrollment.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"backoffice/authcore/internal/audit"
	auditdomain "backoffice/authcore/internal/audit/domain"
	"backoffice/authcore/internal/authctx"
	devicesvc "backoffice/authcore/internal/device/service"
	"backoffice/authcore/internal/mfa"
	"backoffice/authcore/internal/mfa/domain"
	"backoffice/authcore/internal/mfa/repository"
	tenantdomain "backoffice/authcore/internal/tenant/domain"
	userdomain "backoffice/authcore/internal/user/domain"
)

var (
	// ErrAlreadyEnrolled is returned when beginning enrollment for a user with MFA enabled.
	ErrAlreadyEnrolled = errors.New("mfa already enabled")
	// ErrNoPendingEnrollment is returned when confirming without a pending secret.
	ErrNoPendingEnrollment = errors.New("no pending mfa enrollment")
	// ErrNotEnrolled is returned when an operation requires MFA to be enabled.
	ErrNotEnrolled = errors.New("mfa not enabled")
	// ErrInvalidCode is returned when an enrollment confirmation code does not validate.
	ErrInvalidCode = errors.New("invalid mfa code")
	// ErrUserNotFound is returned when the target user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrRateLimited is returned when the user has exhausted MFA attempts for the window.
	ErrRateLimited = errors.New("too many mfa attempts")
)

// Method names how a verification succeeded.
type Method string

const (
	MethodTOTP     Method = "totp"
	MethodRecovery Method = "recovery_code"
)

// Tenants looks up tenant policy.
type Tenants interface {
	GetByID(ctx context.Context, id string) (*tenantdomain.Tenant, error)
}

// Users is the subset of the user repository the engine needs.
type Users interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	SetPendingMFASecret(ctx context.Context, userID, secret string) error
	EnableMFA(ctx context.Context, userID string) error
	DisableMFA(ctx context.Context, userID string) error
}

// Sessions clears the step-up flag after a successful verification.
type Sessions interface {
	ClearStepUp(ctx context.Context, sessionID string) error
}

// Devices approves the current device after a successful verification.
type Devices interface {
	Approve(ctx context.Context, userID string, rc *authctx.RequestContext) error
}

// Limiter counts verification attempts per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// PolicyResult is the MFA policy decision for a tenant access. Enrolled tells the caller whether to
// send the user to verification or to enrollment.
type PolicyResult struct {
	Outcome  authctx.Outcome
	Enrolled bool
}

// VerifyInput is a verification attempt. Exactly one of Code and RecoveryCode is used; Code wins.
type VerifyInput struct {
	Scope        mfa.Scope
	Code         string
	RecoveryCode string
}

// VerifyResult is the result of a verification attempt. Token and ExpiresAt are set when Outcome is
// Granted. Outcome is Forbidden for a wrong code, RateLimited when attempts are exhausted and
// MFARequired when the user has not enrolled.
type VerifyResult struct {
	Outcome   authctx.Outcome
	Method    Method
	Token     string
	ExpiresAt time.Time
}

// Options tunes the engine.
type Options struct {
	Issuer       string
	StoreTimeout time.Duration
}

// Service implements the MFA policy engine.
type Service struct {
	tenants    Tenants
	users      Users
	codes      repository.Repository
	sessions   Sessions
	devices    Devices
	limiter    Limiter
	assertions *mfa.Assertions
	recorder   audit.Recorder
	log        zerolog.Logger
	opts       Options
}

// NewService returns the MFA Service.
func NewService(tenants Tenants, users Users, codes repository.Repository, sessions Sessions, devices Devices,
	limiter Limiter, assertions *mfa.Assertions, recorder audit.Recorder, log zerolog.Logger, opts Options) *Service {
	if opts.Issuer == "" {
		opts.Issuer = "Back Office"
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		tenants:    tenants,
		users:      users,
		codes:      codes,
		sessions:   sessions,
		devices:    devices,
		limiter:    limiter,
		assertions: assertions,
		recorder:   recorder,
		log:        log,
		opts:       opts,
	}
}

// Assertions exposes the assertion issuer, shared with the re-auth gate.
func (s *Service) Assertions() *mfa.Assertions {
	return s.assertions
}

// Check decides whether the tenant's MFA policy is met for rc. Impersonating superadmins bypass the
// tenant policy. NotFound is returned for a tenant that does not exist.
func (s *Service) Check(ctx context.Context, rc *authctx.RequestContext, tenantID string, impersonating bool) (PolicyResult, error) {
	if !rc.Authenticated() {
		return PolicyResult{Outcome: authctx.Unauthenticated}, nil
	}
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return PolicyResult{}, err
	}
	if t == nil {
		return PolicyResult{Outcome: authctx.NotFound}, nil
	}
	if !t.MFARequired || impersonating {
		return PolicyResult{Outcome: authctx.Granted, Enrolled: rc.Session.MFAEnabled}, nil
	}
	if s.assertions.FromRequest(rc, mfa.TenantScope(tenantID)) != nil {
		return PolicyResult{Outcome: authctx.Granted, Enrolled: true}, nil
	}
	return PolicyResult{Outcome: authctx.MFARequired, Enrolled: rc.Session.MFAEnabled}, nil
}

// Verify checks a TOTP or recovery code for the session user and, on success, issues an assertion for
// in.Scope, clears a pending step-up and approves the device when device trust applies.
func (s *Service) Verify(ctx context.Context, rc *authctx.RequestContext, in VerifyInput) (VerifyResult, error) {
	if !rc.Authenticated() {
		return VerifyResult{Outcome: authctx.Unauthenticated}, nil
	}
	userID := rc.Session.UserID
	ok, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		return VerifyResult{}, err
	}
	if !ok {
		s.recordFailure(ctx, rc, in.Scope, "rate_limited")
		return VerifyResult{Outcome: authctx.RateLimited}, nil
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	u, err := s.users.GetByID(sctx, userID)
	if err != nil {
		return VerifyResult{}, err
	}
	if u == nil || !u.MFAEnabled {
		return VerifyResult{Outcome: authctx.MFARequired}, nil
	}

	var method Method
	switch {
	case in.Code != "":
		method = MethodTOTP
		ok = mfa.ValidateTOTP(in.Code, u.MFASecret, rc.Now)
	case in.RecoveryCode != "":
		method = MethodRecovery
		ok, err = s.consumeRecoveryCode(sctx, userID, in.RecoveryCode, rc)
		if err != nil {
			return VerifyResult{}, err
		}
	default:
		ok = false
	}
	if !ok {
		s.recordFailure(ctx, rc, in.Scope, "invalid_code")
		return VerifyResult{Outcome: authctx.Forbidden, Method: method}, nil
	}

	if rc.Session.RequiresStepUp {
		if err := s.sessions.ClearStepUp(sctx, rc.Session.ID); err != nil {
			return VerifyResult{}, err
		}
	}
	if devicesvc.Applies(devicesvc.Subject{UserID: u.ID, IsSuperadmin: u.IsSuperadmin, MFAEnabled: u.MFAEnabled}) {
		if err := s.devices.Approve(sctx, u.ID, rc); err != nil {
			s.log.Warn().Err(err).Str("user_id", u.ID).Msg("device approval failed")
		}
	}

	token, exp, err := s.assertions.Issue(userID, in.Scope, rc.Now)
	if err != nil {
		return VerifyResult{}, err
	}
	s.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindMFASuccess,
		ActorUserID: userID,
		TenantID:    tenantOf(in.Scope),
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"method": string(method), "scope": string(in.Scope)},
	})
	return VerifyResult{Outcome: authctx.Granted, Method: method, Token: token, ExpiresAt: exp}, nil
}

func (s *Service) consumeRecoveryCode(ctx context.Context, userID, code string, rc *authctx.RequestContext) (bool, error) {
	canonical := mfa.CanonicalRecoveryCode(code)
	if canonical == "" {
		return false, nil
	}
	return s.codes.Consume(ctx, userID, mfa.HashRecoveryCode(userID, canonical), userID, rc.Now.UTC())
}

// BeginEnrollment stores a pending TOTP secret for the session user and returns its provisioning URI.
// Beginning again replaces the pending secret.
func (s *Service) BeginEnrollment(ctx context.Context, rc *authctx.RequestContext) (*mfa.Enrollment, error) {
	u, err := s.sessionUser(ctx, rc)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return nil, ErrAlreadyEnrolled
	}
	e, err := mfa.NewEnrollment(s.opts.Issuer, u.Email)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetPendingMFASecret(ctx, u.ID, e.Secret); err != nil {
		return nil, err
	}
	return e, nil
}

// ConfirmEnrollment validates code against the pending secret, enables MFA and returns fresh
// recovery codes. The codes are shown once and only their hashes are stored.
func (s *Service) ConfirmEnrollment(ctx context.Context, rc *authctx.RequestContext, code string) ([]string, error) {
	u, err := s.sessionUser(ctx, rc)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return nil, ErrAlreadyEnrolled
	}
	if u.MFAPendingSecret == "" {
		return nil, ErrNoPendingEnrollment
	}
	ok, err := s.limiter.Allow(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRateLimited
	}
	if !mfa.ValidateTOTP(code, u.MFAPendingSecret, rc.Now) {
		return nil, ErrInvalidCode
	}
	if err := s.users.EnableMFA(ctx, u.ID); err != nil {
		return nil, err
	}
	codes, err := s.replaceRecoveryCodes(ctx, u.ID, rc.Now)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindMFAEnrolled,
		ActorUserID: u.ID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
	})
	return codes, nil
}

// RegenerateRecoveryCodes replaces the session user's recovery codes.
func (s *Service) RegenerateRecoveryCodes(ctx context.Context, rc *authctx.RequestContext) ([]string, error) {
	u, err := s.sessionUser(ctx, rc)
	if err != nil {
		return nil, err
	}
	if !u.MFAEnabled {
		return nil, ErrNotEnrolled
	}
	codes, err := s.replaceRecoveryCodes(ctx, u.ID, rc.Now)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindRecoveryCodesRegenerated,
		ActorUserID: u.ID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
	})
	return codes, nil
}

// RemainingRecoveryCodes returns how many unused recovery codes the session user has.
func (s *Service) RemainingRecoveryCodes(ctx context.Context, rc *authctx.RequestContext) (int, error) {
	if !rc.Authenticated() {
		return 0, ErrUserNotFound
	}
	return s.codes.CountRemaining(ctx, rc.Session.UserID)
}

// DisableForUser turns MFA off for targetUserID and deletes their recovery codes. The caller gates
// this behind re-authentication; tenantID is recorded on the event.
func (s *Service) DisableForUser(ctx context.Context, rc *authctx.RequestContext, tenantID, targetUserID string) error {
	u, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	if !u.MFAEnabled {
		return ErrNotEnrolled
	}
	if err := s.users.DisableMFA(ctx, targetUserID); err != nil {
		return err
	}
	if err := s.codes.Replace(ctx, targetUserID, nil); err != nil {
		return err
	}
	s.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindMFADisabled,
		ActorUserID: rc.Session.UserID,
		TenantID:    tenantID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"target_user_id": targetUserID},
	})
	return nil
}

func (s *Service) replaceRecoveryCodes(ctx context.Context, userID string, now time.Time) ([]string, error) {
	codes, err := mfa.GenerateRecoveryCodes(mfa.RecoveryCodeCount)
	if err != nil {
		return nil, err
	}
	rows := make([]*domain.RecoveryCode, len(codes))
	for i, c := range codes {
		rows[i] = &domain.RecoveryCode{
			ID:        uuid.New().String(),
			UserID:    userID,
			CodeHash:  mfa.HashRecoveryCode(userID, mfa.CanonicalRecoveryCode(c)),
			CreatedAt: now.UTC(),
		}
	}
	if err := s.codes.Replace(ctx, userID, rows); err != nil {
		return nil, err
	}
	return codes, nil
}

func (s *Service) sessionUser(ctx context.Context, rc *authctx.RequestContext) (*userdomain.User, error) {
	if !rc.Authenticated() {
		return nil, ErrUserNotFound
	}
	u, err := s.users.GetByID(ctx, rc.Session.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *Service) recordFailure(ctx context.Context, rc *authctx.RequestContext, scope mfa.Scope, reason string) {
	s.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindMFAFailure,
		ActorUserID: rc.Session.UserID,
		TenantID:    tenantOf(scope),
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"reason": reason, "scope": string(scope)},
	})
}

func tenantOf(scope mfa.Scope) string {
	if scope.IsGlobal() {
		return ""
	}
	return string(scope)
}
