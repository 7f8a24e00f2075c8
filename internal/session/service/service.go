// Package service issues, validates and revokes sessions. Tokens are stateless HS256 JWTs; the
// session row and the user's session version are the source of truth and are read on every validation.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"backoffice/authcore/internal/audit"
	auditdomain "backoffice/authcore/internal/audit/domain"
	"backoffice/authcore/internal/authctx"
	devicesvc "backoffice/authcore/internal/device/service"
	"backoffice/authcore/internal/platform/async"
	"backoffice/authcore/internal/security"
	"backoffice/authcore/internal/session/domain"
	"backoffice/authcore/internal/session/repository"
	userdomain "backoffice/authcore/internal/user/domain"
)

// ErrNotFound is returned when a session does not exist or belongs to another user.
var ErrNotFound = errors.New("session not found")

// Users is the subset of the user repository the session service needs.
type Users interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	BumpSessionVersion(ctx context.Context, userID string) (int64, error)
}

// DeviceTrust decides at issuance whether the new session must step up.
type DeviceTrust interface {
	EvaluateAtIssue(ctx context.Context, s devicesvc.Subject, rc *authctx.RequestContext) bool
}

// Hasher produces salted digests of request attributes.
type Hasher interface {
	Hash(value string) string
}

// Claims is the session token payload.
type Claims struct {
	SessionID string `json:"sid"`
	Version   int64  `json:"sv"`
	TouchedAt int64  `json:"tt"`
	jwt.RegisteredClaims
}

// Options tunes session lifetimes.
type Options struct {
	MaxAge        time.Duration
	TouchInterval time.Duration
}

// Issued is a freshly issued session and its token.
type Issued struct {
	Token   string
	Session *domain.Session
}

// Validation is the result of validating a session token. Session is set only when Outcome is
// Granted. RefreshedToken is set when the token's touch timestamp was renewed and the caller
// should replace the cookie; it expires at ExpiresAt.
type Validation struct {
	Outcome        authctx.Outcome
	Session        *authctx.Session
	RefreshedToken string
	ExpiresAt      time.Time
}

// Service implements the session issuer, store access and validator.
type Service struct {
	sessions repository.Repository
	users    Users
	devices  DeviceTrust
	signer   *security.Signer
	hasher   Hasher
	tasks    async.Dispatcher
	recorder audit.Recorder
	log      zerolog.Logger
	opts     Options
}

// NewService returns a session Service. devices may be nil when device trust is not wired.
func NewService(sessions repository.Repository, users Users, devices DeviceTrust, signer *security.Signer,
	hasher Hasher, tasks async.Dispatcher, recorder audit.Recorder, log zerolog.Logger, opts Options) *Service {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7 * 24 * time.Hour
	}
	if opts.TouchInterval <= 0 {
		opts.TouchInterval = 5 * time.Minute
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		sessions: sessions,
		users:    users,
		devices:  devices,
		signer:   signer,
		hasher:   hasher,
		tasks:    tasks,
		recorder: recorder,
		log:      log,
		opts:     opts,
	}
}

// Issue creates a session row for u bound to u's current session version and returns its token.
func (s *Service) Issue(ctx context.Context, u *userdomain.User, rc *authctx.RequestContext) (*Issued, error) {
	now := rc.Now.UTC()
	stepUp := false
	if s.devices != nil {
		stepUp = s.devices.EvaluateAtIssue(ctx, devicesvc.Subject{
			UserID:       u.ID,
			IsSuperadmin: u.IsSuperadmin,
			MFAEnabled:   u.MFAEnabled,
		}, rc)
	}
	sess := &domain.Session{
		ID:                    uuid.New().String(),
		UserID:                u.ID,
		SessionVersionAtIssue: u.SessionVersion,
		RequiresStepUp:        stepUp,
		IPAddress:             rc.IP,
		UserAgent:             rc.UserAgent,
		IPHash:                s.hasher.Hash(rc.IP),
		UserAgentHash:         s.hasher.Hash(rc.UserAgent),
		ExpiresAt:             now.Add(s.opts.MaxAge),
		LastSeenAt:            &now,
		CreatedAt:             now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	token, err := s.sign(sess, now)
	if err != nil {
		return nil, err
	}
	return &Issued{Token: token, Session: sess}, nil
}

// Validate verifies token and checks it against the store at now. A revoked, expired or outdated
// session yields Unauthenticated; only store faults are returned as errors.
func (s *Service) Validate(ctx context.Context, token string, now time.Time) (Validation, error) {
	deny := Validation{Outcome: authctx.Unauthenticated}
	var claims Claims
	if err := s.signer.Parse(token, &claims, now); err != nil {
		return deny, nil
	}
	if claims.SessionID == "" || claims.Subject == "" {
		return deny, nil
	}
	row, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return Validation{}, err
	}
	if row == nil || !row.Active(now) || row.UserID != claims.Subject {
		return deny, nil
	}
	u, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		return Validation{}, err
	}
	if !u.Active() || row.SessionVersionAtIssue != u.SessionVersion || claims.Version != u.SessionVersion {
		return deny, nil
	}

	out := Validation{
		Outcome:   authctx.Granted,
		ExpiresAt: row.ExpiresAt,
		Session: &authctx.Session{
			ID:             row.ID,
			UserID:         u.ID,
			Email:          u.Email,
			SessionVersion: u.SessionVersion,
			IsSuperadmin:   u.IsSuperadmin,
			MFAEnabled:     u.MFAEnabled,
			RequiresStepUp: row.RequiresStepUp,
		},
	}
	if now.Sub(time.Unix(claims.TouchedAt, 0)) > s.opts.TouchInterval {
		id, at := row.ID, now.UTC()
		s.tasks.Go("session.touch", func(ctx context.Context) error {
			return s.sessions.UpdateLastSeen(ctx, id, at)
		})
		refreshed, err := s.sign(row, now)
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", row.ID).Msg("session: token refresh failed")
		} else {
			out.RefreshedToken = refreshed
		}
	}
	return out, nil
}

// Revoke revokes the session. Revoking an already revoked session is a no-op that returns false.
func (s *Service) Revoke(ctx context.Context, sessionID, reason string, rc *authctx.RequestContext) (bool, error) {
	ok, err := s.sessions.Revoke(ctx, sessionID, reason, rc.Now.UTC())
	if err != nil || !ok {
		return ok, err
	}
	kind := auditdomain.KindSessionRevoked
	if reason == domain.ReasonLogout {
		kind = auditdomain.KindLogout
	}
	s.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        kind,
		ActorUserID: actor(rc),
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"session_id": sessionID, "reason": reason},
	})
	return true, nil
}

// RevokeOwned revokes one of userID's sessions. Returns ErrNotFound when the session does not
// exist or belongs to someone else.
func (s *Service) RevokeOwned(ctx context.Context, userID, sessionID string, rc *authctx.RequestContext) error {
	row, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if row == nil || row.UserID != userID {
		return ErrNotFound
	}
	_, err = s.Revoke(ctx, sessionID, domain.ReasonUserRevoked, rc)
	return err
}

// LogoutEverywhere bumps the user's session version, which invalidates every session issued so far,
// and marks the existing rows revoked.
func (s *Service) LogoutEverywhere(ctx context.Context, userID, reason string, rc *authctx.RequestContext) (int64, error) {
	version, err := s.users.BumpSessionVersion(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.RevokeAllForUser(ctx, userID, reason, rc)
	s.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindLogoutEverywhere,
		ActorUserID: actor(rc),
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"user_id": userID, "reason": reason},
	})
	return version, nil
}

// RevokeAllForUser marks every live session row of the user revoked. The version bump that
// precedes it is what invalidates tokens, so a failure here is logged and not returned.
func (s *Service) RevokeAllForUser(ctx context.Context, userID, reason string, rc *authctx.RequestContext) {
	n, err := s.sessions.RevokeAllByUser(ctx, userID, reason, rc.Now.UTC())
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("session: revoke all rows failed")
		return
	}
	s.log.Debug().Str("user_id", userID).Int64("revoked", n).Msg("session: revoked all rows")
}

// ClearStepUp clears the pending step-up flag on the session.
func (s *Service) ClearStepUp(ctx context.Context, sessionID string) error {
	return s.sessions.ClearStepUp(ctx, sessionID)
}

// ListForUser returns the user's live sessions.
func (s *Service) ListForUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	return s.sessions.ListActiveByUser(ctx, userID, now)
}

func (s *Service) sign(sess *domain.Session, now time.Time) (string, error) {
	ttl := sess.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return "", errors.New("session expired")
	}
	reg, err := s.signer.Registered(sess.UserID, now, ttl)
	if err != nil {
		return "", err
	}
	return s.signer.Sign(Claims{
		SessionID:        sess.ID,
		Version:          sess.SessionVersionAtIssue,
		TouchedAt:        now.Unix(),
		RegisteredClaims: reg,
	})
}

func actor(rc *authctx.RequestContext) string {
	if rc.Authenticated() {
		return rc.Session.UserID
	}
	return ""
}
