// Package service implements the superadmin device trust engine: unapproved devices force a step-up
// on the session, and a successful MFA verification approves the device.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"backoffice/authcore/internal/audit"
	auditdomain "backoffice/authcore/internal/audit/domain"
	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/device/domain"
	"backoffice/authcore/internal/platform/async"
)

// DeviceRepo is the minimal device repository needed by the trust engine.
type DeviceRepo interface {
	GetByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*domain.Device, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Device, error)
	Approve(ctx context.Context, d *domain.Device, at time.Time) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, userID, id string, at time.Time) (bool, error)
}

// Fingerprinter derives a stable device fingerprint from request attributes.
type Fingerprinter interface {
	Fingerprint(userAgent string) string
}

// Subject is the part of a user the engine looks at.
type Subject struct {
	UserID       string
	IsSuperadmin bool
	MFAEnabled   bool
}

// TrustEngine decides step-up at session issuance and approves devices after MFA.
type TrustEngine struct {
	repo     DeviceRepo
	fp       Fingerprinter
	tasks    async.Dispatcher
	recorder audit.Recorder
	log      zerolog.Logger
}

// NewTrustEngine returns a TrustEngine with the given dependencies.
func NewTrustEngine(repo DeviceRepo, fp Fingerprinter, tasks async.Dispatcher, recorder audit.Recorder, log zerolog.Logger) *TrustEngine {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &TrustEngine{repo: repo, fp: fp, tasks: tasks, recorder: recorder, log: log}
}

// Applies reports whether device trust is enforced for the subject. Only superadmins with MFA
// enabled are subject to device approval.
func Applies(s Subject) bool {
	return s.IsSuperadmin && s.MFAEnabled
}

// EvaluateAtIssue returns whether a session being issued for s must carry requiresStepUp.
// A store failure is treated as an unapproved device.
func (e *TrustEngine) EvaluateAtIssue(ctx context.Context, s Subject, rc *authctx.RequestContext) bool {
	if !Applies(s) {
		return false
	}
	fp := e.fp.Fingerprint(rc.UserAgent)
	dev, err := e.repo.GetByUserAndFingerprint(ctx, s.UserID, fp)
	if err != nil {
		e.log.Error().Err(err).Str("user_id", s.UserID).Msg("device: lookup failed; requiring step-up")
		return true
	}
	if dev.IsApproved() {
		id, at := dev.ID, rc.Now
		e.tasks.Go("device.touch", func(ctx context.Context) error {
			return e.repo.UpdateLastSeen(ctx, id, at)
		})
		return false
	}
	e.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindDeviceUnapproved,
		ActorUserID: s.UserID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"fingerprint": fp},
	})
	return true
}

// Approve upserts the current device as approved for userID.
func (e *TrustEngine) Approve(ctx context.Context, userID string, rc *authctx.RequestContext) error {
	fp := e.fp.Fingerprint(rc.UserAgent)
	d := &domain.Device{
		ID:          uuid.New().String(),
		UserID:      userID,
		Fingerprint: fp,
		Label:       deviceLabel(rc.UserAgent),
	}
	if err := e.repo.Approve(ctx, d, rc.Now); err != nil {
		return err
	}
	e.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindDeviceApproved,
		ActorUserID: userID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"fingerprint": fp},
	})
	return nil
}

// List returns the user's devices.
func (e *TrustEngine) List(ctx context.Context, userID string) ([]*domain.Device, error) {
	return e.repo.ListByUser(ctx, userID)
}

// Revoke revokes one of the user's devices. Returns false when the device does not belong to the user.
func (e *TrustEngine) Revoke(ctx context.Context, userID, deviceID string, rc *authctx.RequestContext) (bool, error) {
	ok, err := e.repo.Revoke(ctx, userID, deviceID, rc.Now)
	if err != nil || !ok {
		return ok, err
	}
	e.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindDeviceRevoked,
		ActorUserID: userID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"device_id": deviceID},
	})
	return true, nil
}

// deviceLabel keeps a short, human readable prefix of the user agent.
func deviceLabel(userAgent string) string {
	const max = 120
	if len(userAgent) > max {
		return userAgent[:max]
	}
	return userAgent
}
