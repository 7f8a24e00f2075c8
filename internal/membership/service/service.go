// Package service changes tenant roles under the last-owner invariant.
package service

import (
	"context"
	"errors"
	"fmt"

	"backoffice/authcore/internal/audit"
	auditdomain "backoffice/authcore/internal/audit/domain"
	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/membership/domain"
	"backoffice/authcore/internal/membership/repository"
)

// ErrNotMember is returned when the target user has no membership in the tenant.
var ErrNotMember = errors.New("user is not a member of the tenant")

// Service manages memberships.
type Service struct {
	repo     repository.Repository
	recorder audit.Recorder
}

// NewService returns a membership Service.
func NewService(repo repository.Repository, recorder audit.Recorder) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{repo: repo, recorder: recorder}
}

// Get returns userID's membership in tenantID, or ErrNotMember.
func (s *Service) Get(ctx context.Context, tenantID, userID string) (*domain.Membership, error) {
	m, err := s.repo.GetMembershipByUserAndTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotMember
	}
	return m, nil
}

// ChangeRole sets userID's role in tenantID to next. Returns domain.ErrLastOwner when the change
// would demote the tenant's only owner.
func (s *Service) ChangeRole(ctx context.Context, rc *authctx.RequestContext, tenantID, userID string, next domain.Role) (*domain.Membership, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("invalid role %q", next)
	}
	prev, updated, err := s.repo.ChangeRole(ctx, userID, tenantID, next)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrNotMember
	}
	if prev == next {
		return updated, nil
	}
	actor := ""
	if rc.Authenticated() {
		actor = rc.Session.UserID
	}
	s.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindRoleChanged,
		ActorUserID: actor,
		TenantID:    tenantID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"user_id": userID, "from": string(prev), "to": string(next)},
	})
	return updated, nil
}
