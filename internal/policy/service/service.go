// Package service applies tenant policy changes: the tenant MFA requirement and tenant re-auth
// policy modules.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"backoffice/authcore/internal/audit"
	auditdomain "backoffice/authcore/internal/audit/domain"
	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/policy/domain"
	"backoffice/authcore/internal/policy/engine"
	"backoffice/authcore/internal/policy/repository"
)

var (
	// ErrEmptyChange is returned when a change sets nothing.
	ErrEmptyChange = errors.New("policy change is empty")
	// ErrInvalidRules wraps a rules module that does not parse or compile.
	ErrInvalidRules = errors.New("invalid policy rules")
)

// Tenants updates the tenant's MFA requirement.
type Tenants interface {
	SetMFARequired(ctx context.Context, id string, required bool) error
}

// Change is a tenant policy update. Nil or empty fields are left unchanged.
type Change struct {
	MFARequired *bool
	// Rules is an additional Rego module for package backoffice.reauth.
	Rules string
	// DisablePolicyID disables a previously added module.
	DisablePolicyID string
}

// Service applies tenant policy changes.
type Service struct {
	tenants  Tenants
	policies repository.Repository
	recorder audit.Recorder
}

// NewService returns a policy Service.
func NewService(tenants Tenants, policies repository.Repository, recorder audit.Recorder) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{tenants: tenants, policies: policies, recorder: recorder}
}

// Apply validates and applies c to tenantID. Returns the id of a newly created module, if any.
func (s *Service) Apply(ctx context.Context, rc *authctx.RequestContext, tenantID string, c Change) (string, error) {
	rules := strings.TrimSpace(c.Rules)
	if c.MFARequired == nil && rules == "" && c.DisablePolicyID == "" {
		return "", ErrEmptyChange
	}
	if rules != "" {
		if err := engine.ValidateModule(rules); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRules, err)
		}
	}
	meta := map[string]string{}
	if c.MFARequired != nil {
		if err := s.tenants.SetMFARequired(ctx, tenantID, *c.MFARequired); err != nil {
			return "", err
		}
		meta["mfa_required"] = strconv.FormatBool(*c.MFARequired)
	}
	if c.DisablePolicyID != "" {
		if err := s.policies.SetEnabled(ctx, c.DisablePolicyID, false); err != nil {
			return "", err
		}
		meta["disabled_policy_id"] = c.DisablePolicyID
	}
	var id string
	if rules != "" {
		id = uuid.New().String()
		if err := s.policies.Create(ctx, &domain.Policy{
			ID:        id,
			TenantID:  tenantID,
			Rules:     rules,
			Enabled:   true,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return "", err
		}
		meta["policy_id"] = id
	}
	actor := ""
	if rc.Authenticated() {
		actor = rc.Session.UserID
	}
	s.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindTenantPolicyChanged,
		ActorUserID: actor,
		TenantID:    tenantID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    meta,
	})
	return id, nil
}
