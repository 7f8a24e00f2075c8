package authz

import (
	"context"
	"time"

	"backoffice/authcore/internal/audit"
	auditdomain "backoffice/authcore/internal/audit/domain"
	"backoffice/authcore/internal/authctx"
	tenantdomain "backoffice/authcore/internal/tenant/domain"
)

// Tenants looks up tenants by id.
type Tenants interface {
	GetByID(ctx context.Context, id string) (*tenantdomain.Tenant, error)
}

// Grant is an issued impersonation grant.
type Grant struct {
	Token     string
	TenantID  string
	ExpiresAt time.Time
}

// GrantResult is the result of starting impersonation.
type GrantResult struct {
	Outcome authctx.Outcome
	Grant   *Grant
}

// Impersonation starts and stops superadmin impersonation of a tenant. Re-authentication for the
// start is enforced by the caller.
type Impersonation struct {
	tenants  Tenants
	grants   *Grants
	recorder audit.Recorder
}

// NewImpersonation returns an Impersonation.
func NewImpersonation(tenants Tenants, grants *Grants, recorder audit.Recorder) *Impersonation {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Impersonation{tenants: tenants, grants: grants, recorder: recorder}
}

// Start issues a grant for tenantID. Only superadmins without a pending step-up may impersonate;
// a pending step-up yields MFARequired so the caller can send the user to verification.
func (i *Impersonation) Start(ctx context.Context, rc *authctx.RequestContext, tenantID string) (GrantResult, error) {
	if !rc.Authenticated() {
		return GrantResult{Outcome: authctx.Unauthenticated}, nil
	}
	if !rc.Session.IsSuperadmin {
		return GrantResult{Outcome: authctx.Forbidden}, nil
	}
	if rc.Session.RequiresStepUp {
		return GrantResult{Outcome: authctx.MFARequired}, nil
	}
	t, err := i.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return GrantResult{}, err
	}
	if t == nil {
		return GrantResult{Outcome: authctx.NotFound}, nil
	}
	token, exp, err := i.grants.Issue(rc.Session.UserID, t.ID, rc.Now)
	if err != nil {
		return GrantResult{}, err
	}
	i.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindImpersonationStart,
		ActorUserID: rc.Session.UserID,
		TenantID:    t.ID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"expires_at": exp.UTC().Format(time.RFC3339)},
	})
	return GrantResult{Outcome: authctx.Granted, Grant: &Grant{Token: token, TenantID: t.ID, ExpiresAt: exp}}, nil
}

// Stop records the end of an impersonation. The caller clears the grant cookie. Stopping without
// holding a valid grant is allowed and records nothing.
func (i *Impersonation) Stop(ctx context.Context, rc *authctx.RequestContext, tenantID string) authctx.Outcome {
	if !rc.Authenticated() {
		return authctx.Unauthenticated
	}
	if !i.grants.Verify(rc.Cookies.Get(GrantCookieName(tenantID)), rc.Session.UserID, tenantID, rc.Now) {
		return authctx.Granted
	}
	i.recorder.Record(ctx, auditdomain.AccessEvent{
		Kind:        auditdomain.KindImpersonationStop,
		ActorUserID: rc.Session.UserID,
		TenantID:    tenantID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
	})
	return authctx.Granted
}
