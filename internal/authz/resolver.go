package authz

import (
	"context"

	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/membership/domain"
	tenantdomain "backoffice/authcore/internal/tenant/domain"
)

// MembershipGetter returns a user's membership in a tenant, or nil when there is none.
type MembershipGetter interface {
	GetMembershipByUserAndTenant(ctx context.Context, userID, tenantID string) (*domain.Membership, error)
}

// Resolver implements tenant access resolution.
type Resolver struct {
	memberships MembershipGetter
	grants      *Grants
}

// NewResolver returns a Resolver.
func NewResolver(memberships MembershipGetter, grants *Grants) *Resolver {
	return &Resolver{memberships: memberships, grants: grants}
}

// Resolve decides rc's access to tenantID. A membership grants its role. Without one, a superadmin
// with no pending step-up gets owner access only while holding a grant for this tenant. Every other
// case is Forbidden, whether or not the tenant exists.
func (r *Resolver) Resolve(ctx context.Context, rc *authctx.RequestContext, tenantID string) (Decision, error) {
	if !rc.Authenticated() {
		return deny(authctx.Unauthenticated), nil
	}
	if tenantID == "" || tenantID == tenantdomain.GlobalScopeID {
		return deny(authctx.Forbidden), nil
	}
	sess := rc.Session
	m, err := r.memberships.GetMembershipByUserAndTenant(ctx, sess.UserID, tenantID)
	if err != nil {
		return Decision{}, err
	}
	if m != nil {
		return Decision{Outcome: authctx.Granted, Access: &AccessContext{
			TenantID: tenantID,
			UserID:   sess.UserID,
			Role:     m.Role,
		}}, nil
	}
	if sess.IsSuperadmin && !sess.RequiresStepUp &&
		r.grants.Verify(rc.Cookies.Get(GrantCookieName(tenantID)), sess.UserID, tenantID, rc.Now) {
		return Decision{Outcome: authctx.Granted, Access: &AccessContext{
			TenantID:        tenantID,
			UserID:          sess.UserID,
			Role:            domain.RoleOwner,
			IsSuperadmin:    true,
			IsImpersonating: true,
		}}, nil
	}
	return deny(authctx.Forbidden), nil
}
