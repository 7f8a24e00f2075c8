// Package rbac holds the role checks applied after tenant access has been resolved.
package rbac

import (
	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/authz"
	"backoffice/authcore/internal/membership/domain"
)

// RequireRole returns Granted when access carries at least min. A nil access is Unauthenticated.
func RequireRole(access *authz.AccessContext, min domain.Role) authctx.Outcome {
	if access == nil {
		return authctx.Unauthenticated
	}
	if !access.Role.AtLeast(min) {
		return authctx.Forbidden
	}
	return authctx.Granted
}

// RequireTenantAdmin requires owner or admin in the resolved tenant.
func RequireTenantAdmin(access *authz.AccessContext) authctx.Outcome {
	return RequireRole(access, domain.RoleAdmin)
}

// RequireTenantWriter requires any role that may mutate tenant data.
func RequireTenantWriter(access *authz.AccessContext) authctx.Outcome {
	return RequireRole(access, domain.RoleRestrictedWrite)
}

// RequireCanAssign checks that the actor may assign next. Only owners may grant owner.
func RequireCanAssign(access *authz.AccessContext, next domain.Role) authctx.Outcome {
	if o := RequireTenantAdmin(access); o != authctx.Granted {
		return o
	}
	if next == domain.RoleOwner && access.Role != domain.RoleOwner {
		return authctx.Forbidden
	}
	return authctx.Granted
}
