// Package authz resolves a session's access to a tenant: either through a membership row or through
// an explicit, signed impersonation grant held by a superadmin.
package authz

import (
	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/membership/domain"
)

// AccessContext is the resolved access of the session user to one tenant.
type AccessContext struct {
	TenantID        string
	UserID          string
	Role            domain.Role
	IsSuperadmin    bool
	IsImpersonating bool
}

// Decision is the result of resolving tenant access. Access is set only when Outcome is Granted.
type Decision struct {
	Outcome authctx.Outcome
	Access  *AccessContext
}

func deny(o authctx.Outcome) Decision {
	return Decision{Outcome: o}
}
