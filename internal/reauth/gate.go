// Package reauth gates sensitive operations behind a recent MFA assertion in the operation's scope.
package reauth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/authz"
	"backoffice/authcore/internal/mfa"
	"backoffice/authcore/internal/policy/engine"
)

// ScopeKind is where an operation's assertion must come from.
type ScopeKind string

const (
	ScopeTenant ScopeKind = "tenant"
	ScopeGlobal ScopeKind = "global"
)

// Operation is the closed set of sensitive operations.
type Operation string

const (
	OpRoleElevate        Operation = "membership.role_elevate"
	OpMFARemoveOther     Operation = "mfa.remove_other"
	OpTenantPolicyChange Operation = "tenant.policy_change"
	OpCredentialReset    Operation = "credential.reset"
	OpDataExport         Operation = "data.export"
	OpImpersonationStart Operation = "impersonation.start"
)

var operationScopes = map[Operation]ScopeKind{
	OpRoleElevate:        ScopeTenant,
	OpMFARemoveOther:     ScopeTenant,
	OpTenantPolicyChange: ScopeTenant,
	OpCredentialReset:    ScopeGlobal,
	OpDataExport:         ScopeTenant,
	OpImpersonationStart: ScopeGlobal,
}

// ParseOperation validates s against the closed operation set.
func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if _, ok := operationScopes[op]; !ok {
		return "", fmt.Errorf("unknown sensitive operation %q", s)
	}
	return op, nil
}

// Scope returns the fixed scope kind of op. ok is false for operations outside the set.
func (op Operation) Scope() (ScopeKind, bool) {
	k, ok := operationScopes[op]
	return k, ok
}

// Requirement is the gate decision. ReauthURL and MaxAge are set when Outcome is ReauthRequired.
type Requirement struct {
	Outcome   authctx.Outcome
	ReauthURL string
	MaxAge    time.Duration
}

// Gate checks sensitive operations against the re-auth policy and the caller's assertions.
type Gate struct {
	policy        engine.Evaluator
	assertions    *mfa.Assertions
	defaultMaxAge time.Duration
	log           zerolog.Logger
}

// NewGate returns a Gate. defaultMaxAge is used when the policy cannot be evaluated.
func NewGate(policy engine.Evaluator, assertions *mfa.Assertions, defaultMaxAge time.Duration, log zerolog.Logger) *Gate {
	if defaultMaxAge <= 0 {
		defaultMaxAge = 10 * time.Minute
	}
	return &Gate{policy: policy, assertions: assertions, defaultMaxAge: defaultMaxAge, log: log}
}

// Check decides whether rc may perform op now. tenantID is required for tenant-scoped operations;
// access is the resolved tenant access and may be nil for global operations. Global operations are
// refused while the session has a pending device step-up.
func (g *Gate) Check(ctx context.Context, rc *authctx.RequestContext, op Operation, tenantID string, access *authz.AccessContext) Requirement {
	if !rc.Authenticated() {
		return Requirement{Outcome: authctx.Unauthenticated}
	}
	kind, ok := op.Scope()
	if !ok || (kind == ScopeTenant && tenantID == "") {
		g.log.Warn().Str("operation", string(op)).Msg("reauth: invalid operation")
		return g.required(kind, tenantID, g.defaultMaxAge)
	}
	// A step-up-pending session is not a full superadmin; an older global assertion does not count.
	if kind == ScopeGlobal && rc.Session.RequiresStepUp {
		return g.required(kind, "", g.defaultMaxAge)
	}

	in := engine.ReauthInput{
		Operation:    string(op),
		ScopeKind:    string(kind),
		IsSuperadmin: rc.Session.IsSuperadmin,
	}
	if kind == ScopeTenant {
		in.TenantID = tenantID
	}
	if access != nil {
		in.Role = string(access.Role)
		in.IsImpersonating = access.IsImpersonating
	}
	res, err := g.policy.EvaluateReauth(ctx, in)
	if err != nil {
		g.log.Error().Err(err).Str("operation", string(op)).Str("tenant_id", tenantID).Msg("reauth: policy evaluation failed")
		res = engine.ReauthResult{Required: true, MaxAge: g.defaultMaxAge}
	}
	if !res.Required {
		return Requirement{Outcome: authctx.Granted}
	}
	if res.MaxAge <= 0 {
		res.MaxAge = g.defaultMaxAge
	}

	scope := mfa.GlobalScope
	if kind == ScopeTenant {
		scope = mfa.TenantScope(tenantID)
	}
	if g.assertions.FromRequest(rc, scope).FreshWithin(res.MaxAge, rc.Now) {
		return Requirement{Outcome: authctx.Granted}
	}
	return g.required(kind, tenantID, res.MaxAge)
}

func (g *Gate) required(kind ScopeKind, tenantID string, maxAge time.Duration) Requirement {
	return Requirement{Outcome: authctx.ReauthRequired, ReauthURL: ReauthURL(kind, tenantID), MaxAge: maxAge}
}

// ReauthURL is where the client re-verifies MFA for kind.
func ReauthURL(kind ScopeKind, tenantID string) string {
	if kind == ScopeTenant && tenantID != "" {
		return "/t/" + url.PathEscape(tenantID) + "/mfa/verify?reauth=1"
	}
	return "/mfa/global/verify?reauth=1"
}
