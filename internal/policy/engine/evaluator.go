package engine

import (
	"context"
	"time"
)

// ReauthInput is what the re-auth policy sees about a sensitive operation attempt.
type ReauthInput struct {
	Operation       string
	ScopeKind       string
	TenantID        string
	Role            string
	IsSuperadmin    bool
	IsImpersonating bool
}

// ReauthResult is the policy decision: whether a fresh assertion is needed and how fresh it must be.
type ReauthResult struct {
	Required bool
	MaxAge   time.Duration
}

// Evaluator evaluates re-auth policies using OPA or other engines.
type Evaluator interface {
	// EvaluateReauth returns the decision for in. On error the returned result still requires
	// re-authentication with the default max age.
	EvaluateReauth(ctx context.Context, in ReauthInput) (ReauthResult, error)
}
