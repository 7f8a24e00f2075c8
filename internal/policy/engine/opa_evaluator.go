package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"backoffice/authcore/internal/policy/repository"
)

const decisionQuery = "data.backoffice.reauth.decision"

// DefaultRegoPolicy lists the sensitive operations and the default recency window. Tenant modules
// share the package and may add required rules; conflicting max_age_seconds values fail evaluation.
const DefaultRegoPolicy = `package backoffice.reauth

default required := false

default max_age_seconds := 600

sensitive_operations := {
	"membership.role_elevate",
	"mfa.remove_other",
	"tenant.policy_change",
	"credential.reset",
	"data.export",
	"impersonation.start",
}

required if input.operation in sensitive_operations

max_age_seconds := input.default_max_age_seconds if {
	input.default_max_age_seconds > 0
}

decision := {
	"required": required,
	"max_age_seconds": max_age_seconds,
}
`

// OPAEvaluator evaluates re-auth policies using OPA Rego.
type OPAEvaluator struct {
	policyRepo    repository.Repository
	defaultMaxAge time.Duration
	prepared      rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the default policy once. policyRepo may be nil; then only the default
// policy is evaluated.
func NewOPAEvaluator(ctx context.Context, policyRepo repository.Repository, defaultMaxAge time.Duration) (*OPAEvaluator, error) {
	if defaultMaxAge <= 0 {
		defaultMaxAge = 10 * time.Minute
	}
	compiler, err := compile([]string{DefaultRegoPolicy})
	if err != nil {
		return nil, err
	}
	prepared, err := rego.New(rego.Query(decisionQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare default policy: %w", err)
	}
	return &OPAEvaluator{policyRepo: policyRepo, defaultMaxAge: defaultMaxAge, prepared: prepared}, nil
}

// HealthCheck verifies that the prepared default policy evaluates. Does not call the policy repo.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.evalPrepared(ctx, e.input(ReauthInput{Operation: "data.export", ScopeKind: "tenant"}))
	return err
}

// EvaluateReauth decides whether in needs a fresh re-authentication. Tenant policies are added to
// the default one when in names a tenant.
func (e *OPAEvaluator) EvaluateReauth(ctx context.Context, in ReauthInput) (ReauthResult, error) {
	closed := ReauthResult{Required: true, MaxAge: e.defaultMaxAge}
	input := e.input(in)

	var extra []string
	if e.policyRepo != nil && in.TenantID != "" {
		policies, err := e.policyRepo.GetEnabledPoliciesByTenant(ctx, in.TenantID)
		if err != nil {
			return closed, fmt.Errorf("load tenant policies: %w", err)
		}
		for _, p := range policies {
			if p.Enabled && p.Rules != "" {
				extra = append(extra, p.Rules)
			}
		}
	}

	var (
		res ReauthResult
		err error
	)
	if len(extra) == 0 {
		res, err = e.evalPrepared(ctx, input)
	} else {
		res, err = e.evalModules(ctx, append([]string{DefaultRegoPolicy}, extra...), input)
	}
	if err != nil {
		return closed, err
	}
	return res, nil
}

func (e *OPAEvaluator) input(in ReauthInput) map[string]interface{} {
	return map[string]interface{}{
		"operation":               in.Operation,
		"scope_kind":              in.ScopeKind,
		"tenant_id":               in.TenantID,
		"role":                    in.Role,
		"is_superadmin":           in.IsSuperadmin,
		"is_impersonating":        in.IsImpersonating,
		"default_max_age_seconds": int64(e.defaultMaxAge / time.Second),
	}
}

func (e *OPAEvaluator) evalPrepared(ctx context.Context, input map[string]interface{}) (ReauthResult, error) {
	rs, err := e.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return ReauthResult{}, fmt.Errorf("eval policy: %w", err)
	}
	return decode(rs)
}

func (e *OPAEvaluator) evalModules(ctx context.Context, policies []string, input map[string]interface{}) (ReauthResult, error) {
	compiler, err := compile(policies)
	if err != nil {
		return ReauthResult{}, err
	}
	rs, err := rego.New(rego.Query(decisionQuery), rego.Compiler(compiler), rego.Input(input)).Eval(ctx)
	if err != nil {
		return ReauthResult{}, fmt.Errorf("eval policy: %w", err)
	}
	return decode(rs)
}

func compile(policies []string) (*ast.Compiler, error) {
	modules := make(map[string]string, len(policies))
	for i, p := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = p
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	return compiler, nil
}

func decode(rs rego.ResultSet) (ReauthResult, error) {
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return ReauthResult{}, errors.New("policy query returned no result")
	}
	obj, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return ReauthResult{}, errors.New("policy decision is not an object")
	}
	required, ok := obj["required"].(bool)
	if !ok {
		return ReauthResult{}, errors.New("policy decision: required is not a boolean")
	}
	secs, err := seconds(obj["max_age_seconds"])
	if err != nil {
		return ReauthResult{}, err
	}
	return ReauthResult{Required: required, MaxAge: time.Duration(secs) * time.Second}, nil
}

func seconds(v interface{}) (int64, error) {
	var n int64
	switch x := v.(type) {
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("policy decision: max_age_seconds: %w", err)
		}
		n = i
	case float64:
		n = int64(x)
	case int64:
		n = x
	case int:
		n = int64(x)
	default:
		return 0, fmt.Errorf("policy decision: max_age_seconds has type %T", v)
	}
	if n <= 0 {
		return 0, errors.New("policy decision: max_age_seconds must be positive")
	}
	return n, nil
}

// ValidateModule checks that rules compile together with the default policy and declare the
// re-auth package.
func ValidateModule(rules string) error {
	mod, err := ast.ParseModule("tenant.rego", rules)
	if err != nil {
		return fmt.Errorf("parse policy: %w", err)
	}
	if mod.Package.Path.String() != "data.backoffice.reauth" {
		return fmt.Errorf("policy must declare package backoffice.reauth, got %s", mod.Package.Path)
	}
	_, err = compile([]string{DefaultRegoPolicy, rules})
	return err
}
