// Package handler serves liveness and readiness probes.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger checks a store connection (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the policy engine evaluates (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to PolicyChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Handler serves /healthz and /readyz. Nil dependencies are skipped.
type Handler struct {
	db      Pinger
	limiter PolicyChecker
	policy  PolicyChecker
	timeout time.Duration
}

// NewHandler returns a Handler. limiter is typically the rate limiter's Ping.
func NewHandler(db Pinger, limiter, policy PolicyChecker) *Handler {
	return &Handler{db: db, limiter: limiter, policy: policy, timeout: 2 * time.Second}
}

// Liveness always reports ok while the process serves requests.
func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness reports 503 when any dependency check fails.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	checks, ok := h.Check(ctx)
	code, status := http.StatusOK, "ok"
	if !ok {
		code, status = http.StatusServiceUnavailable, "unavailable"
	}
	writeStatus(w, code, map[string]any{"status": status, "checks": checks})
}

// Check runs every configured check and returns per-check results.
func (h *Handler) Check(ctx context.Context) (map[string]string, bool) {
	checks := map[string]string{}
	ok := true
	run := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			checks[name] = err.Error()
			ok = false
			return
		}
		checks[name] = "ok"
	}
	if h.db != nil {
		run("database", h.db.PingContext)
	}
	if h.limiter != nil {
		run("rate_limiter", h.limiter.HealthCheck)
	}
	if h.policy != nil {
		run("policy", h.policy.HealthCheck)
	}
	return checks, ok
}

func writeStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
