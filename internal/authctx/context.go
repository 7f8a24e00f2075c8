// Package authctx carries the explicit per-request inputs every authorization decision is computed from,
// and the closed set of outcomes those decisions produce.
package authctx

import (
	"context"
	"time"
)

// Session is the validated session attached to a request.
type Session struct {
	ID             string
	UserID         string
	Email          string
	SessionVersion int64
	IsSuperadmin   bool
	MFAEnabled     bool
	RequiresStepUp bool
}

// Cookies is a read-only view of request cookies by name.
type Cookies map[string]string

// Get returns the cookie value or "".
func (c Cookies) Get(name string) string {
	if c == nil {
		return ""
	}
	return c[name]
}

// RequestContext is everything a tenant access attempt depends on. Decisions are pure functions
// of it plus store lookups; nothing is read from ambient request state.
type RequestContext struct {
	// Session is nil for unauthenticated requests.
	Session   *Session
	Cookies   Cookies
	IP        string
	UserAgent string
	Now       time.Time
}

// Authenticated reports whether a validated session is present.
func (rc *RequestContext) Authenticated() bool {
	return rc != nil && rc.Session != nil
}

type contextKey struct{ name string }

var requestContextKey = &contextKey{"request_context"}

// With returns a copy of ctx carrying rc.
func With(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// From returns the RequestContext stored by With.
func From(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey).(*RequestContext)
	return rc, ok && rc != nil
}
