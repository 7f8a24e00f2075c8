package mfa

import (
	"testing"
	"time"

	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/security"
)

func newTestAssertions() *Assertions {
	return NewAssertions(security.NewTestSigner(security.PurposeMFAAssertion), 12*time.Hour)
}

func TestScopeCookieNames(t *testing.T) {
	if got := TenantScope("t1").CookieName(); got != "bo_mfa_t_t1" {
		t.Errorf("tenant cookie = %q", got)
	}
	if got := GlobalScope.CookieName(); got != "bo_mfa_global" {
		t.Errorf("global cookie = %q", got)
	}
	if TenantScope("t1").IsGlobal() || !GlobalScope.IsGlobal() {
		t.Error("IsGlobal mismatch")
	}
}

func TestAssertion_IssueVerify(t *testing.T) {
	a := newTestAssertions()
	now := time.Now().UTC().Truncate(time.Second)
	tok, exp, err := a.Issue("u1", TenantScope("t1"), now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(12 * time.Hour)) {
		t.Errorf("exp = %v, want now+12h", exp)
	}
	got := a.Verify(tok, "u1", TenantScope("t1"), now.Add(time.Hour))
	if got == nil {
		t.Fatal("Verify returned nil")
	}
	if !got.IssuedAt.Equal(now) {
		t.Errorf("IssuedAt = %v, want %v", got.IssuedAt, now)
	}
}

func TestAssertion_ScopeIsolation(t *testing.T) {
	a := newTestAssertions()
	now := time.Now().UTC()
	tenantTok, _, _ := a.Issue("u1", TenantScope("t1"), now)
	globalTok, _, _ := a.Issue("u1", GlobalScope, now)

	tests := []struct {
		name  string
		token string
		user  string
		scope Scope
	}{
		{"other tenant", tenantTok, "u1", TenantScope("t2")},
		{"tenant token for global gate", tenantTok, "u1", GlobalScope},
		{"global token for tenant gate", globalTok, "u1", TenantScope("t1")},
		{"other user", tenantTok, "u2", TenantScope("t1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if a.Verify(tt.token, tt.user, tt.scope, now) != nil {
				t.Error("assertion must not verify")
			}
		})
	}
}

func TestAssertion_Expiry(t *testing.T) {
	a := newTestAssertions()
	now := time.Now().UTC()
	tok, _, _ := a.Issue("u1", GlobalScope, now)
	if a.Verify(tok, "u1", GlobalScope, now.Add(12*time.Hour+time.Second)) != nil {
		t.Fatal("expired assertion must not verify")
	}
}

func TestAssertion_NotASessionToken(t *testing.T) {
	a := newTestAssertions()
	sessionSigner := security.NewTestSigner(security.PurposeSession)
	reg, _ := sessionSigner.Registered("u1", time.Now(), time.Hour)
	tok, err := sessionSigner.Sign(AssertionClaims{Scope: GlobalScope, RegisteredClaims: reg})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if a.Verify(tok, "u1", GlobalScope, time.Now()) != nil {
		t.Fatal("token from another key family must not verify")
	}
}

func TestAssertion_FreshWithin(t *testing.T) {
	now := time.Now().UTC()
	a := &Assertion{IssuedAt: now.Add(-10 * time.Minute)}
	if !a.FreshWithin(10*time.Minute, now) {
		t.Error("exactly max age should be fresh")
	}
	if a.FreshWithin(10*time.Minute, now.Add(time.Second)) {
		t.Error("past max age should not be fresh")
	}
	var nilA *Assertion
	if nilA.FreshWithin(time.Hour, now) {
		t.Error("nil assertion is never fresh")
	}
}

func TestAssertion_FromRequest(t *testing.T) {
	a := newTestAssertions()
	now := time.Now().UTC()
	tok, _, _ := a.Issue("u1", TenantScope("t1"), now)
	rc := &authctx.RequestContext{
		Session: &authctx.Session{ID: "s1", UserID: "u1"},
		Cookies: authctx.Cookies{"bo_mfa_t_t1": tok},
		Now:     now,
	}
	if a.FromRequest(rc, TenantScope("t1")) == nil {
		t.Fatal("expected assertion from cookie")
	}
	if a.FromRequest(&authctx.RequestContext{Cookies: rc.Cookies, Now: now}, TenantScope("t1")) != nil {
		t.Fatal("unauthenticated request must not yield an assertion")
	}
}
