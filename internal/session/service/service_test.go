package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"backoffice/authcore/internal/authctx"
	devicesvc "backoffice/authcore/internal/device/service"
	"backoffice/authcore/internal/platform/async"
	"backoffice/authcore/internal/security"
	"backoffice/authcore/internal/session/domain"
	userdomain "backoffice/authcore/internal/user/domain"
)

// memSessionRepo implements repository.Repository for tests.
type memSessionRepo struct {
	mu      sync.Mutex
	rows    map[string]*domain.Session
	touched map[string]int
	getErr  error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{rows: map[string]*domain.Session{}, touched: map[string]int{}}
}

func (m *memSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.rows {
		if s.UserID == userID && s.Active(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSessionRepo) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memSessionRepo) Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	s.RevokedAt = &at
	s.RevokedReason = reason
	return true, nil
}

func (m *memSessionRepo) RevokeAllByUser(ctx context.Context, userID, reason string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.rows {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &at
			s.RevokedReason = reason
			n++
		}
	}
	return n, nil
}

func (m *memSessionRepo) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[id]++
	if s, ok := m.rows[id]; ok {
		s.LastSeenAt = &at
	}
	return nil
}

func (m *memSessionRepo) ClearStepUp(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok {
		s.RequiresStepUp = false
	}
	return nil
}

// memUsers implements Users for tests.
type memUsers struct {
	mu    sync.Mutex
	users map[string]*userdomain.User
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) BumpSessionVersion(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, errors.New("no user")
	}
	u.SessionVersion++
	return u.SessionVersion, nil
}

type stubDevices struct{ stepUp bool }

func (s stubDevices) EvaluateAtIssue(context.Context, devicesvc.Subject, *authctx.RequestContext) bool {
	return s.stepUp
}

type fixture struct {
	svc      *Service
	sessions *memSessionRepo
	users    *memUsers
	now      time.Time
}

func newFixture(t *testing.T, devices DeviceTrust) *fixture {
	t.Helper()
	sessions := newMemSessionRepo()
	users := &memUsers{users: map[string]*userdomain.User{
		"u1": {ID: "u1", Email: "ana@example.com", Status: userdomain.UserStatusActive, SessionVersion: 0},
		"u2": {ID: "u2", Email: "bo@example.com", Status: userdomain.UserStatusActive},
	}}
	svc := NewService(sessions, users, devices, security.NewTestSigner(security.PurposeSession),
		security.NewTestFingerprinter(), async.Inline{Log: zerolog.Nop()}, nil, zerolog.Nop(),
		Options{MaxAge: 24 * time.Hour, TouchInterval: 5 * time.Minute})
	return &fixture{svc: svc, sessions: sessions, users: users, now: time.Now().UTC().Truncate(time.Second)}
}

func (f *fixture) rc() *authctx.RequestContext {
	return &authctx.RequestContext{IP: "198.51.100.4", UserAgent: "Mozilla/5.0", Now: f.now}
}

func (f *fixture) issue(t *testing.T, userID string) *Issued {
	t.Helper()
	u, _ := f.users.GetByID(context.Background(), userID)
	iss, err := f.svc.Issue(context.Background(), u, f.rc())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return iss
}

func (f *fixture) validate(t *testing.T, token string, at time.Time) Validation {
	t.Helper()
	v, err := f.svc.Validate(context.Background(), token, at)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return v
}

func TestIssueAndValidate(t *testing.T) {
	f := newFixture(t, nil)
	iss := f.issue(t, "u1")

	if iss.Session.IPHash == "" || iss.Session.IPHash == iss.Session.IPAddress {
		t.Errorf("ip hash not derived: %q", iss.Session.IPHash)
	}
	v := f.validate(t, iss.Token, f.now.Add(time.Minute))
	if v.Outcome != authctx.Granted {
		t.Fatalf("Outcome = %v, want granted", v.Outcome)
	}
	if v.Session.UserID != "u1" || v.Session.Email != "ana@example.com" || v.Session.ID != iss.Session.ID {
		t.Errorf("session = %+v", v.Session)
	}
	if v.RefreshedToken != "" {
		t.Error("token should not be refreshed inside the touch interval")
	}
	if f.sessions.touched[iss.Session.ID] != 0 {
		t.Error("last_seen should not be touched inside the touch interval")
	}
}

func TestValidate_TouchAfterInterval(t *testing.T) {
	f := newFixture(t, nil)
	iss := f.issue(t, "u1")

	later := f.now.Add(6 * time.Minute)
	v := f.validate(t, iss.Token, later)
	if v.Outcome != authctx.Granted {
		t.Fatalf("Outcome = %v, want granted", v.Outcome)
	}
	if v.RefreshedToken == "" {
		t.Fatal("expected refreshed token after touch interval")
	}
	if f.sessions.touched[iss.Session.ID] != 1 {
		t.Errorf("touched = %d, want 1", f.sessions.touched[iss.Session.ID])
	}

	// The refreshed token carries a fresh touch time and keeps the session expiry.
	v2 := f.validate(t, v.RefreshedToken, later.Add(time.Minute))
	if v2.Outcome != authctx.Granted || v2.RefreshedToken != "" {
		t.Fatalf("refreshed token: outcome %v, refreshed %q", v2.Outcome, v2.RefreshedToken)
	}
	var claims Claims
	if err := security.NewTestSigner(security.PurposeSession).Parse(v.RefreshedToken, &claims, later); err != nil {
		t.Fatalf("Parse refreshed: %v", err)
	}
	if !claims.ExpiresAt.Time.Equal(iss.Session.ExpiresAt) {
		t.Errorf("refreshed exp = %v, want %v", claims.ExpiresAt.Time, iss.Session.ExpiresAt)
	}
}

func TestValidate_RevocationIsImmediate(t *testing.T) {
	f := newFixture(t, nil)
	iss := f.issue(t, "u1")

	ok, err := f.svc.Revoke(context.Background(), iss.Session.ID, domain.ReasonLogout, f.rc())
	if err != nil || !ok {
		t.Fatalf("Revoke = %v, %v", ok, err)
	}
	if v := f.validate(t, iss.Token, f.now.Add(time.Second)); v.Outcome != authctx.Unauthenticated {
		t.Fatalf("Outcome after revoke = %v, want unauthenticated", v.Outcome)
	}
	ok, err = f.svc.Revoke(context.Background(), iss.Session.ID, domain.ReasonLogout, f.rc())
	if err != nil || ok {
		t.Fatalf("second Revoke = %v, %v; want false, nil", ok, err)
	}
}

func TestLogoutEverywhere_InvalidatesAllThenNewSessionValidates(t *testing.T) {
	f := newFixture(t, nil)
	a := f.issue(t, "u1")
	b := f.issue(t, "u1")
	other := f.issue(t, "u2")

	version, err := f.svc.LogoutEverywhere(context.Background(), "u1", domain.ReasonLogoutEverywhere, f.rc())
	if err != nil {
		t.Fatalf("LogoutEverywhere: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	for _, tok := range []string{a.Token, b.Token} {
		if v := f.validate(t, tok, f.now.Add(time.Second)); v.Outcome != authctx.Unauthenticated {
			t.Errorf("pre-bump session outcome = %v, want unauthenticated", v.Outcome)
		}
	}
	if v := f.validate(t, other.Token, f.now.Add(time.Second)); v.Outcome != authctx.Granted {
		t.Errorf("other user's session outcome = %v, want granted", v.Outcome)
	}

	fresh := f.issue(t, "u1")
	if fresh.Session.SessionVersionAtIssue != 1 {
		t.Errorf("SessionVersionAtIssue = %d, want 1", fresh.Session.SessionVersionAtIssue)
	}
	if v := f.validate(t, fresh.Token, f.now.Add(time.Second)); v.Outcome != authctx.Granted {
		t.Errorf("post-bump session outcome = %v, want granted", v.Outcome)
	}
}

func TestValidate_VersionBumpWithoutRowRevocation(t *testing.T) {
	f := newFixture(t, nil)
	iss := f.issue(t, "u1")
	if _, err := f.users.BumpSessionVersion(context.Background(), "u1"); err != nil {
		t.Fatalf("BumpSessionVersion: %v", err)
	}
	if v := f.validate(t, iss.Token, f.now.Add(time.Second)); v.Outcome != authctx.Unauthenticated {
		t.Fatalf("Outcome = %v, want unauthenticated", v.Outcome)
	}
}

func TestValidate_Rejects(t *testing.T) {
	f := newFixture(t, nil)
	iss := f.issue(t, "u1")
	foreign, err := security.NewTestSigner(security.PurposeMFAAssertion).Sign(Claims{SessionID: iss.Session.ID})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tests := []struct {
		name  string
		token string
		at    time.Time
	}{
		{"empty", "", f.now},
		{"garbage", "not.a.jwt", f.now},
		{"tampered", iss.Token + "x", f.now},
		{"other audience", foreign, f.now},
		{"expired", iss.Token, f.now.Add(25 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v := f.validate(t, tt.token, tt.at); v.Outcome != authctx.Unauthenticated {
				t.Errorf("Outcome = %v, want unauthenticated", v.Outcome)
			}
		})
	}
}

func TestValidate_DisabledUser(t *testing.T) {
	f := newFixture(t, nil)
	iss := f.issue(t, "u1")
	f.users.users["u1"].Status = userdomain.UserStatusDisabled
	if v := f.validate(t, iss.Token, f.now); v.Outcome != authctx.Unauthenticated {
		t.Fatalf("Outcome = %v, want unauthenticated", v.Outcome)
	}
}

func TestValidate_StoreErrorIsNotADenial(t *testing.T) {
	f := newFixture(t, nil)
	iss := f.issue(t, "u1")
	f.sessions.getErr = errors.New("connection refused")
	if _, err := f.svc.Validate(context.Background(), iss.Token, f.now); err == nil {
		t.Fatal("expected store error")
	}
}

func TestIssue_StepUpAndClear(t *testing.T) {
	f := newFixture(t, stubDevices{stepUp: true})
	iss := f.issue(t, "u1")
	if !iss.Session.RequiresStepUp {
		t.Fatal("RequiresStepUp should be set")
	}
	if v := f.validate(t, iss.Token, f.now); !v.Session.RequiresStepUp {
		t.Fatal("validated session should carry RequiresStepUp")
	}
	if err := f.svc.ClearStepUp(context.Background(), iss.Session.ID); err != nil {
		t.Fatalf("ClearStepUp: %v", err)
	}
	if v := f.validate(t, iss.Token, f.now); v.Session.RequiresStepUp {
		t.Fatal("RequiresStepUp should be cleared")
	}
}

func TestRevokeOwned(t *testing.T) {
	f := newFixture(t, nil)
	iss := f.issue(t, "u1")

	if err := f.svc.RevokeOwned(context.Background(), "u2", iss.Session.ID, f.rc()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RevokeOwned by other user: err = %v, want ErrNotFound", err)
	}
	if err := f.svc.RevokeOwned(context.Background(), "u1", "missing", f.rc()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RevokeOwned missing: err = %v, want ErrNotFound", err)
	}
	if err := f.svc.RevokeOwned(context.Background(), "u1", iss.Session.ID, f.rc()); err != nil {
		t.Fatalf("RevokeOwned: %v", err)
	}
	list, err := f.svc.ListForUser(context.Background(), "u1", f.now)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("live sessions = %d, want 0", len(list))
	}
}
