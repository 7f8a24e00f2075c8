package authz

import (
	"context"
	"sync"
	"testing"
	"time"

	auditdomain "backoffice/authcore/internal/audit/domain"
	"backoffice/authcore/internal/authctx"
	tenantdomain "backoffice/authcore/internal/tenant/domain"
)

type memTenants map[string]*tenantdomain.Tenant

func (m memTenants) GetByID(ctx context.Context, id string) (*tenantdomain.Tenant, error) {
	return m[id], nil
}

type memRecorder struct {
	mu    sync.Mutex
	kinds []auditdomain.Kind
}

func (m *memRecorder) Record(ctx context.Context, e auditdomain.AccessEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, e.Kind)
}

func TestImpersonation_StartThenResolveThenStop(t *testing.T) {
	rec := &memRecorder{}
	grants := newTestGrants()
	imp := NewImpersonation(memTenants{"tenant-a": {ID: "tenant-a", Name: "A"}}, grants, rec)
	resolver := NewResolver(&mockMembershipGetter{}, grants)

	rc := requestFor("root", true, false, nil)
	res, err := imp.Start(context.Background(), rc, "tenant-a")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Outcome != authctx.Granted || res.Grant == nil {
		t.Fatalf("Start = %+v", res)
	}
	if !res.Grant.ExpiresAt.After(rc.Now) {
		t.Errorf("ExpiresAt = %v, want after now", res.Grant.ExpiresAt)
	}

	rc.Cookies = authctx.Cookies{GrantCookieName("tenant-a"): res.Grant.Token}
	d, err := resolver.Resolve(context.Background(), rc, "tenant-a")
	if err != nil || d.Outcome != authctx.Granted || !d.Access.IsImpersonating {
		t.Fatalf("Resolve with grant = %+v, %v", d, err)
	}

	if o := imp.Stop(context.Background(), rc, "tenant-a"); o != authctx.Granted {
		t.Fatalf("Stop = %v", o)
	}
	if len(rec.kinds) != 2 || rec.kinds[0] != auditdomain.KindImpersonationStart || rec.kinds[1] != auditdomain.KindImpersonationStop {
		t.Errorf("events = %v", rec.kinds)
	}
}

func TestImpersonation_StartDenials(t *testing.T) {
	imp := NewImpersonation(memTenants{"tenant-a": {ID: "tenant-a", Name: "A"}}, newTestGrants(), nil)
	tests := []struct {
		name     string
		rc       *authctx.RequestContext
		tenantID string
		want     authctx.Outcome
	}{
		{"no session", &authctx.RequestContext{Now: time.Now()}, "tenant-a", authctx.Unauthenticated},
		{"not superadmin", requestFor("user-1", false, false, nil), "tenant-a", authctx.Forbidden},
		{"step-up pending", requestFor("root", true, true, nil), "tenant-a", authctx.MFARequired},
		{"unknown tenant", requestFor("root", true, false, nil), "nope", authctx.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := imp.Start(context.Background(), tt.rc, tt.tenantID)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			if res.Outcome != tt.want || res.Grant != nil {
				t.Errorf("Start = %+v, want %v", res, tt.want)
			}
		})
	}
}

func TestImpersonation_StopWithoutGrantRecordsNothing(t *testing.T) {
	rec := &memRecorder{}
	imp := NewImpersonation(memTenants{}, newTestGrants(), rec)
	if o := imp.Stop(context.Background(), requestFor("root", true, false, nil), "tenant-a"); o != authctx.Granted {
		t.Fatalf("Stop = %v", o)
	}
	if len(rec.kinds) != 0 {
		t.Errorf("events = %v, want none", rec.kinds)
	}
}
