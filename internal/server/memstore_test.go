package server_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"backoffice/authcore/internal/app"
	auditdomain "backoffice/authcore/internal/audit/domain"
	devicedomain "backoffice/authcore/internal/device/domain"
	identitydomain "backoffice/authcore/internal/identity/domain"
	membershipdomain "backoffice/authcore/internal/membership/domain"
	mfadomain "backoffice/authcore/internal/mfa/domain"
	policydomain "backoffice/authcore/internal/policy/domain"
	sessiondomain "backoffice/authcore/internal/session/domain"
	tenantdomain "backoffice/authcore/internal/tenant/domain"
	userdomain "backoffice/authcore/internal/user/domain"
)

// memStore implements every repository in memory.
type memStore struct {
	mu          sync.Mutex
	users       map[string]userdomain.User
	identities  map[string]identitydomain.Identity // by user id
	sessions    map[string]sessiondomain.Session
	devices     map[string]devicedomain.Device
	memberships map[string]membershipdomain.Membership // by tenant/user
	tenants     map[string]tenantdomain.Tenant
	codes       map[string][]mfadomain.RecoveryCode
	policies    map[string]policydomain.Policy
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]userdomain.User{},
		identities:  map[string]identitydomain.Identity{},
		sessions:    map[string]sessiondomain.Session{},
		devices:     map[string]devicedomain.Device{},
		memberships: map[string]membershipdomain.Membership{},
		tenants:     map[string]tenantdomain.Tenant{},
		codes:       map[string][]mfadomain.RecoveryCode{},
		policies:    map[string]policydomain.Policy{},
	}
}

func (m *memStore) stores() app.Stores {
	return app.Stores{
		Users:         memUsers{m},
		Identities:    memIdentities{m},
		Sessions:      memSessions{m},
		Devices:       memDevices{m},
		Memberships:   memMemberships{m},
		Tenants:       memTenants{m},
		RecoveryCodes: memCodes{m},
		Policies:      memPolicies{m},
	}
}

func (m *memStore) addTenant(id string, mfaRequired bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[id] = tenantdomain.Tenant{ID: id, Name: id, MFARequired: mfaRequired}
}

func (m *memStore) addMember(tenantID, userID string, role membershipdomain.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[tenantID+"/"+userID] = membershipdomain.Membership{
		ID: uuid.New().String(), TenantID: tenantID, UserID: userID, Role: role, CreatedAt: time.Now(),
	}
}

func (m *memStore) role(tenantID, userID string) membershipdomain.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memberships[tenantID+"/"+userID].Role
}

func (m *memStore) user(id string) userdomain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

type memUsers struct{ m *memStore }

func (r memUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r memUsers) Create(_ context.Context, u *userdomain.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.users[u.ID] = *u
	return nil
}

func (r memUsers) BumpSessionVersion(_ context.Context, userID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u := r.m.users[userID]
	u.SessionVersion++
	r.m.users[userID] = u
	return u.SessionVersion, nil
}

func (r memUsers) update(userID string, fn func(u *userdomain.User)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u := r.m.users[userID]
	fn(&u)
	r.m.users[userID] = u
	return nil
}

func (r memUsers) SetPendingMFASecret(_ context.Context, userID, secret string) error {
	return r.update(userID, func(u *userdomain.User) { u.MFAPendingSecret = secret })
}

func (r memUsers) EnableMFA(_ context.Context, userID string) error {
	return r.update(userID, func(u *userdomain.User) {
		u.MFAEnabled, u.MFASecret, u.MFAPendingSecret = true, u.MFAPendingSecret, ""
	})
}

func (r memUsers) DisableMFA(_ context.Context, userID string) error {
	return r.update(userID, func(u *userdomain.User) { u.MFAEnabled, u.MFASecret = false, "" })
}

type memIdentities struct{ m *memStore }

func (r memIdentities) GetByUserAndProvider(_ context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	i, ok := r.m.identities[userID]
	if !ok || i.Provider != provider {
		return nil, nil
	}
	return &i, nil
}

func (r memIdentities) Create(_ context.Context, i *identitydomain.Identity) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.identities[i.UserID] = *i
	return nil
}

func (r memIdentities) ResetPassword(_ context.Context, userID, hash string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	i := r.m.identities[userID]
	i.PasswordHash = hash
	r.m.identities[userID] = i
	u := r.m.users[userID]
	u.MustChangePassword = true
	u.SessionVersion++
	r.m.users[userID] = u
	return u.SessionVersion, nil
}

type memSessions struct{ m *memStore }

func (r memSessions) GetByID(_ context.Context, id string) (*sessiondomain.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r memSessions) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]*sessiondomain.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.m.sessions {
		if s.UserID == userID && s.Active(now) {
			out = append(out, &s)
		}
	}
	return out, nil
}

func (r memSessions) Create(_ context.Context, s *sessiondomain.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.sessions[s.ID] = *s
	return nil
}

func (r memSessions) Revoke(_ context.Context, id, reason string, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	s.RevokedAt, s.RevokedReason = &at, reason
	r.m.sessions[id] = s
	return true, nil
}

func (r memSessions) RevokeAllByUser(_ context.Context, userID, reason string, at time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, s := range r.m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt, s.RevokedReason = &at, reason
			r.m.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (r memSessions) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if s, ok := r.m.sessions[id]; ok {
		s.LastSeenAt = &at
		r.m.sessions[id] = s
	}
	return nil
}

func (r memSessions) ClearStepUp(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if s, ok := r.m.sessions[id]; ok {
		s.RequiresStepUp = false
		r.m.sessions[id] = s
	}
	return nil
}

type memDevices struct{ m *memStore }

func (r memDevices) GetByUserAndFingerprint(_ context.Context, userID, fp string) (*devicedomain.Device, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, d := range r.m.devices {
		if d.UserID == userID && d.Fingerprint == fp {
			return &d, nil
		}
	}
	return nil, nil
}

func (r memDevices) ListByUser(_ context.Context, userID string) ([]*devicedomain.Device, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*devicedomain.Device
	for _, d := range r.m.devices {
		if d.UserID == userID {
			out = append(out, &d)
		}
	}
	return out, nil
}

func (r memDevices) Approve(_ context.Context, d *devicedomain.Device, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, existing := range r.m.devices {
		if existing.UserID == d.UserID && existing.Fingerprint == d.Fingerprint {
			existing.ApprovedAt, existing.RevokedAt, existing.LastSeenAt = &at, nil, &at
			r.m.devices[id] = existing
			return nil
		}
	}
	row := *d
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	row.ApprovedAt, row.RevokedAt, row.LastSeenAt, row.CreatedAt = &at, nil, &at, at
	r.m.devices[row.ID] = row
	return nil
}

func (r memDevices) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if d, ok := r.m.devices[id]; ok {
		d.LastSeenAt = &at
		r.m.devices[id] = d
	}
	return nil
}

func (r memDevices) Revoke(_ context.Context, userID, id string, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.devices[id]
	if !ok || d.UserID != userID || d.RevokedAt != nil {
		return false, nil
	}
	d.RevokedAt = &at
	r.m.devices[id] = d
	return true, nil
}

type memMemberships struct{ m *memStore }

func (r memMemberships) GetMembershipByUserAndTenant(_ context.Context, userID, tenantID string) (*membershipdomain.Membership, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	mb, ok := r.m.memberships[tenantID+"/"+userID]
	if !ok {
		return nil, nil
	}
	return &mb, nil
}

func (r memMemberships) ListMembershipsByUser(_ context.Context, userID string) ([]*membershipdomain.Membership, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*membershipdomain.Membership
	for _, mb := range r.m.memberships {
		if mb.UserID == userID {
			out = append(out, &mb)
		}
	}
	return out, nil
}

func (r memMemberships) CreateMembership(_ context.Context, mb *membershipdomain.Membership) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.memberships[mb.TenantID+"/"+mb.UserID] = *mb
	return nil
}

func (r memMemberships) ChangeRole(_ context.Context, userID, tenantID string, next membershipdomain.Role) (membershipdomain.Role, *membershipdomain.Membership, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := tenantID + "/" + userID
	mb, ok := r.m.memberships[key]
	if !ok {
		return "", nil, nil
	}
	prev := mb.Role
	if err := membershipdomain.CheckRoleChange(prev, next, r.owners(tenantID)); err != nil {
		return "", nil, err
	}
	mb.Role = next
	r.m.memberships[key] = mb
	return prev, &mb, nil
}

func (r memMemberships) CountOwnersByTenant(_ context.Context, tenantID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.owners(tenantID), nil
}

func (r memMemberships) owners(tenantID string) int64 {
	var n int64
	for _, mb := range r.m.memberships {
		if mb.TenantID == tenantID && mb.Role == membershipdomain.RoleOwner {
			n++
		}
	}
	return n
}

type memTenants struct{ m *memStore }

func (r memTenants) GetByID(_ context.Context, id string) (*tenantdomain.Tenant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tenants[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r memTenants) Create(_ context.Context, t *tenantdomain.Tenant) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.tenants[t.ID] = *t
	return nil
}

func (r memTenants) SetMFARequired(_ context.Context, id string, required bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t := r.m.tenants[id]
	t.MFARequired = required
	r.m.tenants[id] = t
	return nil
}

type memCodes struct{ m *memStore }

func (r memCodes) Consume(_ context.Context, userID, codeHash, consumedBy string, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	codes := r.m.codes[userID]
	for i := range codes {
		if codes[i].CodeHash == codeHash && codes[i].ConsumedAt == nil {
			codes[i].ConsumedAt, codes[i].ConsumedBy = &at, consumedBy
			return true, nil
		}
	}
	return false, nil
}

func (r memCodes) Replace(_ context.Context, userID string, codes []*mfadomain.RecoveryCode) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rows := make([]mfadomain.RecoveryCode, 0, len(codes))
	for _, c := range codes {
		rows = append(rows, *c)
	}
	r.m.codes[userID] = rows
	return nil
}

func (r memCodes) CountRemaining(_ context.Context, userID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, c := range r.m.codes[userID] {
		if c.ConsumedAt == nil {
			n++
		}
	}
	return n, nil
}

type memPolicies struct{ m *memStore }

func (r memPolicies) GetEnabledPoliciesByTenant(_ context.Context, tenantID string) ([]*policydomain.Policy, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*policydomain.Policy
	for _, p := range r.m.policies {
		if p.TenantID == tenantID && p.Enabled {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r memPolicies) Create(_ context.Context, p *policydomain.Policy) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.policies[p.ID] = *p
	return nil
}

func (r memPolicies) SetEnabled(_ context.Context, id string, enabled bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p := r.m.policies[id]
	p.Enabled = enabled
	r.m.policies[id] = p
	return nil
}

// memRecorder captures access events.
type memRecorder struct {
	mu     sync.Mutex
	events []auditdomain.AccessEvent
}

func (r *memRecorder) Record(_ context.Context, e auditdomain.AccessEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *memRecorder) kinds() []auditdomain.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auditdomain.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}
