package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"backoffice/authcore/internal/app"
	healthhandler "backoffice/authcore/internal/health/handler"
	"backoffice/authcore/internal/mfa"
	"backoffice/authcore/internal/platform/async"
	"backoffice/authcore/internal/ratelimit"
	"backoffice/authcore/internal/security"
	"backoffice/authcore/internal/server"
)

const testPassword = "Correct-Horse-42"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	t      *testing.T
	store  *memStore
	rec    *memRecorder
	clock  *fakeClock
	svcs   *app.Services
	server *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := &env{
		t:     t,
		store: newMemStore(),
		rec:   &memRecorder{},
		clock: &fakeClock{now: time.Now().UTC().Truncate(time.Second)},
	}
	svcs, err := app.Build(context.Background(), e.store.stores(), security.NewTestKeys(), ratelimit.New(client, "test"),
		e.rec, async.Inline{Log: zerolog.Nop()}, zerolog.Nop(), app.Options{
			BcryptCost:       4,
			SessionMaxAge:    24 * time.Hour,
			TouchInterval:    5 * time.Minute,
			AssertionTTL:     12 * time.Hour,
			ReauthMaxAge:     10 * time.Minute,
			ImpersonationTTL: time.Hour,
			StoreTimeout:     time.Second,
			LoginIPLimit:     100,
			LoginEmailLimit:  20,
			MFAAttemptLimit:  5,
			RateWindow:       time.Minute,
			TOTPIssuer:       "Back Office Test",
		})
	require.NoError(t, err)
	e.svcs = svcs

	deps := svcs.Deps
	deps.Now = e.clock.Now
	deps.Health = healthhandler.NewHandler(nil, nil, svcs.Policy)
	s, err := server.New(":0", deps)
	require.NoError(t, err)
	e.server = httptest.NewServer(s.Handler())
	t.Cleanup(e.server.Close)
	return e
}

// register creates a user through the account service.
func (e *env) register(email string, superadmin bool) string {
	e.t.Helper()
	u, err := e.svcs.Deps.Auth.Register(context.Background(), email, testPassword, email, superadmin)
	require.NoError(e.t, err)
	return u.ID
}

func (e *env) totp(secret string) string {
	e.t.Helper()
	code, err := mfa.TOTPCode(secret, e.clock.Now())
	require.NoError(e.t, err)
	return code
}

// browser is one cookie-carrying client. Redirects are not followed.
type browser struct {
	e   *env
	c   *http.Client
	ua  string
	mfa string // TOTP secret after enrollment
}

func (e *env) browser(ua string) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(e.t, err)
	return &browser{e: e, ua: ua, c: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

type response struct {
	status int
	header http.Header
	body   map[string]any
	raw    []byte
}

func (b *browser) do(method, path string, body any) response {
	b.e.t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(b.e.t, err)
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, b.e.server.URL+path, rd)
	require.NoError(b.e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.ua != "" {
		req.Header.Set("User-Agent", b.ua)
	}
	resp, err := b.c.Do(req)
	require.NoError(b.e.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.e.t, err)
	out := response{status: resp.StatusCode, header: resp.Header, raw: raw}
	if len(bytes.TrimSpace(raw)) > 0 && raw[0] == '{' {
		require.NoError(b.e.t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

func (b *browser) login(email string) response {
	b.e.t.Helper()
	r := b.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": testPassword})
	require.Equal(b.e.t, http.StatusOK, r.status, string(r.raw))
	return r
}

// enroll runs TOTP enrollment for the logged-in user and returns the recovery codes.
func (b *browser) enroll() []string {
	b.e.t.Helper()
	r := b.do(http.MethodPost, "/api/v1/mfa/enroll", nil)
	require.Equal(b.e.t, http.StatusOK, r.status, string(r.raw))
	b.mfa = r.body["secret"].(string)
	require.NotEmpty(b.e.t, b.mfa)

	r = b.do(http.MethodPost, "/api/v1/mfa/enroll/confirm", map[string]string{"code": b.e.totp(b.mfa)})
	require.Equal(b.e.t, http.StatusOK, r.status, string(r.raw))
	raw := r.body["recoveryCodes"].([]any)
	codes := make([]string, len(raw))
	for i, c := range raw {
		codes[i] = c.(string)
	}
	return codes
}

func (b *browser) verifyTenant(tenantID string) response {
	b.e.t.Helper()
	return b.do(http.MethodPost, "/api/v1/tenants/"+tenantID+"/mfa/verify", map[string]string{"code": b.e.totp(b.mfa)})
}

func (b *browser) verifyGlobal() response {
	b.e.t.Helper()
	return b.do(http.MethodPost, "/api/v1/mfa/global/verify", map[string]string{"code": b.e.totp(b.mfa)})
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
