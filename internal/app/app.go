// Package app wires repositories, keys and the rate limiter into the services behind the HTTP API.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"backoffice/authcore/internal/audit"
	"backoffice/authcore/internal/authz"
	devicerepo "backoffice/authcore/internal/device/repository"
	devicesvc "backoffice/authcore/internal/device/service"
	identityrepo "backoffice/authcore/internal/identity/repository"
	identitysvc "backoffice/authcore/internal/identity/service"
	membershiprepo "backoffice/authcore/internal/membership/repository"
	membershipsvc "backoffice/authcore/internal/membership/service"
	"backoffice/authcore/internal/mfa"
	mfarepo "backoffice/authcore/internal/mfa/repository"
	mfasvc "backoffice/authcore/internal/mfa/service"
	"backoffice/authcore/internal/platform/async"
	"backoffice/authcore/internal/policy/engine"
	policyrepo "backoffice/authcore/internal/policy/repository"
	policysvc "backoffice/authcore/internal/policy/service"
	"backoffice/authcore/internal/ratelimit"
	"backoffice/authcore/internal/reauth"
	"backoffice/authcore/internal/security"
	sessionrepo "backoffice/authcore/internal/session/repository"
	sessionsvc "backoffice/authcore/internal/session/service"
	"backoffice/authcore/internal/server"
	tenantrepo "backoffice/authcore/internal/tenant/repository"
	userrepo "backoffice/authcore/internal/user/repository"
)

// Stores is the persistence the services run on.
type Stores struct {
	Users         userrepo.Repository
	Identities    identityrepo.Repository
	Sessions      sessionrepo.Repository
	Devices       devicerepo.Repository
	Memberships   membershiprepo.Repository
	Tenants       tenantrepo.Repository
	RecoveryCodes mfarepo.Repository
	Policies      policyrepo.Repository
}

// Options carries the tunables read from config.
type Options struct {
	BcryptCost       int
	SessionMaxAge    time.Duration
	TouchInterval    time.Duration
	AssertionTTL     time.Duration
	ReauthMaxAge     time.Duration
	ImpersonationTTL time.Duration
	StoreTimeout     time.Duration
	LoginIPLimit     int
	LoginEmailLimit  int
	MFAAttemptLimit  int
	RateWindow       time.Duration
	TOTPIssuer       string
	SecureCookies    bool
}

// Services is the wired service graph.
type Services struct {
	Deps   server.Deps
	Policy *engine.OPAEvaluator
}

// Build constructs every service. tasks runs best-effort work off the request path.
func Build(ctx context.Context, st Stores, keys security.Keys, limiter *ratelimit.Limiter, recorder audit.Recorder,
	tasks async.Dispatcher, log zerolog.Logger, opts Options) (*Services, error) {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	hasher := security.NewHasher(opts.BcryptCost)

	devices := devicesvc.NewTrustEngine(st.Devices, keys.Fingerprinter, tasks, recorder, log)
	sessions := sessionsvc.NewService(st.Sessions, st.Users, devices, keys.Session, keys.Fingerprinter, tasks, recorder, log,
		sessionsvc.Options{MaxAge: opts.SessionMaxAge, TouchInterval: opts.TouchInterval})

	verifier := identitysvc.NewVerifier(st.Users, st.Identities, hasher,
		limiter.Bucket("login_ip", opts.LoginIPLimit, opts.RateWindow),
		limiter.Bucket("login_email", opts.LoginEmailLimit, opts.RateWindow),
		opts.StoreTimeout)
	auth := identitysvc.NewAuthService(verifier, st.Users, st.Identities, hasher, sessions, recorder, log)

	assertions := mfa.NewAssertions(keys.MFAAssertion, opts.AssertionTTL)
	mfaService := mfasvc.NewService(st.Tenants, st.Users, st.RecoveryCodes, sessions, devices,
		limiter.Bucket("mfa", opts.MFAAttemptLimit, opts.RateWindow), assertions, recorder, log,
		mfasvc.Options{Issuer: opts.TOTPIssuer, StoreTimeout: opts.StoreTimeout})

	grants := authz.NewGrants(keys.Impersonation, opts.ImpersonationTTL)
	policy, err := engine.NewOPAEvaluator(ctx, st.Policies, opts.ReauthMaxAge)
	if err != nil {
		return nil, fmt.Errorf("reauth policy: %w", err)
	}

	return &Services{
		Policy: policy,
		Deps: server.Deps{
			Log:           log,
			Auth:          auth,
			Sessions:      sessions,
			Devices:       devices,
			Resolver:      authz.NewResolver(st.Memberships, grants),
			Impersonation: authz.NewImpersonation(st.Tenants, grants, recorder),
			MFA:           mfaService,
			Gate:          reauth.NewGate(policy, assertions, opts.ReauthMaxAge, log),
			Memberships:   membershipsvc.NewService(st.Memberships, recorder),
			Policies:      policysvc.NewService(st.Tenants, st.Policies, recorder),
			Recorder:      recorder,
			SecureCookies: opts.SecureCookies,
		},
	}, nil
}
