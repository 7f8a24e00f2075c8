// Package server is the HTTP API: session loading, tenant access resolution, MFA and re-auth gates,
// and the account, tenant and admin routes built on them.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"backoffice/authcore/internal/audit"
	"backoffice/authcore/internal/authz"
	devicesvc "backoffice/authcore/internal/device/service"
	healthhandler "backoffice/authcore/internal/health/handler"
	identitysvc "backoffice/authcore/internal/identity/service"
	membershipsvc "backoffice/authcore/internal/membership/service"
	mfasvc "backoffice/authcore/internal/mfa/service"
	policysvc "backoffice/authcore/internal/policy/service"
	"backoffice/authcore/internal/reauth"
	sessionsvc "backoffice/authcore/internal/session/service"
	telemetryotel "backoffice/authcore/internal/telemetry/otel"
)

// gracefulShutdownTimeout bounds in-flight requests during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the services behind the HTTP API.
type Deps struct {
	Log           zerolog.Logger
	Auth          *identitysvc.AuthService
	Sessions      *sessionsvc.Service
	Devices       *devicesvc.TrustEngine
	Resolver      *authz.Resolver
	Impersonation *authz.Impersonation
	MFA           *mfasvc.Service
	Gate          *reauth.Gate
	Memberships   *membershipsvc.Service
	Policies      *policysvc.Service
	Recorder      audit.Recorder
	Health        *healthhandler.Handler
	// Metrics and TracerProvider are optional.
	Metrics        *telemetryotel.Instruments
	TracerProvider trace.TracerProvider
	SecureCookies  bool
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// Server is the HTTP API server.
type Server struct {
	Deps
	log           zerolog.Logger
	tracer        trace.Tracer
	secureCookies bool
	now           func() time.Time
	handler       http.Handler
	http          *http.Server
}

// New validates deps and builds the router. The server is not started until Start is called.
func New(addr string, deps Deps) (*Server, error) {
	switch {
	case deps.Auth == nil, deps.Sessions == nil:
		return nil, errors.New("server: auth and session services are required")
	case deps.Resolver == nil, deps.MFA == nil, deps.Gate == nil:
		return nil, errors.New("server: resolver, mfa and re-auth gate are required")
	case deps.Memberships == nil, deps.Policies == nil:
		return nil, errors.New("server: membership and policy services are required")
	}
	if deps.Recorder == nil {
		deps.Recorder = audit.Nop{}
	}
	if deps.Health == nil {
		deps.Health = healthhandler.NewHandler(nil, nil, nil)
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		Deps:          deps,
		log:           deps.Log,
		tracer:        tp.Tracer("backoffice/authcore/server"),
		secureCookies: deps.SecureCookies,
		now:           now,
	}
	s.handler = s.buildRouter()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves in a background goroutine. Listener errors other than shutdown are sent on the
// returned channel.
func (s *Server) Start() <-chan error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return errc
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, gracefulShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
