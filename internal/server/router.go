package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(s.recoverer)
	r.Use(bodySizeLimit)

	r.Get("/healthz", s.Health.Liveness)
	r.Get("/readyz", s.Health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(s.loadSession)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/auth/login", s.handleLogin)

			r.Group(func(r chi.Router) {
				r.Use(requireSession)

				r.Post("/auth/logout", s.handleLogout)
				r.Post("/auth/logout-all", s.handleLogoutAll)
				r.Get("/me", s.handleMe)

				r.Get("/sessions", s.handleListSessions)
				r.Post("/sessions/{sessionID}/revoke", s.handleRevokeSession)
				r.Get("/devices", s.handleListDevices)
				r.Post("/devices/{deviceID}/revoke", s.handleRevokeDevice)

				r.Post("/mfa/enroll", s.handleBeginEnrollment)
				r.Post("/mfa/enroll/confirm", s.handleConfirmEnrollment)
				r.Get("/mfa/recovery-codes", s.handleRemainingRecoveryCodes)
				r.Post("/mfa/recovery-codes", s.handleRegenerateRecoveryCodes)
				r.Post("/mfa/global/verify", s.handleGlobalVerify)

				r.Route("/tenants/{tenantID}", func(r chi.Router) {
					r.Use(s.resolveTenant)
					r.Post("/mfa/verify", s.handleTenantVerify)

					r.Group(func(r chi.Router) {
						r.Use(s.requireTenantMFA)
						r.Get("/access", s.handleAccess)
						r.Put("/members/{userID}/role", s.handleChangeRole)
						r.Post("/members/{userID}/mfa/disable", s.handleDisableMFA)
						r.Post("/export", s.handleExport)
						r.Put("/policy", s.handlePolicy)
					})
				})

				r.Route("/admin", func(r chi.Router) {
					r.Use(requireSuperadmin)
					r.Post("/impersonations/{tenantID}", s.handleStartImpersonation)
					r.Delete("/impersonations/{tenantID}", s.handleStopImpersonation)
					r.Post("/users/{userID}/password-reset", s.handlePasswordReset)
				})
			})
		})

		r.Get("/t/{tenantID}", s.handleTenantPage)
		r.Get("/t/{tenantID}/*", s.handleTenantPage)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}
