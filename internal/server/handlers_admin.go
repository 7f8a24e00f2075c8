package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/authz"
	identitysvc "backoffice/authcore/internal/identity/service"
	"backoffice/authcore/internal/reauth"
)

// requireSuperadmin rejects callers without platform-wide privileges with 403.
func requireSuperadmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestContext(r).Session.IsSuperadmin {
			writeDenied(w, authctx.Forbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type impersonationResponse struct {
	TenantID  string    `json:"tenantId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleStartImpersonation(w http.ResponseWriter, r *http.Request) {
	if s.Impersonation == nil {
		writeDenied(w, authctx.NotFound)
		return
	}
	tenantID := chi.URLParam(r, "tenantID")
	if !s.gate(w, r, reauth.OpImpersonationStart, "", nil) {
		return
	}
	rc := requestContext(r)
	res, err := s.Impersonation.Start(r.Context(), rc, tenantID)
	if err != nil {
		s.fail(w, r, err, "start impersonation failed")
		return
	}
	switch res.Outcome {
	case authctx.Granted:
	case authctx.MFARequired:
		writeMFARequired(w, rc.Session.MFAEnabled)
		return
	default:
		writeDenied(w, res.Outcome)
		return
	}
	s.setCookie(w, authz.GrantCookieName(res.Grant.TenantID), res.Grant.Token, res.Grant.ExpiresAt)
	writeJSON(w, http.StatusCreated, impersonationResponse{TenantID: res.Grant.TenantID, ExpiresAt: res.Grant.ExpiresAt})
}

func (s *Server) handleStopImpersonation(w http.ResponseWriter, r *http.Request) {
	if s.Impersonation == nil {
		writeDenied(w, authctx.NotFound)
		return
	}
	tenantID := chi.URLParam(r, "tenantID")
	if o := s.Impersonation.Stop(r.Context(), requestContext(r), tenantID); o != authctx.Granted {
		writeDenied(w, o)
		return
	}
	s.clearCookie(w, authz.GrantCookieName(tenantID))
	w.WriteHeader(http.StatusNoContent)
}

type passwordResetRequest struct {
	NewPassword string `json:"newPassword"`
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.gate(w, r, reauth.OpCredentialReset, "", nil) {
		return
	}
	err := s.Auth.ResetPassword(r.Context(), requestContext(r), chi.URLParam(r, "userID"), req.NewPassword)
	switch {
	case errors.Is(err, identitysvc.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, identitysvc.ErrUserNotFound):
		writeDenied(w, authctx.NotFound)
	case err != nil:
		s.fail(w, r, err, "password reset failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
