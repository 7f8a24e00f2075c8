package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/mfa"
	mfasvc "backoffice/authcore/internal/mfa/service"
)

type enrollmentResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauthUri"`
}

func (s *Server) handleBeginEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := s.MFA.BeginEnrollment(r.Context(), requestContext(r))
	if err != nil {
		s.mfaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollmentResponse{Secret: e.Secret, URI: e.URI})
}

type codeRequest struct {
	Code         string `json:"code"`
	RecoveryCode string `json:"recoveryCode,omitempty"`
}

type recoveryCodesResponse struct {
	RecoveryCodes []string `json:"recoveryCodes"`
}

func (s *Server) handleConfirmEnrollment(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	codes, err := s.MFA.ConfirmEnrollment(r.Context(), requestContext(r), req.Code)
	if err != nil {
		s.mfaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recoveryCodesResponse{RecoveryCodes: codes})
}

func (s *Server) handleRegenerateRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.MFA.RegenerateRecoveryCodes(r.Context(), requestContext(r))
	if err != nil {
		s.mfaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recoveryCodesResponse{RecoveryCodes: codes})
}

func (s *Server) handleRemainingRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	n, err := s.MFA.RemainingRecoveryCodes(r.Context(), requestContext(r))
	if err != nil {
		s.mfaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remaining": n})
}

// handleGlobalVerify issues the global-scope assertion. Only superadmins act in the global scope.
func (s *Server) handleGlobalVerify(w http.ResponseWriter, r *http.Request) {
	if !requestContext(r).Session.IsSuperadmin {
		writeDenied(w, authctx.Forbidden)
		return
	}
	s.verify(w, r, mfa.GlobalScope)
}

func (s *Server) handleTenantVerify(w http.ResponseWriter, r *http.Request) {
	s.verify(w, r, mfa.TenantScope(chi.URLParam(r, "tenantID")))
}

type verifyResponse struct {
	Method    string    `json:"method"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request, scope mfa.Scope) {
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rc := requestContext(r)
	res, err := s.MFA.Verify(r.Context(), rc, mfasvc.VerifyInput{Scope: scope, Code: req.Code, RecoveryCode: req.RecoveryCode})
	if err != nil {
		s.fail(w, r, err, "mfa verification failed")
		return
	}
	s.Metrics.Decision(r.Context(), "mfa_verify", res.Outcome.String())
	switch res.Outcome {
	case authctx.Granted:
	case authctx.Forbidden:
		writeError(w, http.StatusForbidden, "invalid_code", "invalid verification code")
		return
	case authctx.MFARequired:
		writeMFARequired(w, false)
		return
	default:
		writeDenied(w, res.Outcome)
		return
	}
	s.setCookie(w, scope.CookieName(), res.Token, res.ExpiresAt)
	writeJSON(w, http.StatusOK, verifyResponse{Method: string(res.Method), Scope: string(scope), ExpiresAt: res.ExpiresAt})
}

func (s *Server) mfaError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, mfasvc.ErrAlreadyEnrolled), errors.Is(err, mfasvc.ErrNoPendingEnrollment), errors.Is(err, mfasvc.ErrNotEnrolled):
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, mfasvc.ErrInvalidCode):
		writeError(w, http.StatusUnprocessableEntity, "invalid_code", "invalid verification code")
	case errors.Is(err, mfasvc.ErrRateLimited):
		writeDenied(w, authctx.RateLimited)
	case errors.Is(err, mfasvc.ErrUserNotFound):
		writeDenied(w, authctx.NotFound)
	default:
		s.fail(w, r, err, "mfa request failed")
	}
}
