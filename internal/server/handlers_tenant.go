package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	auditdomain "backoffice/authcore/internal/audit/domain"
	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/authz"
	membershipdomain "backoffice/authcore/internal/membership/domain"
	membershipsvc "backoffice/authcore/internal/membership/service"
	"backoffice/authcore/internal/platform/rbac"
	policysvc "backoffice/authcore/internal/policy/service"
	"backoffice/authcore/internal/reauth"
)

// resolveTenant resolves the caller's access to {tenantID} and stores it on the request.
func (s *Server) resolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := s.Resolver.Resolve(r.Context(), requestContext(r), chi.URLParam(r, "tenantID"))
		if err != nil {
			s.fail(w, r, err, "tenant resolution failed")
			return
		}
		s.Metrics.Decision(r.Context(), "tenant_access", d.Outcome.String())
		if d.Outcome != authctx.Granted {
			writeDenied(w, d.Outcome)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accessKey{}, d.Access)))
	})
}

// requireTenantMFA enforces the tenant's MFA requirement on top of resolved access.
func (s *Server) requireTenantMFA(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access := accessFrom(r)
		if access == nil {
			writeDenied(w, authctx.Forbidden)
			return
		}
		p, err := s.MFA.Check(r.Context(), requestContext(r), access.TenantID, access.IsImpersonating)
		if err != nil {
			s.fail(w, r, err, "mfa policy check failed")
			return
		}
		s.Metrics.Decision(r.Context(), "tenant_mfa", p.Outcome.String())
		switch p.Outcome {
		case authctx.Granted:
			next.ServeHTTP(w, r)
		case authctx.MFARequired:
			writeMFARequired(w, p.Enrolled)
		default:
			writeDenied(w, p.Outcome)
		}
	})
}

// gate runs the re-auth gate for op and writes the 428 when it is not met.
func (s *Server) gate(w http.ResponseWriter, r *http.Request, op reauth.Operation, tenantID string, access *authz.AccessContext) bool {
	req := s.Gate.Check(r.Context(), requestContext(r), op, tenantID, access)
	s.Metrics.Decision(r.Context(), "reauth:"+string(op), req.Outcome.String())
	if req.Outcome == authctx.Granted {
		return true
	}
	writeReauth(w, req)
	return false
}

type accessView struct {
	TenantID        string `json:"tenantId"`
	UserID          string `json:"userId"`
	Role            string `json:"role"`
	IsSuperadmin    bool   `json:"isSuperadmin"`
	IsImpersonating bool   `json:"isImpersonating"`
}

func viewOf(a *authz.AccessContext) accessView {
	return accessView{
		TenantID:        a.TenantID,
		UserID:          a.UserID,
		Role:            string(a.Role),
		IsSuperadmin:    a.IsSuperadmin,
		IsImpersonating: a.IsImpersonating,
	}
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(accessFrom(r)))
}

type roleRequest struct {
	Role string `json:"role"`
}

type membershipView struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
	Role     string `json:"role"`
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	next, err := membershipdomain.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid role")
		return
	}
	access := accessFrom(r)
	if o := rbac.RequireCanAssign(access, next); o != authctx.Granted {
		writeDenied(w, o)
		return
	}
	target := chi.URLParam(r, "userID")
	current, err := s.Memberships.Get(r.Context(), access.TenantID, target)
	if err != nil {
		s.membershipError(w, r, err)
		return
	}
	if membershipdomain.IsElevation(current.Role, next) &&
		!s.gate(w, r, reauth.OpRoleElevate, access.TenantID, access) {
		return
	}
	m, err := s.Memberships.ChangeRole(r.Context(), requestContext(r), access.TenantID, target, next)
	if err != nil {
		s.membershipError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipView{TenantID: m.TenantID, UserID: m.UserID, Role: string(m.Role)})
}

func (s *Server) handleDisableMFA(w http.ResponseWriter, r *http.Request) {
	access := accessFrom(r)
	if o := rbac.RequireTenantAdmin(access); o != authctx.Granted {
		writeDenied(w, o)
		return
	}
	target := chi.URLParam(r, "userID")
	if _, err := s.Memberships.Get(r.Context(), access.TenantID, target); err != nil {
		s.membershipError(w, r, err)
		return
	}
	if !s.gate(w, r, reauth.OpMFARemoveOther, access.TenantID, access) {
		return
	}
	if err := s.MFA.DisableForUser(r.Context(), requestContext(r), access.TenantID, target); err != nil {
		s.mfaError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type exportRequest struct {
	Format string `json:"format,omitempty"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	req := exportRequest{Format: "csv"}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.Format != "csv" && req.Format != "json" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "format must be csv or json")
		return
	}
	access := accessFrom(r)
	if o := rbac.RequireTenantAdmin(access); o != authctx.Granted {
		writeDenied(w, o)
		return
	}
	if !s.gate(w, r, reauth.OpDataExport, access.TenantID, access) {
		return
	}
	rc := requestContext(r)
	id := uuid.New().String()
	s.Recorder.Record(r.Context(), auditdomain.AccessEvent{
		Kind:        auditdomain.KindDataExportRequested,
		ActorUserID: rc.Session.UserID,
		TenantID:    access.TenantID,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
		Metadata:    map[string]string{"export_id": id, "format": req.Format},
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"exportId": id, "status": "accepted"})
}

type policyRequest struct {
	MFARequired     *bool  `json:"mfaRequired,omitempty"`
	Rules           string `json:"rules,omitempty"`
	DisablePolicyID string `json:"disablePolicyId,omitempty"`
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	access := accessFrom(r)
	if o := rbac.RequireTenantAdmin(access); o != authctx.Granted {
		writeDenied(w, o)
		return
	}
	if !s.gate(w, r, reauth.OpTenantPolicyChange, access.TenantID, access) {
		return
	}
	id, err := s.Policies.Apply(r.Context(), requestContext(r), access.TenantID, policysvc.Change{
		MFARequired:     req.MFARequired,
		Rules:           req.Rules,
		DisablePolicyID: req.DisablePolicyID,
	})
	switch {
	case errors.Is(err, policysvc.ErrEmptyChange), errors.Is(err, policysvc.ErrInvalidRules):
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	case err != nil:
		s.fail(w, r, err, "policy change failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"policyId": id})
}

func (s *Server) membershipError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, membershipsvc.ErrNotMember):
		writeDenied(w, authctx.NotFound)
	case errors.Is(err, membershipdomain.ErrLastOwner):
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	default:
		s.fail(w, r, err, "membership request failed")
	}
}
