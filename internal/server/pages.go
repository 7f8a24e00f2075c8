package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"backoffice/authcore/internal/authctx"
)

// Redirect targets for the page variant.
const (
	loginPath     = "/login"
	forbiddenPath = "/forbidden"
)

func tenantMFAPath(tenantID, page string) string {
	return "/t/" + url.PathEscape(tenantID) + "/mfa/" + page
}

// handleTenantPage guards /t/{tenantID}/... for browser navigation. Denials become redirects: no
// session to login, no access to forbidden, unmet MFA to enrollment or verification. The MFA pages
// themselves only need tenant access.
func (s *Server) handleTenantPage(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	if !rc.Authenticated() {
		http.Redirect(w, r, loginPath+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		return
	}
	tenantID := chi.URLParam(r, "tenantID")
	d, err := s.Resolver.Resolve(r.Context(), rc, tenantID)
	if err != nil {
		s.fail(w, r, err, "tenant resolution failed")
		return
	}
	s.Metrics.Decision(r.Context(), "tenant_access", d.Outcome.String())
	if d.Outcome != authctx.Granted {
		http.Redirect(w, r, forbiddenPath, http.StatusFound)
		return
	}
	rest := strings.Trim(chi.URLParam(r, "*"), "/")
	if rest != "mfa/enroll" && rest != "mfa/verify" {
		p, err := s.MFA.Check(r.Context(), rc, tenantID, d.Access.IsImpersonating)
		if err != nil {
			s.fail(w, r, err, "mfa policy check failed")
			return
		}
		s.Metrics.Decision(r.Context(), "tenant_mfa", p.Outcome.String())
		switch p.Outcome {
		case authctx.Granted:
		case authctx.MFARequired:
			page := "enroll"
			if p.Enrolled {
				page = "verify"
			}
			http.Redirect(w, r, tenantMFAPath(tenantID, page), http.StatusFound)
			return
		default:
			writeDenied(w, p.Outcome)
			return
		}
	}
	writeJSON(w, http.StatusOK, viewOf(d.Access))
}
