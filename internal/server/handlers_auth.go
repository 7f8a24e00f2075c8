package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"backoffice/authcore/internal/authctx"
	identitysvc "backoffice/authcore/internal/identity/service"
	sessionsvc "backoffice/authcore/internal/session/service"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID             string    `json:"userId"`
	SessionID          string    `json:"sessionId"`
	ExpiresAt          time.Time `json:"expiresAt"`
	RequiresStepUp     bool      `json:"requiresStepUp"`
	MustChangePassword bool      `json:"mustChangePassword"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rc := requestContext(r)
	res, err := s.Auth.Login(r.Context(), req.Email, req.Password, rc)
	if err != nil {
		if errors.Is(err, identitysvc.ErrAuthenticationFailed) {
			s.Metrics.Decision(r.Context(), "login", "unauthenticated")
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid email or password")
			return
		}
		s.fail(w, r, err, "login failed")
		return
	}
	s.Metrics.Decision(r.Context(), "login", "granted")
	s.setCookie(w, SessionCookieName, res.Token, res.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		UserID:             res.UserID,
		SessionID:          res.Session.ID,
		ExpiresAt:          res.Session.ExpiresAt,
		RequiresStepUp:     res.RequiresStepUp,
		MustChangePassword: res.MustChangePassword,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.Auth.Logout(r.Context(), requestContext(r)); err != nil {
		s.fail(w, r, err, "logout failed")
		return
	}
	s.clearCookie(w, SessionCookieName)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := s.Auth.LogoutEverywhere(r.Context(), requestContext(r)); err != nil {
		s.fail(w, r, err, "logout everywhere failed")
		return
	}
	s.clearCookie(w, SessionCookieName)
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	UserID         string `json:"userId"`
	Email          string `json:"email"`
	SessionID      string `json:"sessionId"`
	IsSuperadmin   bool   `json:"isSuperadmin"`
	MFAEnabled     bool   `json:"mfaEnabled"`
	RequiresStepUp bool   `json:"requiresStepUp"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := requestContext(r).Session
	writeJSON(w, http.StatusOK, meResponse{
		UserID:         sess.UserID,
		Email:          sess.Email,
		SessionID:      sess.ID,
		IsSuperadmin:   sess.IsSuperadmin,
		MFAEnabled:     sess.MFAEnabled,
		RequiresStepUp: sess.RequiresStepUp,
	})
}

type sessionView struct {
	ID         string     `json:"id"`
	IPAddress  string     `json:"ipAddress"`
	UserAgent  string     `json:"userAgent"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Current    bool       `json:"current"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	rows, err := s.Sessions.ListForUser(r.Context(), rc.Session.UserID, rc.Now)
	if err != nil {
		s.fail(w, r, err, "list sessions failed")
		return
	}
	out := make([]sessionView, 0, len(rows))
	for _, row := range rows {
		out = append(out, sessionView{
			ID:         row.ID,
			IPAddress:  row.IPAddress,
			UserAgent:  row.UserAgent,
			CreatedAt:  row.CreatedAt,
			LastSeenAt: row.LastSeenAt,
			ExpiresAt:  row.ExpiresAt,
			Current:    row.ID == rc.Session.ID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	id := chi.URLParam(r, "sessionID")
	err := s.Sessions.RevokeOwned(r.Context(), rc.Session.UserID, id, rc)
	switch {
	case errors.Is(err, sessionsvc.ErrNotFound):
		writeDenied(w, authctx.NotFound)
		return
	case err != nil:
		s.fail(w, r, err, "revoke session failed")
		return
	}
	if id == rc.Session.ID {
		s.clearCookie(w, SessionCookieName)
	}
	w.WriteHeader(http.StatusNoContent)
}

type deviceView struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	Approved   bool       `json:"approved"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if s.Devices == nil {
		writeJSON(w, http.StatusOK, map[string]any{"devices": []deviceView{}})
		return
	}
	rc := requestContext(r)
	rows, err := s.Devices.List(r.Context(), rc.Session.UserID)
	if err != nil {
		s.fail(w, r, err, "list devices failed")
		return
	}
	out := make([]deviceView, 0, len(rows))
	for _, d := range rows {
		out = append(out, deviceView{
			ID:         d.ID,
			Label:      d.Label,
			Approved:   d.IsApproved(),
			ApprovedAt: d.ApprovedAt,
			LastSeenAt: d.LastSeenAt,
			CreatedAt:  d.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

func (s *Server) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	if s.Devices == nil {
		writeDenied(w, authctx.NotFound)
		return
	}
	rc := requestContext(r)
	ok, err := s.Devices.Revoke(r.Context(), rc.Session.UserID, chi.URLParam(r, "deviceID"), rc)
	if err != nil {
		s.fail(w, r, err, "revoke device failed")
		return
	}
	if !ok {
		writeDenied(w, authctx.NotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
