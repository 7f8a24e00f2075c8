package server

import (
	"net/http"
	"time"

	"backoffice/authcore/internal/authctx"
)

// SessionCookieName carries the session token.
const SessionCookieName = "bo_session"

func (s *Server) setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	maxAge := int(expires.Sub(s.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookiesOf(r *http.Request) authctx.Cookies {
	out := authctx.Cookies{}
	for _, c := range r.Cookies() {
		if _, dup := out[c.Name]; !dup {
			out[c.Name] = c.Value
		}
	}
	return out
}
