package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/ratelimit"
	"backoffice/authcore/internal/reauth"
)

// Error codes in the JSON error envelope.
const (
	codeUnauthenticated = "unauthenticated"
	codeForbidden       = "forbidden"
	codeNotFound        = "not_found"
	codeRateLimited     = "rate_limited"
	codeMFARequired     = "mfa_required"
	codeReauthRequired  = "reauth_required"
	codeBadRequest      = "bad_request"
	codeConflict        = "conflict"
	codeUnavailable     = "unavailable"
	codeInternal        = "internal_error"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type mfaRequiredBody struct {
	Error    string `json:"error"`
	Enrolled bool   `json:"enrolled"`
}

type reauthRequiredBody struct {
	Error     string `json:"error"`
	ReauthURL string `json:"reauthUrl"`
	MaxAgeMs  int64  `json:"maxAgeMs"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeDenied writes the status for a non-granted outcome. MFARequired and ReauthRequired need
// their own payloads and go through writeMFARequired and writeReauth.
func writeDenied(w http.ResponseWriter, o authctx.Outcome) {
	switch o {
	case authctx.Unauthenticated:
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "authentication required")
	case authctx.Forbidden:
		writeError(w, http.StatusForbidden, codeForbidden, "access denied")
	case authctx.NotFound:
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case authctx.RateLimited:
		writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many attempts")
	case authctx.MFARequired:
		writeMFARequired(w, false)
	case authctx.ReauthRequired:
		writeJSON(w, http.StatusPreconditionRequired, reauthRequiredBody{Error: codeReauthRequired})
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func writeMFARequired(w http.ResponseWriter, enrolled bool) {
	writeJSON(w, http.StatusPreconditionRequired, mfaRequiredBody{Error: codeMFARequired, Enrolled: enrolled})
}

func writeReauth(w http.ResponseWriter, req reauth.Requirement) {
	if req.Outcome != authctx.ReauthRequired {
		writeDenied(w, req.Outcome)
		return
	}
	writeJSON(w, http.StatusPreconditionRequired, reauthRequiredBody{
		Error:     codeReauthRequired,
		ReauthURL: req.ReauthURL,
		MaxAgeMs:  req.MaxAge.Milliseconds(),
	})
}

// fail logs err and writes a generic 5xx. Limiter outages and timeouts are 503.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	s.log.Error().Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(msg)
	if errors.Is(err, ratelimit.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "service temporarily unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

// decodeJSON reads a JSON body into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return false
	}
	return true
}
