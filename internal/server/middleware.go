package server

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"backoffice/authcore/internal/authctx"
	"backoffice/authcore/internal/authz"
)

// maxRequestBodySize caps request bodies at 1 MB.
const maxRequestBodySize = 1 << 20

// statusWriter captures the response status for logging.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// observe wraps each request in a server span, records the request duration and writes one log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := s.tracer.Start(r.Context(), r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			))
		defer span.End()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(ctx)
		next.ServeHTTP(sw, r)

		route := routePattern(r)
		elapsed := time.Since(start)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", sw.status),
		)
		if sw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(sw.status))
		}
		s.Metrics.Request(ctx, route, r.Method, sw.status, elapsed)

		ev := s.log.Info()
		if sw.status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", sw.status).
			Int64("duration_ms", elapsed.Milliseconds()).
			Str("request_id", middleware.GetReqID(ctx)).
			Msg("http request")
	})
}

// recoverer turns handler panics into a 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("panic recovered in HTTP handler")
				writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func bodySizeLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// sessionToken reads the session cookie, falling back to an Authorization bearer token.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// loadSession builds the request context for every request. A present token is validated against
// the store; an invalid one leaves the request unauthenticated and clears the cookie.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := &authctx.RequestContext{
			Cookies:   cookiesOf(r),
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
			Now:       s.now(),
		}
		if token := sessionToken(r); token != "" {
			v, err := s.Sessions.Validate(r.Context(), token, rc.Now)
			if err != nil {
				s.fail(w, r, err, "session validation failed")
				return
			}
			s.Metrics.Decision(r.Context(), "session", v.Outcome.String())
			switch {
			case v.Outcome == authctx.Granted:
				rc.Session = v.Session
				if v.RefreshedToken != "" {
					s.setCookie(w, SessionCookieName, v.RefreshedToken, v.ExpiresAt)
				}
			case rc.Cookies.Get(SessionCookieName) != "":
				s.clearCookie(w, SessionCookieName)
			}
		}
		next.ServeHTTP(w, r.WithContext(authctx.With(r.Context(), rc)))
	})
}

func requestContext(r *http.Request) *authctx.RequestContext {
	if rc, ok := authctx.From(r.Context()); ok {
		return rc
	}
	return &authctx.RequestContext{Cookies: authctx.Cookies{}}
}

// requireSession rejects unauthenticated requests with 401.
func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestContext(r).Authenticated() {
			writeDenied(w, authctx.Unauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type accessKey struct{}

// accessFrom returns the tenant access resolved by resolveTenant.
func accessFrom(r *http.Request) *authz.AccessContext {
	a, _ := r.Context().Value(accessKey{}).(*authz.AccessContext)
	return a
}
