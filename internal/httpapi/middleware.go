package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/codingarctic/loreshifter-runtime/internal/apperr"
	"github.com/codingarctic/loreshifter-runtime/internal/applog"
)

type ctxKey int

const userIDKey ctxKey = iota

// withLogging mirrors the teacher's plain log.Printf call sites, upgraded
// to structured fields: one line per request, written after the handler
// returns, with method, path and duration_ms.
func withLogging(log func(string, ...any)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log("http request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
		})
	}
}

// withRecover turns a panicking handler into a ServerError response instead
// of crashing the process — the one place this runtime treats a Go panic as
// a reportable condition rather than letting it propagate, since a single
// game's handler panicking must not take the whole process down.
func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				applog.FromContext(r.Context()).Error("panic in handler", "recover", rec, "path", r.URL.Path)
				writeError(r, w, apperr.New(apperr.ServerError, "internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withCORS sets the permissive-by-allowlist CORS headers spec.md §6's
// "CORS origins" config entry names; the teacher has no CORS layer of its
// own (its frontend is same-origin), so this is an enrichment with no
// direct teacher precedent, implemented with stdlib header-setting since no
// pack dependency offers a CORS middleware closer to this need than a
// dozen lines of net/http.
func withCORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	allowAll := len(origins) == 0

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Authentication")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the session token from the Authentication header,
// the Authorization: Bearer header, or the session cookie, in that order,
// per spec.md §6's WebSocket auth rule (applied uniformly to HTTP too).
func bearerToken(r *http.Request) string {
	if v := r.Header.Get("Authentication"); v != "" {
		return v
	}
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		return strings.TrimPrefix(v, "Bearer ")
	}
	if c, err := r.Cookie("session"); err == nil {
		return c.Value
	}
	return ""
}

// authenticate resolves the caller's user id from the request, or returns
// (0, false) when no valid session is present.
func (s *Server) authenticate(r *http.Request) (int64, bool) {
	token := bearerToken(r)
	if token == "" {
		return 0, false
	}
	userID, err := s.issuer.Verify(token)
	if err != nil {
		return 0, false
	}
	return userID, true
}

// withOptionalAuth attaches the caller's user id to the context when a
// valid session is present, without rejecting unauthenticated requests —
// used by read routes where visibility (public vs owner-only) depends on
// who's asking but anonymous access to public rows is allowed.
func (s *Server) withOptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := s.authenticate(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth rejects the request with Unauthorized when no valid session
// is present, otherwise attaches the user id like withOptionalAuth.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.authenticate(r)
		if !ok {
			writeError(r, w, apperr.New(apperr.Unauthorized, "authentication required"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

// requesterFromContext returns the authenticated user id, if any.
func requesterFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok
}

// requesterPtr adapts requesterFromContext to the *int64-shaped optional
// requester id most Universe/GameSystem methods accept.
func requesterPtr(ctx context.Context) *int64 {
	if userID, ok := requesterFromContext(ctx); ok {
		return &userID
	}
	return nil
}
