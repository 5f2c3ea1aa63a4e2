package middleware

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/penwell/authguard"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

type identityContextKey struct{}

// IdentityFromContext returns the identity stored by [LoadIdentity] or
// [RequireIdentity].
func IdentityFromContext(ctx context.Context) (authguard.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(authguard.Identity)
	return id, ok
}

// RequestID propagates an inbound X-Request-ID or assigns a fresh one, echoes
// it on the response and attaches it to the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(authguard.WithRequestID(r.Context(), id)))
	})
}

// ClientInfo attaches the client address and User-Agent to the request
// context so Login can classify the device and resolve a location. Forwarding
// headers are only honoured when trustProxy is set.
func ClientInfo(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if ip := ClientIP(r, trustProxy); ip != "" {
				ctx = authguard.WithClientIP(ctx, ip)
			}
			if ua := r.UserAgent(); ua != "" {
				ctx = authguard.WithUserAgent(ctx, ua)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the caller's address, or "".
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip.String()
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

// LoadIdentity resolves the session cookie when present and stores the
// identity in the request context. Anonymous requests pass through.
func LoadIdentity(engine *authguard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}
			id, err := engine.IdentityFromRequest(r.Context(), r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityContextKey{}, id)))
		})
	}
}

// RequireIdentity rejects requests without a valid session with 401, or 503
// when the session store is unreachable.
func RequireIdentity(engine *authguard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, ok := IdentityFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			id, err := engine.IdentityFromRequest(r.Context(), r)
			if err != nil {
				if errors.Is(err, authguard.ErrStoreUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityContextKey{}, id)))
		})
	}
}

// IdentifierFunc extracts the resource identifier of a request, e.g. the
// user id or the client address. "" rejects the request with 400.
type IdentifierFunc func(r *http.Request) string

// ByUserID identifies requests by the authenticated user. It must run after
// [LoadIdentity] or [RequireIdentity].
func ByUserID(r *http.Request) string {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		return ""
	}
	return strconv.FormatInt(id.UserID, 10)
}

// ByClientIP identifies requests by their direct peer address.
func ByClientIP(r *http.Request) string {
	return ClientIP(r, false)
}

// LimitResource gates the handler behind the daily cap for kind. The counter
// is incremented only when the handler answers with a non-error status.
func LimitResource(engine *authguard.Engine, kind string, identify IdentifierFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			identifier := identify(r)
			if identifier == "" {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}

			err := engine.RequireResource(r.Context(), kind, identifier)
			switch {
			case err == nil:
			case errors.Is(err, authguard.ErrResourceLimited):
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			default:
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			if sw.status < http.StatusBadRequest {
				// The engine logs failures; the response is already written.
				_, _ = engine.IncrementResource(r.Context(), kind, identifier)
			}
		})
	}
}

// LockGuard rejects requests while kind is locked for the request's
// identifier, answering 429 with a Retry-After header. Handlers record
// failures with [authguard.Engine.RecordFailure].
func LockGuard(engine *authguard.Engine, kind string, identify IdentifierFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			identifier := identify(r)
			if identifier == "" {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}

			locked, retryAfter, err := engine.ResourceLocked(r.Context(), kind, identifier)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if locked {
				secs := int64(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

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

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
