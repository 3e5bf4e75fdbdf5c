package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/labkit"
)

// SessionHeader is read when no Authorization bearer token is present.
const SessionHeader = "X-Session-Token"

// RequirePermission admits requests whose session grants perm. operation
// names the route in errors and audit records.
func RequirePermission(engine *labkit.Engine, operation, perm string) func(http.Handler) http.Handler {
	return guard(func(r *http.Request, token string) (*labkit.SessionInfo, error) {
		return engine.Authorize(r.Context(), token, operation, perm)
	}, engine)
}

// RequireRole admits requests whose session holds exactly role.
func RequireRole(engine *labkit.Engine, operation, role string) func(http.Handler) http.Handler {
	return guard(func(r *http.Request, token string) (*labkit.SessionInfo, error) {
		return engine.AuthorizeRole(r.Context(), token, operation, role)
	}, engine)
}

type checkFunc func(r *http.Request, token string) (*labkit.SessionInfo, error)

func guard(check checkFunc, engine *labkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if ip := clientIP(r); ip != "" {
				r = r.WithContext(labkit.WithClientIP(r.Context(), ip))
			}

			info, err := check(r, RequestToken(r))
			if err != nil {
				status := StatusFor(err)
				http.Error(w, http.StatusText(status), status)
				return
			}

			ctx := labkit.WithSession(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StatusFor maps a gate error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case labkit.IsAuthentication(err):
		return http.StatusUnauthorized
	case labkit.IsAuthorization(err):
		return http.StatusForbidden
	case errors.Is(err, labkit.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, labkit.ErrSessionBackend):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RequestToken returns the session token carried by r, or "".
func RequestToken(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
