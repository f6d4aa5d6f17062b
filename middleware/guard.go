package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	goWarden "github.com/MrEthical07/goWarden"
)

// ObjectAction extracts the policy object and action from a request. The
// default uses the URL path and the HTTP method.
type ObjectAction func(r *http.Request) (object, action string)

func defaultObjectAction(r *http.Request) (string, string) {
	return r.URL.Path, r.Method
}

// Guard returns middleware that authorizes every request through the
// engine. On success the principal is available via
// goWarden.PrincipalFromContext.
func Guard(engine *goWarden.Engine) func(http.Handler) http.Handler {
	return GuardFunc(engine, defaultObjectAction)
}

// GuardFunc is [Guard] with a custom object and action mapping.
func GuardFunc(engine *goWarden.Engine, extract ObjectAction) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := goWarden.WithClientIP(r.Context(), clientIP(r))
			ctx = goWarden.WithUserAgent(ctx, r.UserAgent())

			object, action := extract(r)
			principal, err := engine.Authorize(ctx, token, object, action)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(goWarden.WithPrincipal(ctx, principal)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goWarden.ErrRateLimited):
		if retryAfter := goWarden.RetryAfter(err); retryAfter > 0 {
			seconds := int(retryAfter / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	case errors.Is(err, goWarden.ErrInsufficientPermissions):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
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
