package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/nine4-team/memories-sub004/internal/api/shared"
)

// ServiceTokenHeader carries the shared token for internal routes.
const ServiceTokenHeader = "X-Service-Token"

// ServiceTokenMiddleware guards internal routes with a shared service
// token. The comparison is constant time. Requests that pass are marked
// as trusted callers in the context.
func ServiceTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := strings.TrimSpace(r.Header.Get(ServiceTokenHeader))
			if presented == "" {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Service token required")
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized,
					"Invalid service token", nil, shared.WithElevatedLogLevel())
				return
			}

			ctx := shared.SetTrustedCaller(r.Context())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
