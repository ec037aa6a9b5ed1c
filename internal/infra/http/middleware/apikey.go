package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/tenantaudit/api/pkg/apierror"
	"github.com/tenantaudit/api/pkg/logger"
)

// APIKey guards mutating endpoints with a static admin key, supplied
// either as a Bearer token or in X-API-Key. An empty configured key
// disables the check (development only; production config validation
// rejects it).
func APIKey(key string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get("X-API-Key")
			if presented == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					presented = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				log.Warn("api key rejected",
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				apierror.Unauthorized("").WriteJSON(w, GetRequestID(r.Context()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
