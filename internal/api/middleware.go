package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// CallerHeader carries the authenticated caller identity, set by the
// gateway in front of the service.
const CallerHeader = "X-Caller-ID"

// BearerAuthMiddleware rejects requests without the configured bearer
// token. An empty token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(CallerHeader))
}
