package middleware

import (
	"net/http"
	"strings"
)

// CORS allows the configured origins, a comma-separated list or "*".
func CORS(origins string) func(http.Handler) http.Handler {
	allowedOrigins := strings.Split(origins, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqOrigin := r.Header.Get("Origin")
			allowed := allowedOrigins[0]

			if reqOrigin != "" && isAllowed(reqOrigin, allowedOrigins) {
				allowed = reqOrigin
			}

			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isAllowed(reqOrigin string, configured []string) bool {
	for _, o := range configured {
		if o == "*" || o == reqOrigin {
			return true
		}
	}
	return false
}
