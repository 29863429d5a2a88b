package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/JonMunkholm/salesimport/internal/logging"
)

// APIKeyAuth returns middleware that validates the X-API-Key header against keys.
// If required is false, all requests pass through.
// If required is true but no keys are configured, all requests are rejected.
func APIKeyAuth(required bool, keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				next.ServeHTTP(w, r)
				return
			}

			log := logging.FromContext(r.Context())
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				log.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"ip", ClientIP(r),
				)
				writeAuthError(w, http.StatusUnauthorized, "missing API key", "AUTH001")
				return
			}

			if !isValidAPIKey(apiKey, keys) {
				log.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"ip", ClientIP(r),
				)
				writeAuthError(w, http.StatusForbidden, "invalid API key", "AUTH002")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","message":"` + msg + `","code":"` + code + `"}`))
}

// isValidAPIKey checks if the provided key matches any configured key.
// Every key is compared in constant time so timing does not reveal which matched.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}
