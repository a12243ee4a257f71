package security

import (
	"crypto/subtle"
	"net/http"

	"gastos/internal/log"
)

// WebhookSecretHeader carries the secret registered with setWebhook.
const WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSecret rejects requests whose secret header does not match.
// An empty secret disables the check.
func WebhookSecret(secret string, logger *log.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent(log.ComponentSecurity)
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		want := []byte(secret)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(WebhookSecretHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				logger.Warn("Webhook secret mismatch",
					log.FieldPath, r.URL.Path,
					log.FieldReason, "bad_secret")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Headers sets the response headers every endpoint carries. The service
// only speaks JSON and plain text, so no CSP is needed.
func Headers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// BearerToken requires "Authorization: Bearer <token>". An empty token
// disables the check.
func BearerToken(token string, logger *log.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent(log.ComponentSecurity)
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte("Bearer " + token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
				logger.Warn("Bearer token mismatch",
					log.FieldPath, r.URL.Path,
					log.FieldReason, "bad_token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="gastos"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
