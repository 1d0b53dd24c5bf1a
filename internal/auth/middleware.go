package auth

import (
	"net/http"

	"go.uber.org/zap"
)

// LocalSubject is the user id injected when authentication is disabled.
const LocalSubject = "local-dev"

type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, code, message string)

type MiddlewareConfig struct {
	Disabled bool
	Logger   *zap.Logger
	OnError  ErrorWriter
}

// Middleware requires a valid bearer token and stores its claims in the
// request context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	fail := cfg.OnError
	if fail == nil {
		fail = func(w http.ResponseWriter, _ *http.Request, status int, _, message string) {
			http.Error(w, message, status)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Disabled {
				claims := &Claims{Subject: LocalSubject, Issuer: "local", Raw: map[string]any{"sub": LocalSubject}}
				next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
				return
			}
			if verifier == nil {
				fail(w, r, http.StatusUnauthorized, "unauthorized", "auth verifier not configured")
				return
			}
			header := r.Header.Get("Authorization")
			if header == "" {
				fail(w, r, http.StatusUnauthorized, "unauthorized", "missing authorization header")
				return
			}
			token, ok := BearerToken(header)
			if !ok {
				fail(w, r, http.StatusUnauthorized, "unauthorized", "invalid authorization header")
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				log.Info("auth failure", zap.String("path", r.URL.Path), zap.Error(err))
				fail(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}
