package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/sydsec/gatehouse/internal/auth/service"
	"github.com/sydsec/gatehouse/pkg/httpx"
	"github.com/sydsec/gatehouse/pkg/jwtx"
)

type ctxKey int

const ctxKeyEmail ctxKey = iota

// RequireAccessToken guards a handler behind a bearer access token. Pending,
// refresh and verification tokens do not pass; only the access type does.
func RequireAccessToken(tokens *service.TokenService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				httpx.WriteError(w, r, http.StatusUnauthorized, "invalid_token", "missing bearer token")
				return
			}

			claims, err := tokens.ValidateTyped(raw, jwtx.TypeAccess)
			if err != nil {
				httpx.WriteError(w, r, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyEmail, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EmailFromContext returns the authenticated subject placed by
// RequireAccessToken.
func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(ctxKeyEmail).(string)
	return email
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
