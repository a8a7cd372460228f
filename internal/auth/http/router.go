package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sydsec/gatehouse/internal/auth/service"
	"github.com/sydsec/gatehouse/pkg/httpx"
	"github.com/sydsec/gatehouse/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	logger    *slog.Logger
	startTime time.Time

	TokenService      *service.TokenService
	CredentialService *service.CredentialService
	WebAuthnService   *service.WebAuthnService
	PushService       *service.PushService
}

func NewRouter(logger *slog.Logger) *Router {
	r := &Router{
		Mux:       http.NewServeMux(),
		logger:    logger,
		startTime: time.Now(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerWebAuthn()
	r.registerPush()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Credentials: r.CredentialService, Tokens: r.TokenService}
	authn := RequireAccessToken(r.TokenService)

	// Credential-bearing endpoints get the strict per-IP limit.
	r.Mux.Handle("POST /auth/signup",
		httpx.Chain(http.HandlerFunc(h.HandleSignup), httpx.RateLimitMiddleware(httpx.StrictLimit)))
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin), httpx.RateLimitMiddleware(httpx.StrictLimit)))
	r.Mux.Handle("POST /auth/verify-totp",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyTOTP), httpx.RateLimitMiddleware(httpx.StrictLimit)))
	r.Mux.Handle("POST /auth/refresh", http.HandlerFunc(h.HandleRefresh))
	r.Mux.Handle("POST /auth/verify-email", http.HandlerFunc(h.HandleVerifyEmail))

	r.Mux.Handle("POST /auth/enable-totp", httpx.Chain(http.HandlerFunc(h.HandleEnableTOTP), authn))
	r.Mux.Handle("POST /auth/disable-totp", httpx.Chain(http.HandlerFunc(h.HandleDisableTOTP), authn))
	r.Mux.Handle("GET /auth/me", httpx.Chain(http.HandlerFunc(h.HandleMe), authn))
}

func (r *Router) registerWebAuthn() {
	h := &WebAuthnHandler{WebAuthn: r.WebAuthnService}
	authn := RequireAccessToken(r.TokenService)

	r.Mux.Handle("POST /webauthn/register/options",
		httpx.Chain(http.HandlerFunc(h.HandleRegisterOptions), authn))
	r.Mux.Handle("POST /webauthn/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegisterFinish), authn))
	r.Mux.Handle("GET /webauthn/credentials",
		httpx.Chain(http.HandlerFunc(h.HandleListCredentials), authn))
	r.Mux.Handle("DELETE /webauthn/credentials/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleDeleteCredential), authn))

	r.Mux.Handle("POST /webauthn/auth/options", http.HandlerFunc(h.HandleAuthOptions))
	r.Mux.Handle("POST /webauthn/auth/verify",
		httpx.Chain(http.HandlerFunc(h.HandleAuthVerify), httpx.RateLimitMiddleware(httpx.StrictLimit)))
}

func (r *Router) registerPush() {
	h := &PushHandler{Push: r.PushService}
	authn := RequireAccessToken(r.TokenService)

	r.Mux.Handle("POST /push/generate", httpx.Chain(http.HandlerFunc(h.HandleGenerate), authn))
	r.Mux.Handle("POST /push/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify), httpx.RateLimitMiddleware(httpx.StrictLimit)))
	r.Mux.Handle("GET /push/listen", http.HandlerFunc(h.HandleListen))
	r.Mux.Handle("GET /push/sessions", httpx.Chain(http.HandlerFunc(h.HandleSessions), authn))
}

func (r *Router) registerSystem() {
	r.Mux.HandleFunc("GET /livez", func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteSuccess(w, req, http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": time.Since(r.startTime).String(),
		})
	})
}
