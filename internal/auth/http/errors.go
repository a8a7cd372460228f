package http

import (
	"errors"
	"net/http"

	"github.com/sydsec/gatehouse/internal/auth/service"
	"github.com/sydsec/gatehouse/pkg/httpx"
	"github.com/sydsec/gatehouse/pkg/jwtx"
	"github.com/sydsec/gatehouse/pkg/slogx"
)

// writeServiceError maps domain sentinels to stable 4xx codes; anything
// unexpected becomes a generic 5xx logged with the request's correlation id.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	type mapping struct {
		sentinel error
		status   int
		code     string
	}

	mappings := []mapping{
		{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{jwtx.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
		{service.ErrInvalidTOTP, http.StatusUnauthorized, "invalid_totp"},
		{service.ErrInvalidOTP, http.StatusUnauthorized, "invalid_otp"},
		{service.ErrTOTPNotEnabled, http.StatusBadRequest, "totp_not_enabled"},
		{service.ErrTOTPAlreadySetup, http.StatusBadRequest, "totp_already_enabled"},
		{service.ErrAccountExists, http.StatusConflict, "account_exists"},
		{service.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
		{service.ErrChallengeNotFound, http.StatusBadRequest, "challenge_not_found"},
		{service.ErrChallengeExpired, http.StatusBadRequest, "challenge_expired"},
		{service.ErrCredentialNotFound, http.StatusNotFound, "credential_not_found"},
		{service.ErrAssertionFailed, http.StatusUnauthorized, "assertion_failed"},
		{service.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	}

	for _, m := range mappings {
		if errors.Is(err, m.sentinel) {
			httpx.WriteError(w, r, m.status, m.code, m.sentinel.Error())
			return
		}
	}

	slogx.FromContext(r.Context()).Error("unhandled service error", "err", err)
	httpx.WriteError(w, r, http.StatusInternalServerError, "server_error", "internal server error")
}

func writeValidationError(w http.ResponseWriter, r *http.Request, message string) {
	httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", message)
}
