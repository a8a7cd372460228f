package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/sydsec/gatehouse/internal/auth/service"
	"github.com/sydsec/gatehouse/pkg/httpx"
	"github.com/sydsec/gatehouse/pkg/idx"
)

// WebAuthnHandler serves the FIDO2 ceremony endpoints. The browser talks to
// these with the raw structures the relying-party library defines.
type WebAuthnHandler struct {
	WebAuthn *service.WebAuthnService
}

// HandleRegisterOptions handles POST /webauthn/register/options
// (authenticated): begins a credential creation ceremony for the caller.
func (h *WebAuthnHandler) HandleRegisterOptions(w http.ResponseWriter, r *http.Request) {
	email := EmailFromContext(r.Context())

	options, err := h.WebAuthn.StartRegistration(r.Context(), email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, r, http.StatusOK, options)
}

// HandleRegisterFinish handles POST /webauthn/register (authenticated):
// validates the attestation response and stores the credential.
func (h *WebAuthnHandler) HandleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	email := EmailFromContext(r.Context())

	parsed, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		writeValidationError(w, r, "malformed attestation response")
		return
	}

	cred, err := h.WebAuthn.FinishRegistration(r.Context(), email, parsed)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, r, http.StatusCreated, map[string]any{
		"id":           cred.ID,
		"credentialId": base64.RawURLEncoding.EncodeToString(cred.CredentialID),
		"createdAt":    cred.CreatedAt,
	})
}

// HandleListCredentials handles GET /webauthn/credentials (authenticated).
func (h *WebAuthnHandler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.WebAuthn.ListCredentials(r.Context(), EmailFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(creds))
	for _, c := range creds {
		out = append(out, map[string]any{
			"id":           c.ID,
			"credentialId": base64.RawURLEncoding.EncodeToString(c.CredentialID),
			"signCount":    c.SignCount,
			"createdAt":    c.CreatedAt,
		})
	}
	httpx.WriteSuccess(w, r, http.StatusOK, out)
}

// HandleDeleteCredential handles DELETE /webauthn/credentials/{id}
// (authenticated).
func (h *WebAuthnHandler) HandleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	id, err := idx.Parse(r.PathValue("id"))
	if err != nil {
		writeValidationError(w, r, "credential id is required")
		return
	}

	if err := h.WebAuthn.DeleteCredential(r.Context(), EmailFromContext(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, r, http.StatusOK, nil)
}

type authOptionsRequest struct {
	Email string `json:"email"`
}

// HandleAuthOptions handles POST /webauthn/auth/options: begins an assertion
// ceremony, scoped to an account when an email is supplied and discoverable
// otherwise.
func (h *WebAuthnHandler) HandleAuthOptions(w http.ResponseWriter, r *http.Request) {
	var req authOptionsRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeValidationError(w, r, "invalid JSON body")
			return
		}
	}

	options, err := h.WebAuthn.StartAssertion(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, r, http.StatusOK, options)
}

// HandleAuthVerify handles POST /webauthn/auth/verify: validates the
// assertion response and returns a full grant.
func (h *WebAuthnHandler) HandleAuthVerify(w http.ResponseWriter, r *http.Request) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		writeValidationError(w, r, "malformed assertion response")
		return
	}

	result, err := h.WebAuthn.FinishAssertion(r.Context(), parsed)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, r, http.StatusOK, loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}
