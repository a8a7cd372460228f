package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sydsec/gatehouse/internal/auth/service"
	"github.com/sydsec/gatehouse/pkg/httpx"
)

// AuthHandler serves the password/TOTP factor endpoints.
type AuthHandler struct {
	Credentials *service.CredentialService
	Tokens      *service.TokenService
}

type signupRequest struct {
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Password   string `json:"password"`
	EnableTOTP bool   `json:"enableTotp"`
}

type signupResponse struct {
	VerificationToken string `json:"verificationToken"`
	OTPAuthURL        string `json:"otpAuthUrl,omitempty"`
	TOTPSecret        string `json:"totpSecret,omitempty"`
}

// HandleSignup handles POST /auth/signup.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, r, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeValidationError(w, r, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeValidationError(w, r, "password must be at least 8 characters")
		return
	}

	result, err := h.Credentials.Signup(r.Context(), service.SignupRequest{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Password:   req.Password,
		EnableTOTP: req.EnableTOTP,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Email dispatch is out of scope; the verification token rides along in
	// the response for the caller's mailer to deliver.
	verification, err := h.Tokens.IssueVerification(req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, r, http.StatusCreated, signupResponse{
		VerificationToken: verification,
		OTPAuthURL:        result.OTPAuthURL,
		TOTPSecret:        result.TOTPSecret,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	PendingToken string `json:"pendingToken,omitempty"`
	TOTPRequired bool   `json:"totpRequired"`
}

// HandleLogin handles POST /auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, r, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeValidationError(w, r, "email and password are required")
		return
	}

	result, err := h.Credentials.Login(r.Context(), strings.ToLower(req.Email), req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, r, http.StatusOK, loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		PendingToken: result.PendingToken,
		TOTPRequired: result.TOTPRequired,
	})
}

type verifyTOTPRequest struct {
	PendingToken string `json:"pendingToken"`
	Code         string `json:"code"`
}

// HandleVerifyTOTP handles POST /auth/verify-totp.
func (h *AuthHandler) HandleVerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, r, "invalid JSON body")
		return
	}
	if req.PendingToken == "" || req.Code == "" {
		writeValidationError(w, r, "pendingToken and code are required")
		return
	}

	result, err := h.Credentials.VerifySecondFactor(r.Context(), req.PendingToken, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, r, http.StatusOK, loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

// HandleEnableTOTP handles POST /auth/enable-totp (authenticated).
func (h *AuthHandler) HandleEnableTOTP(w http.ResponseWriter, r *http.Request) {
	email := EmailFromContext(r.Context())

	setup, err := h.Credentials.EnableTOTP(r.Context(), email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, r, http.StatusOK, map[string]any{
		"secret":      setup.Secret,
		"otpAuthUrl":  setup.OTPAuthURL,
		"backupCodes": setup.BackupCodes,
	})
}

type disableTOTPRequest struct {
	Code string `json:"code"`
}

// HandleDisableTOTP handles POST /auth/disable-totp (authenticated).
func (h *AuthHandler) HandleDisableTOTP(w http.ResponseWriter, r *http.Request) {
	var req disableTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, r, "invalid JSON body")
		return
	}
	if req.Code == "" {
		writeValidationError(w, r, "code is required")
		return
	}

	if err := h.Credentials.DisableTOTP(r.Context(), EmailFromContext(r.Context()), req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, r, http.StatusOK, nil)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// HandleRefresh handles POST /auth/refresh.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, r, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeValidationError(w, r, "refreshToken is required")
		return
	}

	access, err := h.Credentials.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, r, http.StatusOK, map[string]string{"accessToken": access})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

// HandleVerifyEmail handles POST /auth/verify-email.
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, r, "invalid JSON body")
		return
	}
	if req.Token == "" {
		writeValidationError(w, r, "token is required")
		return
	}

	if err := h.Credentials.VerifyEmail(r.Context(), req.Token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, r, http.StatusOK, nil)
}

// HandleMe handles GET /auth/me (authenticated).
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	account, err := h.Credentials.GetAccount(r.Context(), EmailFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, r, http.StatusOK, map[string]any{
		"email":       account.Email,
		"firstName":   account.FirstName,
		"lastName":    account.LastName,
		"totpEnabled": account.TOTPEnabled,
		"verified":    account.VerifiedAt != nil,
		"credentials": len(account.Credentials),
	})
}
