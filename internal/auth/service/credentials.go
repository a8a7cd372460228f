package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/sydsec/gatehouse/internal/auth/domain"
	"github.com/sydsec/gatehouse/internal/auth/store"
	"github.com/sydsec/gatehouse/pkg/cryptox"
	"github.com/sydsec/gatehouse/pkg/idx"
	"github.com/sydsec/gatehouse/pkg/jwtx"
)

const (
	backupCodeCount = 10
	backupCodeBytes = cryptox.TokenSize128

	otpDigits = 6
)

var (
	// ErrInvalidCredentials covers unknown email and password mismatch;
	// the two are indistinguishable to the caller on purpose.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrInvalidTOTP      = errors.New("invalid TOTP or backup code")
	ErrTOTPNotEnabled   = errors.New("TOTP not enabled for this account")
	ErrTOTPAlreadySetup = errors.New("TOTP already enabled for this account")
	ErrAccountExists    = errors.New("account already exists")
	ErrAccountNotFound  = errors.New("account not found")
)

// SignupRequest carries the profile submitted at registration.
type SignupRequest struct {
	Email      string
	FirstName  string
	LastName   string
	Password   string
	EnableTOTP bool
}

// SignupResult reports what was provisioned. OTPAuthURL is only set when the
// profile asked for TOTP at signup.
type SignupResult struct {
	AccountID  string
	OTPAuthURL string
	TOTPSecret string
}

// LoginResult is either a full grant (access + refresh) or a pending token
// awaiting the second factor, never both.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	PendingToken string
	TOTPRequired bool
}

// TOTPSetup is returned when TOTP is enabled on an existing account.
type TOTPSetup struct {
	Secret      string
	OTPAuthURL  string
	BackupCodes []string // plaintext, shown exactly once
}

// CredentialService implements the password and TOTP factors: signup, the
// login state machine, second-factor verification, the TOTP enable/disable
// flows and token refresh.
type CredentialService struct {
	Store  store.Store
	Tokens *TokenService
	Issuer string // issuer label baked into otpauth:// URLs
}

func (s *CredentialService) Signup(ctx context.Context, req SignupRequest) (SignupResult, error) {
	hash, err := cryptox.HashPassword(req.Password)
	if err != nil {
		return SignupResult{}, fmt.Errorf("hash password: %w", err)
	}

	handle, err := cryptox.GenerateBytes(cryptox.UserHandleSize)
	if err != nil {
		return SignupResult{}, fmt.Errorf("generate user handle: %w", err)
	}

	now := time.Now()
	account := domain.Account{
		ID:           idx.New(),
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		UserHandle:   handle,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result := SignupResult{AccountID: account.ID}

	if req.EnableTOTP {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      s.Issuer,
			AccountName: req.Email,
			Period:      30,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return SignupResult{}, fmt.Errorf("generate TOTP key: %w", err)
		}
		secret := key.Secret()
		account.TOTPSecret = &secret
		account.TOTPEnabled = true
		result.TOTPSecret = secret
		result.OTPAuthURL = key.URL()
	}

	if err := s.Store.Accounts().Create(ctx, account); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return SignupResult{}, ErrAccountExists
		}
		return SignupResult{}, fmt.Errorf("create account: %w", err)
	}
	return result, nil
}

// Login checks the password factor. Accounts with TOTP enabled receive a
// pending token only; completing the second factor upgrades it to access.
func (s *CredentialService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	account, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup account: %w", err)
	}

	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if account.TOTPEnabled {
		pending, err := s.Tokens.IssuePending(account.Email)
		if err != nil {
			return LoginResult{}, fmt.Errorf("issue pending token: %w", err)
		}
		return LoginResult{PendingToken: pending, TOTPRequired: true}, nil
	}

	return s.grant(account.Email)
}

// VerifySecondFactor upgrades a pending token to a full grant. Six-digit
// numeric codes are checked against TOTP; anything else is treated as a
// backup code and consumed on match.
func (s *CredentialService) VerifySecondFactor(ctx context.Context, pendingToken, code string) (LoginResult, error) {
	claims, err := s.Tokens.ValidateTyped(pendingToken, jwtx.TypePending)
	if err != nil {
		return LoginResult{}, err
	}

	account, err := s.Store.Accounts().GetByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup account: %w", err)
	}
	if !account.TOTPEnabled || account.TOTPSecret == nil {
		return LoginResult{}, ErrTOTPNotEnabled
	}

	if isNumericCode(code) {
		if !validateTOTP(code, *account.TOTPSecret) {
			return LoginResult{}, ErrInvalidTOTP
		}
	} else {
		consumed, err := s.Store.BackupCodes().Consume(ctx, account.ID, cryptox.FingerprintToken(code))
		if err != nil {
			return LoginResult{}, fmt.Errorf("consume backup code: %w", err)
		}
		if !consumed {
			return LoginResult{}, ErrInvalidTOTP
		}
	}

	// The grant subject is the pending token's subject, never caller input.
	return s.grant(claims.Subject)
}

// EnableTOTP provisions a secret and fresh backup codes for an account that
// authenticated with an access token.
func (s *CredentialService) EnableTOTP(ctx context.Context, email string) (TOTPSetup, error) {
	account, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TOTPSetup{}, ErrAccountNotFound
		}
		return TOTPSetup{}, fmt.Errorf("lookup account: %w", err)
	}
	if account.TOTPEnabled {
		return TOTPSetup{}, ErrTOTPAlreadySetup
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPSetup{}, fmt.Errorf("generate TOTP key: %w", err)
	}
	secret := key.Secret()

	codes := make([]string, backupCodeCount)
	for i := range codes {
		code, err := cryptox.GenerateToken(backupCodeBytes)
		if err != nil {
			return TOTPSetup{}, fmt.Errorf("generate backup code: %w", err)
		}
		codes[i] = code
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().UpdateTOTP(ctx, account.ID, &secret, true); err != nil {
			return err
		}
		if err := tx.BackupCodes().DeleteAll(ctx, account.ID); err != nil {
			return err
		}
		for _, code := range codes {
			if err := tx.BackupCodes().Create(ctx, account.ID, cryptox.FingerprintToken(code)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return TOTPSetup{}, fmt.Errorf("store TOTP setup: %w", err)
	}

	return TOTPSetup{Secret: secret, OTPAuthURL: key.URL(), BackupCodes: codes}, nil
}

// DisableTOTP requires a valid current code so a stolen access token alone
// cannot strip the second factor.
func (s *CredentialService) DisableTOTP(ctx context.Context, email, code string) error {
	account, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if !account.TOTPEnabled || account.TOTPSecret == nil {
		return ErrTOTPNotEnabled
	}
	if !validateTOTP(code, *account.TOTPSecret) {
		return ErrInvalidTOTP
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().UpdateTOTP(ctx, account.ID, nil, false); err != nil {
			return err
		}
		return tx.BackupCodes().DeleteAll(ctx, account.ID)
	})
}

// Refresh exchanges a refresh token for a fresh access token.
func (s *CredentialService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.Tokens.ValidateTyped(refreshToken, jwtx.TypeRefresh)
	if err != nil {
		return "", err
	}
	if _, err := s.Store.Accounts().GetByEmail(ctx, claims.Subject); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("lookup account: %w", err)
	}
	return s.Tokens.IssueAccess(claims.Subject)
}

// VerifyEmail redeems a verification token and stamps the account.
func (s *CredentialService) VerifyEmail(ctx context.Context, verificationToken string) error {
	claims, err := s.Tokens.ValidateTyped(verificationToken, jwtx.TypeVerification)
	if err != nil {
		return err
	}
	account, err := s.Store.Accounts().GetByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	return s.Store.Accounts().SetVerified(ctx, account.ID, time.Now())
}

// GetAccount resolves an account by email for authenticated reads.
func (s *CredentialService) GetAccount(ctx context.Context, email string) (domain.Account, error) {
	account, err := s.Store.Accounts().GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Account{}, ErrAccountNotFound
	}
	return account, err
}

func (s *CredentialService) grant(email string) (LoginResult, error) {
	access, err := s.Tokens.IssueAccess(email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.Tokens.IssueRefresh(email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return LoginResult{AccessToken: access, RefreshToken: refresh}, nil
}

// validateTOTP accepts the current 30s step plus one step of clock skew in
// either direction.
func validateTOTP(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func isNumericCode(code string) bool {
	if len(code) != otpDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
