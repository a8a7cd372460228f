package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/sydsec/gatehouse/internal/auth/domain"
	"github.com/sydsec/gatehouse/internal/auth/store"
	"github.com/sydsec/gatehouse/pkg/idx"
)

var (
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrChallengeExpired   = errors.New("challenge expired")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrAssertionFailed    = errors.New("assertion failed")
)

// WebAuthnService coordinates FIDO2 ceremonies. Registration ceremonies are
// keyed by the account email; assertion ceremonies by the base64url value of
// the challenge itself, recovered from the signed client data on finish.
// The relying-party library does all signature and origin checking.
type WebAuthnService struct {
	Store      store.Store
	Challenges store.Challenges // separate slot: may be redis-backed
	RP         *webauthn.WebAuthn
	Tokens     *TokenService
}

// StartRegistration begins a credential creation ceremony for an existing
// account. The returned options go to the browser verbatim.
func (s *WebAuthnService) StartRegistration(ctx context.Context, email string) (*protocol.CredentialCreation, error) {
	account, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	options, session, err := s.RP.BeginRegistration(&account)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}

	if err := s.putChallenge(ctx, email, session); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishRegistration validates the attestation response and persists the new
// credential. The ceremony's challenge slot is consumed either way.
func (s *WebAuthnService) FinishRegistration(ctx context.Context, email string, response *protocol.ParsedCredentialCreationData) (domain.Credential, error) {
	account, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Credential{}, ErrAccountNotFound
		}
		return domain.Credential{}, fmt.Errorf("lookup account: %w", err)
	}

	session, err := s.takeChallenge(ctx, email)
	if err != nil {
		return domain.Credential{}, err
	}

	cred, err := s.RP.CreateCredential(&account, *session, response)
	if err != nil {
		return domain.Credential{}, ErrAssertionFailed
	}

	stored := domain.Credential{
		ID:           idx.New(),
		AccountID:    account.ID,
		CredentialID: cred.ID,
		PublicKey:    cred.PublicKey,
		SignCount:    cred.Authenticator.SignCount,
		CreatedAt:    time.Now(),
	}
	if err := s.Store.Credentials().Create(ctx, stored); err != nil {
		return domain.Credential{}, fmt.Errorf("store credential: %w", err)
	}
	return stored, nil
}

// StartAssertion begins a login ceremony. With an email the allow-list is
// scoped to that account's credentials; without one the ceremony is
// discoverable (the authenticator picks the credential).
func (s *WebAuthnService) StartAssertion(ctx context.Context, email string) (*protocol.CredentialAssertion, error) {
	var (
		options *protocol.CredentialAssertion
		session *webauthn.SessionData
		err     error
	)

	if email != "" {
		var account domain.Account
		account, err = s.Store.Accounts().GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrAccountNotFound
			}
			return nil, fmt.Errorf("lookup account: %w", err)
		}
		options, session, err = s.RP.BeginLogin(&account)
	} else {
		options, session, err = s.RP.BeginDiscoverableLogin()
	}
	if err != nil {
		return nil, fmt.Errorf("begin assertion: %w", err)
	}

	// The challenge's own base64url value is the lookup key; the finish
	// request carries it back inside the signed client data.
	if err := s.putChallenge(ctx, options.Response.Challenge.String(), session); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishAssertion validates an assertion response and returns a full grant
// for the owning account.
func (s *WebAuthnService) FinishAssertion(ctx context.Context, response *protocol.ParsedCredentialAssertionData) (LoginResult, error) {
	key := response.Response.CollectedClientData.Challenge

	session, err := s.takeChallenge(ctx, key)
	if err != nil {
		return LoginResult{}, err
	}

	var (
		account domain.Account
		cred    *webauthn.Credential
	)
	if len(session.UserID) > 0 {
		account, err = s.Store.Accounts().GetByUserHandle(ctx, session.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return LoginResult{}, ErrCredentialNotFound
			}
			return LoginResult{}, fmt.Errorf("lookup account: %w", err)
		}
		cred, err = s.RP.ValidateLogin(&account, *session, response)
	} else {
		cred, err = s.RP.ValidateDiscoverableLogin(func(rawID, userHandle []byte) (webauthn.User, error) {
			var lookupErr error
			if len(userHandle) > 0 {
				account, lookupErr = s.Store.Accounts().GetByUserHandle(ctx, userHandle)
			} else {
				account, lookupErr = s.Store.Accounts().GetByCredentialID(ctx, rawID)
			}
			if errors.Is(lookupErr, store.ErrNotFound) {
				return nil, ErrCredentialNotFound
			}
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &account, nil
		}, *session, response)
	}
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return LoginResult{}, ErrCredentialNotFound
		}
		return LoginResult{}, ErrAssertionFailed
	}

	// Persist the collaborator-reported counter; regression detection
	// already happened inside validation.
	if err := s.Store.Credentials().UpdateSignCount(ctx, cred.ID, cred.Authenticator.SignCount); err != nil {
		return LoginResult{}, fmt.Errorf("update sign count: %w", err)
	}

	access, err := s.Tokens.IssueAccess(account.Email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.Tokens.IssueRefresh(account.Email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return LoginResult{AccessToken: access, RefreshToken: refresh}, nil
}

// ListCredentials returns the credentials registered to an account.
func (s *WebAuthnService) ListCredentials(ctx context.Context, email string) ([]domain.Credential, error) {
	account, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return s.Store.Credentials().ListByAccount(ctx, account.ID)
}

// DeleteCredential removes a credential owned by the account; the ownership
// scope is enforced by the store.
func (s *WebAuthnService) DeleteCredential(ctx context.Context, email, credentialID string) error {
	account, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if err := s.Store.Credentials().Delete(ctx, account.ID, credentialID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCredentialNotFound
		}
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *WebAuthnService) putChallenge(ctx context.Context, key string, session *webauthn.SessionData) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}
	err = s.Challenges.Put(ctx, domain.Challenge{
		Key:       key,
		Payload:   payload,
		ExpiresAt: time.Now().Add(domain.ChallengeTTL),
	})
	if err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

// takeChallenge consumes the challenge slot for a key, mapping store errors
// to the ceremony sentinels.
func (s *WebAuthnService) takeChallenge(ctx context.Context, key string) (*webauthn.SessionData, error) {
	challenge, err := s.Challenges.Get(ctx, key)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrChallengeExpired):
			return nil, ErrChallengeExpired
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if err := s.Challenges.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(challenge.Payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session data: %w", err)
	}
	return &session, nil
}
