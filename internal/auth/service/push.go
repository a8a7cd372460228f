package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/sydsec/gatehouse/internal/auth/domain"
	"github.com/sydsec/gatehouse/internal/auth/notify"
	"github.com/sydsec/gatehouse/internal/auth/store"
	"github.com/sydsec/gatehouse/pkg/cryptox"
	"github.com/sydsec/gatehouse/pkg/idx"
)

var (
	ErrInvalidOTP      = errors.New("invalid push OTP")
	ErrSessionNotFound = errors.New("push session not found")
)

// PushEventAuthorized names the event delivered to the listening device when
// a push login is approved.
const PushEventAuthorized = "authorized"

// PushService manages one-shot push-login sessions. A session is created by
// an authenticated device, approved by entering its OTP on another device,
// and destroyed on the first verification attempt whatever the outcome.
type PushService struct {
	Store  store.Store
	Hub    *notify.Hub
	Tokens *TokenService
}

// CreateSession opens a push-login attempt for the account. The OTP travels
// back to the requesting device only; it is never published on the stream.
// An existing session with the same request id is superseded.
func (s *PushService) CreateSession(ctx context.Context, email, requestID string) (domain.PushSession, error) {
	account, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PushSession{}, ErrAccountNotFound
		}
		return domain.PushSession{}, fmt.Errorf("lookup account: %w", err)
	}

	code, err := cryptox.GenerateOTP(otpDigits)
	if err != nil {
		return domain.PushSession{}, fmt.Errorf("generate OTP: %w", err)
	}

	session := domain.PushSession{
		ID:        idx.New(),
		RequestID: requestID,
		OTP:       code,
		AccountID: account.ID,
		CreatedAt: time.Now(),
	}
	if err := s.Store.PushSessions().Create(ctx, session); err != nil {
		return domain.PushSession{}, fmt.Errorf("store push session: %w", err)
	}
	return session, nil
}

// Verify is single-attempt and destructive: a wrong OTP deletes the session
// and returns ErrInvalidOTP; a right one mints an access token, hands it to
// any live listener, and deletes the session as well.
func (s *PushService) Verify(ctx context.Context, requestID, code string) (string, error) {
	session, err := s.Store.PushSessions().GetByRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("lookup push session: %w", err)
	}

	// Consume the attempt before judging it.
	if err := s.Store.PushSessions().DeleteByRequestID(ctx, requestID); err != nil {
		return "", fmt.Errorf("consume push session: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(session.OTP), []byte(code)) != 1 {
		return "", ErrInvalidOTP
	}

	account, err := s.accountByID(ctx, session.AccountID)
	if err != nil {
		return "", err
	}

	token, err := s.Tokens.IssueAccess(account.Email)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}

	// Best effort: a device that already hung up just misses the event.
	s.Hub.Publish(session.RequestID, domain.PushEvent{
		Name:  PushEventAuthorized,
		Token: token,
	})
	return token, nil
}

// ListSessions returns the account's open push sessions, OTPs omitted.
func (s *PushService) ListSessions(ctx context.Context, email string) ([]domain.PushSession, error) {
	account, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	sessions, err := s.Store.PushSessions().ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("list push sessions: %w", err)
	}
	for i := range sessions {
		sessions[i].OTP = ""
	}
	return sessions, nil
}

// Subscribe attaches the live listener for a push-login request id. The
// listening device is not authenticated yet; the request id is its only
// correlation handle. A previous listener for the same id is replaced.
func (s *PushService) Subscribe(requestID string) <-chan domain.PushEvent {
	return s.Hub.Subscribe(requestID)
}

// Unsubscribe detaches a listener previously returned by Subscribe.
func (s *PushService) Unsubscribe(requestID string, ch <-chan domain.PushEvent) {
	s.Hub.Unsubscribe(requestID, ch)
}

func (s *PushService) accountByID(ctx context.Context, accountID string) (domain.Account, error) {
	account, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	return account, nil
}
