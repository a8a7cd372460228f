package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sydsec/gatehouse/pkg/jwtx"
)

func TestPushCreateSupersedesSameRequestID(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "grace@example.com", false)
	ctx := context.Background()

	first, err := env.Push.CreateSession(ctx, "grace@example.com", "device-1")
	require.NoError(t, err)
	require.Len(t, first.OTP, otpDigits)

	second, err := env.Push.CreateSession(ctx, "grace@example.com", "device-1")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	sessions, err := env.Push.ListSessions(ctx, "grace@example.com")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Empty(t, sessions[0].OTP) // never exposed on list
}

func TestPushVerifyHappyPathDeliversExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "grace@example.com", false)
	ctx := context.Background()

	events := env.Push.Subscribe("device-1")
	defer env.Push.Unsubscribe("device-1", events)

	session, err := env.Push.CreateSession(ctx, "grace@example.com", "device-1")
	require.NoError(t, err)

	token, err := env.Push.Verify(ctx, "device-1", session.OTP)
	require.NoError(t, err)

	claims, err := env.Tokens.ValidateTyped(token, jwtx.TypeAccess)
	require.NoError(t, err)
	require.Equal(t, "grace@example.com", claims.Subject)

	ev := <-events
	require.Equal(t, PushEventAuthorized, ev.Name)
	require.Equal(t, token, ev.Token)

	select {
	case extra := <-events:
		t.Fatalf("unexpected second event: %+v", extra)
	default:
	}

	// The session is spent.
	_, err = env.Push.Verify(ctx, "device-1", session.OTP)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPushVerifyWrongOTPDestroysSession(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "grace@example.com", false)
	ctx := context.Background()

	session, err := env.Push.CreateSession(ctx, "grace@example.com", "device-1")
	require.NoError(t, err)

	_, err = env.Push.Verify(ctx, "device-1", "999999")
	require.ErrorIs(t, err, ErrInvalidOTP)

	// One attempt only: even the right OTP is too late now.
	_, err = env.Push.Verify(ctx, "device-1", session.OTP)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPushVerifyUnknownRequestID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Push.Verify(context.Background(), "ghost", "123456")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPushVerifyWithoutListenerStillGrants(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "grace@example.com", false)
	ctx := context.Background()

	session, err := env.Push.CreateSession(ctx, "grace@example.com", "device-1")
	require.NoError(t, err)

	token, err := env.Push.Verify(ctx, "device-1", session.OTP)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}
