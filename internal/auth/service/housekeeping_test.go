package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sydsec/gatehouse/internal/auth/domain"
	"github.com/sydsec/gatehouse/pkg/idx"
)

func TestSweepReclaimsOldPushSessionsAndChallenges(t *testing.T) {
	env := newTestEnv(t)
	res := env.signup(t, "grace@example.com", false)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, env.Store.PushSessions().Create(ctx, domain.PushSession{
		ID: idx.New(), RequestID: "old", OTP: "111111",
		AccountID: res.AccountID, CreatedAt: now.Add(-domain.PushSessionMaxAge - time.Second),
	}))
	require.NoError(t, env.Store.PushSessions().Create(ctx, domain.PushSession{
		ID: idx.New(), RequestID: "young", OTP: "222222",
		AccountID: res.AccountID, CreatedAt: now.Add(-domain.PushSessionMaxAge + 30*time.Second),
	}))
	require.NoError(t, env.Store.Challenges().Put(ctx, domain.Challenge{
		Key: "stale", Payload: []byte("x"), ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, env.Store.Challenges().Put(ctx, domain.Challenge{
		Key: "live", Payload: []byte("y"), ExpiresAt: now.Add(time.Minute),
	}))

	sweeper := NewSweeperService(env.Store, env.Store.Challenges(), slog.Default(), time.Minute)
	sweeper.Sweep()

	sessions, err := env.Store.PushSessions().ListByAccount(ctx, res.AccountID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "young", sessions[0].RequestID)

	_, err = env.Store.Challenges().Get(ctx, "stale")
	require.Error(t, err)
	_, err = env.Store.Challenges().Get(ctx, "live")
	require.NoError(t, err)
}

func TestSweeperStartStop(t *testing.T) {
	env := newTestEnv(t)

	sweeper := NewSweeperService(env.Store, env.Store.Challenges(), slog.Default(), 10*time.Millisecond)
	sweeper.Start()
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
}
