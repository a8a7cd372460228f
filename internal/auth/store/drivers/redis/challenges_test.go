package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sydsec/gatehouse/internal/auth/domain"
	"github.com/sydsec/gatehouse/internal/auth/store"
)

func newTestChallenges(t *testing.T) (*Challenges, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewChallenges(rdb), mr
}

func TestChallengesRoundTrip(t *testing.T) {
	c, _ := newTestChallenges(t)
	ctx := context.Background()

	ch := domain.Challenge{
		Key:       "ada@example.com",
		Payload:   []byte(`{"challenge":"abc"}`),
		ExpiresAt: time.Now().Add(domain.ChallengeTTL),
	}
	require.NoError(t, c.Put(ctx, ch))

	got, err := c.Get(ctx, ch.Key)
	require.NoError(t, err)
	require.Equal(t, ch.Payload, got.Payload)
	require.WithinDuration(t, ch.ExpiresAt, got.ExpiresAt, 2*time.Second)
}

func TestChallengesSupersede(t *testing.T) {
	c, _ := newTestChallenges(t)
	ctx := context.Background()

	ch := domain.Challenge{
		Key:       "ada@example.com",
		Payload:   []byte("one"),
		ExpiresAt: time.Now().Add(domain.ChallengeTTL),
	}
	require.NoError(t, c.Put(ctx, ch))

	ch.Payload = []byte("two")
	require.NoError(t, c.Put(ctx, ch))

	got, err := c.Get(ctx, ch.Key)
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got.Payload)
}

func TestChallengesExpiry(t *testing.T) {
	c, mr := newTestChallenges(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.Challenge{
		Key:       "short",
		Payload:   []byte("x"),
		ExpiresAt: time.Now().Add(time.Second),
	}))

	mr.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "short")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestChallengesDeadOnArrival(t *testing.T) {
	c, _ := newTestChallenges(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.Challenge{
		Key:       "stale",
		Payload:   []byte("x"),
		ExpiresAt: time.Now().Add(-time.Second),
	}))

	_, err := c.Get(ctx, "stale")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestChallengesDelete(t *testing.T) {
	c, _ := newTestChallenges(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.Challenge{
		Key:       "gone",
		Payload:   []byte("x"),
		ExpiresAt: time.Now().Add(domain.ChallengeTTL),
	}))
	require.NoError(t, c.Delete(ctx, "gone"))

	_, err := c.Get(ctx, "gone")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, c.Delete(ctx, "gone"))
}
