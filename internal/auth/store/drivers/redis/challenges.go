// Package redis provides a challenge store backed by Redis. Only the
// ceremony-challenge slot moves here; Redis key expiry replaces the sweep
// that the sqlite driver needs.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sydsec/gatehouse/internal/auth/domain"
	"github.com/sydsec/gatehouse/internal/auth/store"
)

const keyPrefix = "gatehouse:challenge:"

type Challenges struct {
	rdb *redis.Client
}

func NewChallenges(rdb *redis.Client) *Challenges {
	return &Challenges{rdb: rdb}
}

// Put stores the payload under the challenge key with a TTL derived from the
// challenge's expiry. SET overwrites, which gives supersede-on-store for free.
func (c *Challenges) Put(ctx context.Context, ch domain.Challenge) error {
	ttl := time.Until(ch.ExpiresAt)
	if ttl <= 0 {
		// Already dead on arrival; don't persist it.
		return nil
	}
	return c.rdb.Set(ctx, keyPrefix+ch.Key, ch.Payload, ttl).Err()
}

// Get returns the stored challenge. Redis evicts expired keys itself, so an
// absent key reads as ErrNotFound; expiry is indistinguishable from a key
// that never existed.
func (c *Challenges) Get(ctx context.Context, key string) (domain.Challenge, error) {
	payload, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Challenge{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Challenge{}, err
	}

	ttl, err := c.rdb.TTL(ctx, keyPrefix+key).Result()
	if err != nil {
		return domain.Challenge{}, err
	}

	return domain.Challenge{
		Key:       key,
		Payload:   payload,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (c *Challenges) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, keyPrefix+key).Err()
}

// DeleteExpired is a no-op; Redis TTLs do the reclaiming.
func (c *Challenges) DeleteExpired(ctx context.Context, now time.Time) error {
	return nil
}
