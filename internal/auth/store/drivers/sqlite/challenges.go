package sqlite

import (
	"context"
	"time"

	"github.com/sydsec/gatehouse/internal/auth/domain"
	"github.com/sydsec/gatehouse/internal/auth/store"
)

type challengesRepo struct {
	q querier
}

// Put upserts so a fresh ceremony for the same key supersedes the stale one.
func (r *challengesRepo) Put(ctx context.Context, c domain.Challenge) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO webauthn_challenges (challenge_key, payload, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (challenge_key) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at`,
		c.Key, c.Payload, toUnix(c.ExpiresAt),
	)
	return err
}

func (r *challengesRepo) Get(ctx context.Context, key string) (domain.Challenge, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT challenge_key, payload, expires_at
		FROM webauthn_challenges WHERE challenge_key = ?`, key)

	var (
		c       domain.Challenge
		expires int64
	)
	if err := row.Scan(&c.Key, &c.Payload, &expires); err != nil {
		return domain.Challenge{}, mapNotFound(err)
	}
	c.ExpiresAt = fromUnix(expires)

	// Expired entries are evicted on read so a retried ceremony never
	// redeems stale options.
	if c.Expired(time.Now()) {
		if err := r.Delete(ctx, key); err != nil {
			return domain.Challenge{}, err
		}
		return domain.Challenge{}, store.ErrChallengeExpired
	}
	return c, nil
}

func (r *challengesRepo) Delete(ctx context.Context, key string) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM webauthn_challenges WHERE challenge_key = ?`, key)
	return err
}

func (r *challengesRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM webauthn_challenges WHERE expires_at < ?`, toUnix(now))
	return err
}
