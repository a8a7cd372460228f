package sqlite

import (
	"context"
	"time"

	"github.com/sydsec/gatehouse/internal/auth/domain"
)

type pushSessionsRepo struct {
	q querier
}

// Create removes any prior session carrying the same request id before
// inserting, so a retried login always owns the slot.
func (r *pushSessionsRepo) Create(ctx context.Context, s domain.PushSession) error {
	if err := r.DeleteByRequestID(ctx, s.RequestID); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO push_sessions (id, request_id, otp, account_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.RequestID, s.OTP, s.AccountID, toUnix(s.CreatedAt),
	)
	return mapConflict(err)
}

func (r *pushSessionsRepo) GetByRequestID(ctx context.Context, requestID string) (domain.PushSession, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, request_id, otp, account_id, created_at
		FROM push_sessions WHERE request_id = ?`, requestID)
	return scanPushSession(row.Scan)
}

func (r *pushSessionsRepo) DeleteByRequestID(ctx context.Context, requestID string) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM push_sessions WHERE request_id = ?`, requestID)
	return err
}

func (r *pushSessionsRepo) ListByAccount(ctx context.Context, accountID string) ([]domain.PushSession, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, request_id, otp, account_id, created_at
		FROM push_sessions
		WHERE account_id = ?
		ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.PushSession
	for rows.Next() {
		s, err := scanPushSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *pushSessionsRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM push_sessions WHERE created_at < ?`, toUnix(cutoff))
	return err
}

func scanPushSession(scan func(...any) error) (domain.PushSession, error) {
	var (
		s       domain.PushSession
		created int64
	)
	if err := scan(&s.ID, &s.RequestID, &s.OTP, &s.AccountID, &created); err != nil {
		return domain.PushSession{}, mapNotFound(err)
	}
	s.CreatedAt = fromUnix(created)
	return s, nil
}
