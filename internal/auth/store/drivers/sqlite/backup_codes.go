package sqlite

import (
	"context"
	"time"
)

type backupCodesRepo struct {
	q querier
}

func (r *backupCodesRepo) Create(ctx context.Context, accountID, codeHash string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO backup_codes (account_id, code_hash, created_at)
		VALUES (?, ?, ?)`,
		accountID, codeHash, toUnix(time.Now()),
	)
	return mapConflict(err)
}

// Consume deletes the code in a single statement; the affected-row count is
// the one-time guarantee.
func (r *backupCodesRepo) Consume(ctx context.Context, accountID, codeHash string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM backup_codes WHERE account_id = ? AND code_hash = ?`,
		accountID, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *backupCodesRepo) DeleteAll(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM backup_codes WHERE account_id = ?`, accountID)
	return err
}
