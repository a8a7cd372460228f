package sqlite

import (
	"context"

	"github.com/sydsec/gatehouse/internal/auth/domain"
)

type credentialsRepo struct {
	q querier
}

func (r *credentialsRepo) Create(ctx context.Context, c domain.Credential) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO webauthn_credentials (id, account_id, credential_id, public_key, sign_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.CredentialID, c.PublicKey, c.SignCount, toUnix(c.CreatedAt),
	)
	return mapConflict(err)
}

func (r *credentialsRepo) ListByAccount(ctx context.Context, accountID string) ([]domain.Credential, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, account_id, credential_id, public_key, sign_count, created_at
		FROM webauthn_credentials
		WHERE account_id = ?
		ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []domain.Credential
	for rows.Next() {
		var (
			c       domain.Credential
			created int64
		)
		if err := rows.Scan(&c.ID, &c.AccountID, &c.CredentialID, &c.PublicKey, &c.SignCount, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = fromUnix(created)
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (r *credentialsRepo) UpdateSignCount(ctx context.Context, credentialID []byte, count uint32) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE webauthn_credentials SET sign_count = ? WHERE credential_id = ?`,
		count, credentialID)
	return mapNotFound(requireRow(res, err))
}

func (r *credentialsRepo) Delete(ctx context.Context, accountID, id string) error {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM webauthn_credentials WHERE id = ? AND account_id = ?`,
		id, accountID)
	return mapNotFound(requireRow(res, err))
}
