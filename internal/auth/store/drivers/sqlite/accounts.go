package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/sydsec/gatehouse/internal/auth/domain"
)

type accountsRepo struct {
	q querier
}

const accountColumns = `id, email, first_name, last_name, password_hash, user_handle,
	totp_secret, totp_enabled, verified_at, created_at, updated_at`

func (r *accountsRepo) Create(ctx context.Context, a domain.Account) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.FirstName, a.LastName, a.PasswordHash, a.UserHandle,
		toNullString(a.TOTPSecret), a.TOTPEnabled, toUnixPtr(a.VerifiedAt),
		toUnix(a.CreatedAt), toUnix(a.UpdatedAt),
	)
	return mapConflict(err)
}

func (r *accountsRepo) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return r.scanWithCredentials(ctx, row)
}

func (r *accountsRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	return r.scanWithCredentials(ctx, row)
}

func (r *accountsRepo) GetByUserHandle(ctx context.Context, handle []byte) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE user_handle = ?`, handle)
	return r.scanWithCredentials(ctx, row)
}

func (r *accountsRepo) GetByCredentialID(ctx context.Context, credentialID []byte) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+prefixed("a.", accountColumns)+`
		FROM accounts a
		JOIN webauthn_credentials c ON c.account_id = a.id
		WHERE c.credential_id = ?`, credentialID)
	return r.scanWithCredentials(ctx, row)
}

func (r *accountsRepo) UpdateTOTP(ctx context.Context, accountID string, secret *string, enabled bool) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET totp_secret = ?, totp_enabled = ?, updated_at = ?
		WHERE id = ?`,
		toNullString(secret), enabled, toUnix(time.Now()), accountID)
	return mapNotFound(requireRow(res, err))
}

func (r *accountsRepo) SetVerified(ctx context.Context, accountID string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET verified_at = ?, updated_at = ? WHERE id = ?`,
		toUnix(at), toUnix(time.Now()), accountID)
	return mapNotFound(requireRow(res, err))
}

func (r *accountsRepo) scanWithCredentials(ctx context.Context, row *sql.Row) (domain.Account, error) {
	a, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}

	creds, err := (&credentialsRepo{q: r.q}).ListByAccount(ctx, a.ID)
	if err != nil {
		return domain.Account{}, err
	}
	a.Credentials = creds
	return a, nil
}

func scanAccount(row *sql.Row) (domain.Account, error) {
	var (
		a                domain.Account
		secret           sql.NullString
		verified         sql.NullInt64
		created, updated int64
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &a.UserHandle,
		&secret, &a.TOTPEnabled, &verified, &created, &updated,
	)
	if err != nil {
		return domain.Account{}, err
	}
	a.TOTPSecret = fromNullString(secret)
	a.VerifiedAt = fromUnixPtr(verified)
	a.CreatedAt = fromUnix(created)
	a.UpdatedAt = fromUnix(updated)
	return a, nil
}

// prefixed qualifies each column in a comma-separated list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
