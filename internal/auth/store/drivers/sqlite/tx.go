package sqlite

import (
	"context"
	"database/sql"

	"github.com/sydsec/gatehouse/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // outer DB stays open

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil } // applied before any tx starts

func (t *txStore) Accounts() store.Accounts         { return &accountsRepo{q: t.tx} }
func (t *txStore) Credentials() store.Credentials   { return &credentialsRepo{q: t.tx} }
func (t *txStore) Challenges() store.Challenges     { return &challengesRepo{q: t.tx} }
func (t *txStore) PushSessions() store.PushSessions { return &pushSessionsRepo{q: t.tx} }
func (t *txStore) BackupCodes() store.BackupCodes   { return &backupCodesRepo{q: t.tx} }
