// Package pg implements core.Repository on PostgreSQL via pgx.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/authbridge/internal/store/core"
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query
// methods serve pooled and transaction-bound repositories.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repo implements core.Repository.
type Repo struct {
	pool *pgxpool.Pool // nil on transaction-bound copies
	q    querier
}

// New creates a pool-backed repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool, q: pool}
}

// Ping checks connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if r.pool == nil {
		return nil
	}
	return r.pool.Ping(ctx)
}

// WithTx runs fn inside one database transaction. Nested calls reuse the
// outer transaction. Rollback on error or context cancellation is total:
// no partial account/identity state survives.
func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context, repo core.Repository) error) error {
	if r.pool == nil {
		// Already transaction-bound.
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &Repo{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ─── Accounts ───

func (r *Repo) CreateAccount(ctx context.Context, a *core.Account) error {
	const query = `
		INSERT INTO accounts (login, status, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(ctx, query, a.Login, a.Status, a.PasswordHash).
		Scan(&a.ID, &a.CreatedAt)
	if isUnique(err) {
		return core.ErrConflict
	}
	return err
}

func (r *Repo) GetAccountByID(ctx context.Context, id string) (*core.Account, error) {
	const query = `
		SELECT id, login, status, password_hash, created_at
		FROM accounts WHERE id = $1
	`
	return scanAccount(r.q.QueryRow(ctx, query, id))
}

func (r *Repo) GetAccountByLogin(ctx context.Context, login string) (*core.Account, error) {
	const query = `
		SELECT id, login, status, password_hash, created_at
		FROM accounts WHERE lower(login) = lower($1)
	`
	return scanAccount(r.q.QueryRow(ctx, query, login))
}

func (r *Repo) UpdateAccountStatus(ctx context.Context, id, status string) error {
	const query = `UPDATE accounts SET status = $2 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ─── Identities ───

func (r *Repo) GetIdentity(ctx context.Context, provider, uid string) (*core.Identity, error) {
	const query = `
		SELECT id, COALESCE(account_id::text, ''), provider, uid,
		       info, credentials, extra, created_at, updated_at
		FROM account_identities
		WHERE provider = $1 AND uid = $2
	`
	return scanIdentity(r.q.QueryRow(ctx, query, provider, uid))
}

func (r *Repo) InsertIdentity(ctx context.Context, ident *core.Identity) error {
	const query = `
		INSERT INTO account_identities (account_id, provider, uid, info, credentials, extra)
		VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.q.QueryRow(ctx, query,
		ident.AccountID, ident.Provider, ident.UID,
		blob(ident.Info), blob(ident.Credentials), blob(ident.Extra),
	).Scan(&ident.ID, &ident.CreatedAt, &ident.UpdatedAt)
	if isUnique(err) {
		return core.ErrConflict
	}
	return err
}

func (r *Repo) UpdateIdentityData(ctx context.Context, identityID string, data core.IdentityData) error {
	const query = `
		UPDATE account_identities
		SET info = $2, credentials = $3, extra = $4, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.q.Exec(ctx, query, identityID,
		blob(data.Info), blob(data.Credentials), blob(data.Extra))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repo) RebindIdentity(ctx context.Context, identityID, accountID string) error {
	const query = `
		UPDATE account_identities SET account_id = $2::uuid, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.q.Exec(ctx, query, identityID, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repo) ListAccountIdentities(ctx context.Context, accountID string) ([]*core.Identity, error) {
	const query = `
		SELECT id, COALESCE(account_id::text, ''), provider, uid,
		       info, credentials, extra, created_at, updated_at
		FROM account_identities
		WHERE account_id = $1::uuid
		ORDER BY created_at
	`
	rows, err := r.q.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteIdentity(ctx context.Context, accountID, provider string) (int64, error) {
	const query = `
		DELETE FROM account_identities
		WHERE account_id = $1::uuid AND provider = $2
	`
	tag, err := r.q.Exec(ctx, query, accountID, provider)
	return tag.RowsAffected(), err
}

func (r *Repo) DeleteAccountIdentities(ctx context.Context, accountID string) (int64, error) {
	const query = `DELETE FROM account_identities WHERE account_id = $1::uuid`
	tag, err := r.q.Exec(ctx, query, accountID)
	return tag.RowsAffected(), err
}

// ─── helpers ───

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*core.Account, error) {
	var a core.Account
	err := row.Scan(&a.ID, &a.Login, &a.Status, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanIdentity(row rowScanner) (*core.Identity, error) {
	var ident core.Identity
	err := row.Scan(
		&ident.ID, &ident.AccountID, &ident.Provider, &ident.UID,
		&ident.Info, &ident.Credentials, &ident.Extra,
		&ident.CreatedAt, &ident.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// blob never writes NULL for a data column; an absent map serializes as {}.
func blob(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}

func isUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
