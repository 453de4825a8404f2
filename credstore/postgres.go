// Package credstore provides the PostgreSQL implementation of
// authcore.CredentialStore on top of a pgx connection pool.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tmkelly/authcore"
)

// Schema is the DDL for the accounts table. Migrate applies it; callers
// running their own migrations can embed it instead.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id              TEXT PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	password_digest TEXT NOT NULL,
	first_name      TEXT NOT NULL DEFAULT '',
	last_name       TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL,
	status          SMALLINT NOT NULL,
	mfa_enabled     BOOLEAN NOT NULL DEFAULT FALSE,
	mfa_secret      TEXT NOT NULL DEFAULT '',
	last_login_at   TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const uniqueViolation = "23505"

// Postgres implements authcore.CredentialStore.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. The pool's lifecycle stays with
// the caller.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the accounts table if it does not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return nil
}

const accountColumns = `id, email, password_digest, first_name, last_name, role, status, mfa_enabled, mfa_secret, last_login_at`

func scanAccount(row pgx.Row) (authcore.Account, error) {
	var a authcore.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordDigest,
		&a.FirstName,
		&a.LastName,
		&a.Role,
		&a.Status,
		&a.MFAEnabled,
		&a.MFASecret,
		&a.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authcore.Account{}, authcore.ErrAccountNotFound
		}
		return authcore.Account{}, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return a, nil
}

func (s *Postgres) GetByEmail(ctx context.Context, email string) (authcore.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

func (s *Postgres) GetByID(ctx context.Context, id string) (authcore.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// Create inserts a new account. A missing ID is filled with a fresh
// UUID. A duplicate email maps to authcore.ErrAccountExists.
func (s *Postgres) Create(ctx context.Context, account authcore.Account) (authcore.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, password_digest, first_name, last_name, role, status, mfa_enabled, mfa_secret)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		account.ID,
		account.Email,
		account.PasswordDigest,
		account.FirstName,
		account.LastName,
		account.Role,
		account.Status,
		account.MFAEnabled,
		account.MFASecret,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return authcore.Account{}, authcore.ErrAccountExists
		}
		return authcore.Account{}, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return account, nil
}

func (s *Postgres) UpdatePasswordDigest(ctx context.Context, id, digest string) error {
	return s.update(ctx,
		`UPDATE accounts SET password_digest = $2, updated_at = now() WHERE id = $1`, id, digest)
}

func (s *Postgres) UpdateStatus(ctx context.Context, id string, status authcore.AccountStatus) error {
	return s.update(ctx,
		`UPDATE accounts SET status = $2, updated_at = now() WHERE id = $1`, id, status)
}

func (s *Postgres) UpdateMFA(ctx context.Context, id string, enabled bool, secret string) error {
	return s.update(ctx,
		`UPDATE accounts SET mfa_enabled = $2, mfa_secret = $3, updated_at = now() WHERE id = $1`, id, enabled, secret)
}

func (s *Postgres) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx,
		`UPDATE accounts SET last_login_at = $2, updated_at = now() WHERE id = $1`, id, at)
}

func (s *Postgres) update(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}
