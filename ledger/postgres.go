package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the ledger table. Migrate applies it; callers
// running their own migrations can embed it instead.
const Schema = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
	id                 TEXT PRIMARY KEY,
	account_id         TEXT        NOT NULL,
	session_id         TEXT        NOT NULL,
	issued_at          TIMESTAMPTZ NOT NULL,
	expires_at         TIMESTAMPTZ NOT NULL,
	session_created_at TIMESTAMPTZ NOT NULL,
	used_at            TIMESTAMPTZ,
	revoked_at         TIMESTAMPTZ,
	revoked_for_reuse  BOOLEAN     NOT NULL DEFAULT FALSE,
	rotated_to         TEXT        NOT NULL DEFAULT '',
	replay_access      TEXT        NOT NULL DEFAULT '',
	replay_refresh     TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS refresh_tokens_account_idx ON refresh_tokens (account_id);
CREATE INDEX IF NOT EXISTS refresh_tokens_expires_idx ON refresh_tokens (expires_at);
`

// Postgres is the production Ledger. Rotation runs inside a transaction
// with a row lock on the presented record, which serializes concurrent
// rotations of the same value.
type Postgres struct {
	pool  *pgxpool.Pool
	clock Clock
	grace time.Duration
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool, clock Clock, grace time.Duration) *Postgres {
	return &Postgres{pool: pool, clock: clock, grace: grace}
}

// Migrate applies the ledger schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Issue implements Ledger.
func (p *Postgres) Issue(ctx context.Context, accountID, sessionID, value string, expiresAt time.Time) (Record, error) {
	now := p.clock.Now().UTC()
	rec := Record{
		ID:               KeyFor(value),
		AccountID:        accountID,
		SessionID:        sessionID,
		IssuedAt:         now,
		ExpiresAt:        expiresAt.UTC(),
		SessionCreatedAt: now,
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, account_id, session_id, issued_at, expires_at, session_created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.AccountID, rec.SessionID, rec.IssuedAt, rec.ExpiresAt, rec.SessionCreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

// Rotate implements Ledger.
func (p *Postgres) Rotate(ctx context.Context, value string, next Successor) (*RotateOutcome, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	now := p.clock.Now().UTC()
	key := KeyFor(value)

	var (
		rec           Record
		replayAccess  string
		replayRefresh string
	)
	err = tx.QueryRow(ctx, `
		SELECT account_id, session_id, expires_at, session_created_at,
		       used_at, revoked_at, revoked_for_reuse, replay_access, replay_refresh
		FROM refresh_tokens
		WHERE id = $1
		FOR UPDATE
	`, key).Scan(
		&rec.AccountID, &rec.SessionID, &rec.ExpiresAt, &rec.SessionCreatedAt,
		&rec.UsedAt, &rec.RevokedAt, &rec.RevokedForReuse, &replayAccess, &replayRefresh,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case rec.RevokedAt != nil:
		if rec.RevokedForReuse {
			return nil, ErrReuseDetected
		}
		return nil, ErrRevoked

	case rec.UsedAt != nil:
		if now.After(rec.UsedAt.Add(p.grace)) {
			// Only the re-presented token carries the reuse flag; the rest
			// of the account's rows revoke plainly.
			if _, err := tx.Exec(ctx, `
				UPDATE refresh_tokens
				SET revoked_at = $2, revoked_for_reuse = (id = $3)
				WHERE account_id = $1 AND revoked_at IS NULL
			`, rec.AccountID, now, key); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			return nil, ErrReuseDetected
		}
		return &RotateOutcome{
			AccountID:    rec.AccountID,
			SessionID:    rec.SessionID,
			Replayed:     true,
			AccessToken:  replayAccess,
			RefreshToken: replayRefresh,
		}, nil

	case !rec.ExpiresAt.After(now):
		return nil, ErrExpired
	}

	succID := KeyFor(next.Value)
	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET used_at = $2, rotated_to = $3, replay_access = $4, replay_refresh = $5
		WHERE id = $1 AND used_at IS NULL
	`, key, now, succID, next.AccessToken, next.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() != 1 {
		// Lost the race despite the row lock; surface as a not-found so
		// the caller retries against current state.
		return nil, ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, account_id, session_id, issued_at, expires_at, session_created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, succID, rec.AccountID, rec.SessionID, now, next.ExpiresAt.UTC(), rec.SessionCreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &RotateOutcome{
		AccountID:    rec.AccountID,
		SessionID:    rec.SessionID,
		AccessToken:  next.AccessToken,
		RefreshToken: next.RefreshToken,
	}, nil
}

// Revoke implements Ledger.
func (p *Postgres) Revoke(ctx context.Context, value string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, KeyFor(value), p.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeSession implements Ledger.
func (p *Postgres) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $3
		WHERE account_id = $1 AND session_id = $2 AND revoked_at IS NULL
	`, accountID, sessionID, p.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAll implements Ledger.
func (p *Postgres) RevokeAll(ctx context.Context, accountID string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE account_id = $1 AND revoked_at IS NULL
	`, accountID, p.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ActiveSessions implements Ledger.
func (p *Postgres) ActiveSessions(ctx context.Context, accountID string) ([]Record, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, account_id, session_id, issued_at, expires_at, session_created_at
		FROM refresh_tokens
		WHERE account_id = $1 AND used_at IS NULL AND revoked_at IS NULL AND expires_at > $2
		ORDER BY session_created_at
	`, accountID, p.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.SessionID, &rec.IssuedAt, &rec.ExpiresAt, &rec.SessionCreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// PurgeExpired implements Ledger.
func (p *Postgres) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}
