package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmkelly/authcore/ledger"
	"github.com/tmkelly/authcore/token"
)

// Logout revokes the presented refresh credential's ledger record,
// ending its session chain. Idempotent: logging out twice, or with an
// already expired token, succeeds. The paired access token stays valid
// until its own expiry.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			// An expired session needs no teardown.
			return nil
		}
		return ErrTokenInvalid
	}

	if err := e.ledger.Revoke(ctx, claims.ID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		if errors.Is(err, ledger.ErrUnavailable) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return err
	}

	e.metrics.Inc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogout, claims.Subject, claims.SessionID, true, nil)

	return nil
}

// ListSessions enumerates the account's active session chains, one view
// per chain. LastUsed is the issue time of the chain's current record,
// which advances on every rotation.
func (e *Engine) ListSessions(ctx context.Context, accountID string) ([]SessionView, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id required", ErrValidation)
	}

	records, err := e.ledger.ActiveSessions(ctx, accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, err
	}

	views := make([]SessionView, 0, len(records))
	for _, rec := range records {
		views = append(views, SessionView{
			ID:        rec.SessionID,
			CreatedAt: rec.SessionCreatedAt,
			LastUsed:  rec.IssuedAt,
			ExpiresAt: rec.ExpiresAt,
		})
	}
	return views, nil
}

// RevokeSession tears down one session chain by id, scoped to the owning
// account so one account can never revoke another's session. Idempotent.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	if accountID == "" || sessionID == "" {
		return fmt.Errorf("%w: account id and session id required", ErrValidation)
	}

	if err := e.ledger.RevokeSession(ctx, accountID, sessionID); err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return err
	}

	e.metrics.Inc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, accountID, sessionID, true, nil)

	return nil
}

// RevokeAllSessions tears down every session chain the account has.
func (e *Engine) RevokeAllSessions(ctx context.Context, accountID string) error {
	if accountID == "" {
		return fmt.Errorf("%w: account id required", ErrValidation)
	}

	if err := e.ledger.RevokeAll(ctx, accountID); err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return err
	}

	e.emitAudit(ctx, auditEventSessionsRevoked, accountID, "", true, nil)

	return nil
}
