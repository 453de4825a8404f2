package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmkelly/authcore/ledger"
	"github.com/tmkelly/authcore/token"
)

// Refresh rotates a refresh credential: the presented token is consumed
// and a fresh access/refresh pair for the same session chain is returned.
// A benign replay inside the grace window returns the identical pair the
// first rotation minted. Reuse outside the window is treated as theft:
// every session for the account is revoked and ErrReuseDetected is
// returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	account, err := e.creds.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metrics.Inc(MetricRefreshFailure)
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if err := statusErr(account.Status); err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, account.ID, claims.SessionID, false, err)
		return nil, err
	}

	// Mint the successor before touching the ledger. If the rotation loses
	// the race or fails, the minted pair is never persisted anywhere the
	// client can see, so it is inert.
	nextValue, err := ledger.NewValue()
	if err != nil {
		return nil, fmt.Errorf("mint refresh value: %w", err)
	}
	expiresAt := e.clock.Now().Add(e.config.Refresh.TTL)

	nextRefresh, err := e.tokens.IssueRefresh(account.ID, claims.SessionID, nextValue, expiresAt)
	if err != nil {
		return nil, err
	}
	nextAccess, err := e.tokens.IssueAccess(account.ID, account.Role, claims.SessionID)
	if err != nil {
		return nil, err
	}

	outcome, err := e.ledger.Rotate(ctx, claims.ID, ledger.Successor{
		Value:        nextValue,
		ExpiresAt:    expiresAt,
		AccessToken:  nextAccess,
		RefreshToken: nextRefresh,
	})
	if err != nil {
		return nil, e.mapRotateErr(ctx, err, account.ID, claims.SessionID)
	}

	// The signed subject and the ledger row must agree; a mismatch means
	// the value was somehow re-wrapped for another account.
	if outcome.AccountID != claims.Subject {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, ErrTokenInvalid
	}

	if outcome.Replayed {
		e.metrics.Inc(MetricRefreshReplayed)
	} else {
		e.metrics.Inc(MetricRefreshSuccess)
	}
	e.emitAudit(ctx, auditEventRefreshSuccess, account.ID, outcome.SessionID, true, nil)

	return &TokenPair{
		AccessToken:  outcome.AccessToken,
		RefreshToken: outcome.RefreshToken,
		ExpiresIn:    int64(e.tokens.AccessTTL() / time.Second),
	}, nil
}

func (e *Engine) mapRotateErr(ctx context.Context, err error, accountID, sessionID string) error {
	switch {
	case errors.Is(err, ledger.ErrReuseDetected):
		e.metrics.Inc(MetricReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuse, accountID, sessionID, false, ErrReuseDetected)
		return ErrReuseDetected
	case errors.Is(err, ledger.ErrRevoked):
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, accountID, sessionID, false, ErrTokenRevoked)
		return ErrTokenRevoked
	case errors.Is(err, ledger.ErrExpired):
		e.metrics.Inc(MetricRefreshFailure)
		return ErrTokenExpired
	case errors.Is(err, ledger.ErrNotFound):
		e.metrics.Inc(MetricRefreshFailure)
		return ErrSessionNotFound
	case errors.Is(err, ledger.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}
