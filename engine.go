package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmkelly/authcore/ledger"
	"github.com/tmkelly/authcore/lockout"
	"github.com/tmkelly/authcore/token"
)

// Engine is the authentication core. Construct it through New().Build();
// a zero Engine is not usable. All methods are safe for concurrent use.
type Engine struct {
	config   Config
	creds    CredentialStore
	ledger   ledger.Ledger
	limiter  *lockout.Limiter
	tokens   *token.Manager
	hasher   PasswordHasher
	notifier Notifier
	clock    Clock
	pending  *purposeStore
	audit    *auditDispatcher
	metrics  *Metrics
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used afterwards.
func (e *Engine) Close() {
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// ValidateAccess verifies an access token's signature and expiry and
// returns the identity it asserts. This is a pure token check; it never
// touches a store, which is exactly why access tokens are short-lived.
func (e *Engine) ValidateAccess(tokenStr string) (*Identity, error) {
	claims, err := e.tokens.ParseAccess(tokenStr)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return &Identity{
		AccountID: claims.Subject,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}

// PurgeExpiredTokens removes ledger records whose expiry is in the past.
// Run it periodically; nothing in the engine depends on it for
// correctness, only for storage hygiene.
func (e *Engine) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return e.ledger.PurgeExpired(ctx, e.clock.Now())
}

// issuePair starts a new session chain: one ledger record, one refresh
// credential wrapping it, and one access token bound to the session id.
func (e *Engine) issuePair(ctx context.Context, account Account) (TokenPair, string, error) {
	value, err := ledger.NewValue()
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("mint refresh value: %w", err)
	}

	sessionID := uuid.NewString()
	expiresAt := e.clock.Now().Add(e.config.Refresh.TTL)

	refreshToken, err := e.tokens.IssueRefresh(account.ID, sessionID, value, expiresAt)
	if err != nil {
		return TokenPair{}, "", err
	}
	accessToken, err := e.tokens.IssueAccess(account.ID, account.Role, sessionID)
	if err != nil {
		return TokenPair{}, "", err
	}

	if _, err := e.ledger.Issue(ctx, account.ID, sessionID, value, expiresAt); err != nil {
		return TokenPair{}, "", err
	}

	e.metrics.Inc(MetricSessionCreated)

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(e.tokens.AccessTTL() / time.Second),
	}, sessionID, nil
}

// statusErr maps a non-active account status to its public error, or nil
// for an active account.
func statusErr(status AccountStatus) error {
	switch status {
	case AccountActive:
		return nil
	case AccountPending:
		return ErrAccountPendingVerification
	default:
		return ErrAccountNotActive
	}
}

func (e *Engine) emitAudit(ctx context.Context, eventType, accountID, sessionID string, success bool, cause error) {
	if e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: e.clock.Now(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.audit.Dispatch(event)
}
