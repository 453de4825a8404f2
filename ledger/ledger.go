package ledger

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound means the presented value has no ledger row.
	ErrNotFound = errors.New("refresh record not found")
	// ErrRevoked means the row was revoked by logout, session revocation,
	// or a credential change.
	ErrRevoked = errors.New("refresh record revoked")
	// ErrReuseDetected means the presented value was already rotated away
	// outside the benign-race window, or the row was revoked by an earlier
	// reuse event. Proof of theft: the caller must tear down the session.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrExpired means the row's expiry is in the past.
	ErrExpired = errors.New("refresh record expired")
	// ErrUnavailable wraps backing-store failures.
	ErrUnavailable = errors.New("refresh ledger unavailable")
)

const valueBytes = 32

// Clock supplies the current time. Injected so tests can freeze it.
type Clock interface {
	Now() time.Time
}

// Record is one issued refresh credential. A record transitions
// issued -> used -> (rotated away) exactly once under normal operation.
// Records are never deleted except by PurgeExpired.
type Record struct {
	ID        string
	AccountID string

	// SessionID is the chain id shared by every record minted from the
	// same login; it is what session listing and per-session revocation
	// operate on.
	SessionID string

	IssuedAt         time.Time
	ExpiresAt        time.Time
	SessionCreatedAt time.Time

	UsedAt    *time.Time
	RevokedAt *time.Time

	// RevokedForReuse marks rows revoked by a reuse event, so a later
	// presentation surfaces as reuse rather than plain revocation.
	RevokedForReuse bool

	// RotatedTo is the ID of the successor record, set when this record
	// is consumed by rotation.
	RotatedTo string
}

// Successor carries everything the ledger must persist atomically when a
// rotation succeeds: the next opaque value plus the already-minted token
// pair, retained so a benign replay can return the identical pair.
type Successor struct {
	Value        string
	ExpiresAt    time.Time
	AccessToken  string
	RefreshToken string
}

// RotateOutcome is the result of a successful or replayed rotation.
type RotateOutcome struct {
	AccountID string
	SessionID string

	// Replayed is true when the presented value was already used inside
	// the grace window; the returned pair is the one minted by the first
	// rotation, not a new one.
	Replayed bool

	AccessToken  string
	RefreshToken string
}

// Ledger is the persistent record-per-refresh-token store with rotation
// and reuse detection. Implementations must make Rotate linearizable per
// token: two concurrent rotations of the same value must never both mint
// successors.
type Ledger interface {
	// Issue persists a fresh record for a new session chain.
	Issue(ctx context.Context, accountID, sessionID, value string, expiresAt time.Time) (Record, error)

	// Rotate consumes the presented value and installs the successor, or
	// returns the retained pair for a benign replay. Error cases follow
	// the decision order: ErrNotFound, ErrRevoked / ErrReuseDetected,
	// ErrExpired.
	Rotate(ctx context.Context, value string, next Successor) (*RotateOutcome, error)

	// Revoke marks the row for the presented value revoked. Idempotent.
	Revoke(ctx context.Context, value string) error

	// RevokeSession revokes every record in one session chain, scoped to
	// the owning account. Idempotent.
	RevokeSession(ctx context.Context, accountID, sessionID string) error

	// RevokeAll revokes every record belonging to the account. Idempotent.
	RevokeAll(ctx context.Context, accountID string) error

	// ActiveSessions returns the account's live chains, one record per
	// chain: the current non-used, non-revoked, non-expired row.
	ActiveSessions(ctx context.Context, accountID string) ([]Record, error)

	// PurgeExpired deletes rows that expired or were revoked before the
	// cutoff and reports how many were removed.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewValue generates an opaque refresh value with 256 bits of entropy,
// base64url-encoded without padding.
func NewValue() (string, error) {
	raw := make([]byte, valueBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// KeyFor derives the storage key for an opaque value. Only the digest is
// persisted, so a leaked ledger never yields redeemable values.
func KeyFor(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
