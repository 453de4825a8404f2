package ledger

import (
	"context"
	"sync"
	"time"
)

type memoryRow struct {
	Record
	replayAccess  string
	replayRefresh string
}

// Memory is an in-process Ledger guarded by a mutex. The single lock makes
// rotation trivially linearizable per token; it exists for tests and for
// embedding without a database.
type Memory struct {
	mu    sync.Mutex
	clock Clock
	grace time.Duration
	rows  map[string]*memoryRow
}

// NewMemory creates an empty in-memory ledger with the given reuse grace
// window.
func NewMemory(clock Clock, grace time.Duration) *Memory {
	return &Memory{
		clock: clock,
		grace: grace,
		rows:  map[string]*memoryRow{},
	}
}

// Issue implements Ledger.
func (m *Memory) Issue(ctx context.Context, accountID, sessionID, value string, expiresAt time.Time) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	row := &memoryRow{
		Record: Record{
			ID:               KeyFor(value),
			AccountID:        accountID,
			SessionID:        sessionID,
			IssuedAt:         now,
			ExpiresAt:        expiresAt,
			SessionCreatedAt: now,
		},
	}
	m.rows[row.ID] = row
	return row.Record, nil
}

// Rotate implements Ledger.
func (m *Memory) Rotate(ctx context.Context, value string, next Successor) (*RotateOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	row, ok := m.rows[KeyFor(value)]
	if !ok {
		return nil, ErrNotFound
	}

	switch {
	case row.RevokedAt != nil:
		if row.RevokedForReuse {
			return nil, ErrReuseDetected
		}
		return nil, ErrRevoked

	case row.UsedAt != nil:
		if now.After(row.UsedAt.Add(m.grace)) {
			// Only the re-presented token gets the reuse flag; the rest of
			// the account's rows revoke plainly.
			m.revokeAccountLocked(row.AccountID, now)
			row.RevokedForReuse = true
			return nil, ErrReuseDetected
		}
		// Benign race: duplicate network retry inside the grace window.
		return &RotateOutcome{
			AccountID:    row.AccountID,
			SessionID:    row.SessionID,
			Replayed:     true,
			AccessToken:  row.replayAccess,
			RefreshToken: row.replayRefresh,
		}, nil

	case !row.ExpiresAt.After(now):
		return nil, ErrExpired
	}

	succ := &memoryRow{
		Record: Record{
			ID:               KeyFor(next.Value),
			AccountID:        row.AccountID,
			SessionID:        row.SessionID,
			IssuedAt:         now,
			ExpiresAt:        next.ExpiresAt,
			SessionCreatedAt: row.SessionCreatedAt,
		},
	}

	used := now
	row.UsedAt = &used
	row.RotatedTo = succ.ID
	row.replayAccess = next.AccessToken
	row.replayRefresh = next.RefreshToken
	m.rows[succ.ID] = succ

	return &RotateOutcome{
		AccountID:    row.AccountID,
		SessionID:    row.SessionID,
		AccessToken:  next.AccessToken,
		RefreshToken: next.RefreshToken,
	}, nil
}

// Revoke implements Ledger.
func (m *Memory) Revoke(ctx context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[KeyFor(value)]
	if !ok || row.RevokedAt != nil {
		return nil
	}
	now := m.clock.Now()
	row.RevokedAt = &now
	return nil
}

// RevokeSession implements Ledger.
func (m *Memory) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for _, row := range m.rows {
		if row.AccountID != accountID || row.SessionID != sessionID {
			continue
		}
		if row.RevokedAt == nil {
			row.RevokedAt = &now
		}
	}
	return nil
}

// RevokeAll implements Ledger.
func (m *Memory) RevokeAll(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.revokeAccountLocked(accountID, m.clock.Now())
	return nil
}

// ActiveSessions implements Ledger.
func (m *Memory) ActiveSessions(ctx context.Context, accountID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var out []Record
	for _, row := range m.rows {
		if row.AccountID != accountID {
			continue
		}
		if row.UsedAt != nil || row.RevokedAt != nil || !row.ExpiresAt.After(now) {
			continue
		}
		out = append(out, row.Record)
	}
	return out, nil
}

// PurgeExpired implements Ledger.
func (m *Memory) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for id, row := range m.rows {
		expired := row.ExpiresAt.Before(cutoff)
		revoked := row.RevokedAt != nil && row.RevokedAt.Before(cutoff)
		if expired || revoked {
			delete(m.rows, id)
			purged++
		}
	}
	return purged, nil
}

func (m *Memory) revokeAccountLocked(accountID string, now time.Time) {
	for _, row := range m.rows {
		if row.AccountID != accountID || row.RevokedAt != nil {
			continue
		}
		at := now
		row.RevokedAt = &at
	}
}
