package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authcore-test",
		Clock:         clock,
	})
	require.NoError(t, err)

	return m, clock
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	clock := &fakeClock{now: time.Now()}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero ttl", Config{SigningMethod: MethodHS256, PrivateKey: []byte("secret"), Clock: clock}},
		{"no clock", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("secret")}},
		{"hs256 without key", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, Clock: clock}},
		{"ed25519 without public key", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, Clock: clock}},
		{"unknown method", Config{AccessTTL: time.Minute, SigningMethod: "rs512", PrivateKey: []byte("k"), Clock: clock}},
		{"excessive leeway", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("secret"), Leeway: 5 * time.Minute, Clock: clock}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewManager(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestAccessRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)

	signed, err := m.IssueAccess("acct-1", "member", "sess-1")
	require.NoError(t, err)

	claims, err := m.ParseAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.Subject)
	assert.Equal(t, "member", claims.Role)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "authcore-test", claims.Issuer)
}

func TestAccessExpiry(t *testing.T) {
	m, clock := newTestManager(t)

	signed, err := m.IssueAccess("acct-1", "member", "sess-1")
	require.NoError(t, err)

	clock.Advance(14 * time.Minute)
	_, err = m.ParseAccess(signed)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = m.ParseAccess(signed)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestParseAccessRejectsTampering(t *testing.T) {
	m, _ := newTestManager(t)

	signed, err := m.IssueAccess("acct-1", "member", "sess-1")
	require.NoError(t, err)

	_, err = m.ParseAccess(signed[:len(signed)-3] + "xyz")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = m.ParseAccess("not-a-token")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRejectsTokenFromOtherKey(t *testing.T) {
	m, _ := newTestManager(t)
	other, _ := newTestManager(t)

	signed, err := other.IssueAccess("acct-1", "member", "sess-1")
	require.NoError(t, err)

	_, err = m.ParseAccess(signed)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPurposeRoundTripAndKindEnforcement(t *testing.T) {
	m, _ := newTestManager(t)

	signed, id, err := m.IssuePurpose(KindPasswordReset, "acct-1", "a@example.com", 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	claims, err := m.ParsePurpose(signed, KindPasswordReset)
	require.NoError(t, err)
	assert.Equal(t, id, claims.ID)
	assert.Equal(t, "acct-1", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)

	// A reset token presented where an MFA challenge is expected must not
	// pass.
	_, err = m.ParsePurpose(signed, KindMFA)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestIssuePurposeRejectsUnknownKind(t *testing.T) {
	m, _ := newTestManager(t)

	_, _, err := m.IssuePurpose(Kind("session"), "acct-1", "", time.Minute)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestPurposeExpiry(t *testing.T) {
	m, clock := newTestManager(t)

	signed, _, err := m.IssuePurpose(KindMFA, "acct-1", "", 5*time.Minute)
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	_, err = m.ParsePurpose(signed, KindMFA)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestRefreshRoundTrip(t *testing.T) {
	m, clock := newTestManager(t)

	expires := clock.Now().Add(7 * 24 * time.Hour)
	signed, err := m.IssueRefresh("acct-1", "sess-1", "opaque-value", expires)
	require.NoError(t, err)

	claims, err := m.ParseRefresh(signed)
	require.NoError(t, err)
	assert.Equal(t, "opaque-value", claims.ID)
	assert.Equal(t, "acct-1", claims.Subject)
	assert.Equal(t, "sess-1", claims.SessionID)

	clock.Advance(8 * 24 * time.Hour)
	_, err = m.ParseRefresh(signed)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestHS256RoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Clock:         clock,
	})
	require.NoError(t, err)

	signed, err := m.IssueAccess("acct-1", "admin", "sess-9")
	require.NoError(t, err)

	claims, err := m.ParseAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
}

func TestLeewayToleratesSkew(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Leeway:        30 * time.Second,
		Clock:         clock,
	})
	require.NoError(t, err)

	signed, err := m.IssueAccess("acct-1", "member", "sess-1")
	require.NoError(t, err)

	clock.Advance(time.Minute + 20*time.Second)
	_, err = m.ParseAccess(signed)
	assert.NoError(t, err)

	clock.Advance(20 * time.Second)
	_, err = m.ParseAccess(signed)
	assert.ErrorIs(t, err, ErrExpired)
}
