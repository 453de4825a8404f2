package authcore

import (
	"errors"
	"time"
)

// Config is the full engine configuration tree. Configure once before
// Build; treated as immutable afterwards.
type Config struct {
	Token    TokenConfig
	Refresh  RefreshConfig
	Lockout  LockoutConfig
	MFA      MFAConfig
	Password PasswordConfig
	Register RegisterConfig
	Reset    ResetConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// RedisPrefix namespaces every fast-store key this engine writes.
	RedisPrefix string
}

// TokenConfig configures the signed-token codec.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// RefreshConfig configures the refresh ledger.
type RefreshConfig struct {
	// TTL is the lifetime of each ledger record; rotation re-arms it.
	TTL time.Duration
	// ReuseGraceWindow separates benign client retries from reuse
	// attacks: a second presentation inside the window replays the same
	// pair, outside it tears the account's sessions down.
	ReuseGraceWindow time.Duration
}

// LockoutConfig configures brute-force lockout.
type LockoutConfig struct {
	Threshold    int
	Window       time.Duration
	LockDuration time.Duration
}

// MFAConfig configures TOTP challenges.
type MFAConfig struct {
	Issuer       string
	ChallengeTTL time.Duration
	MaxAttempts  int
}

// PasswordConfig configures the default argon2id hasher and the rehash
// policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// RegisterConfig configures account registration.
type RegisterConfig struct {
	DefaultRole     string
	VerificationTTL time.Duration
}

// ResetConfig configures the unauthenticated password-reset flow.
type ResetConfig struct {
	TTL time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration the Builder starts
// from. Signing material is not defaulted; callers must supply keys.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "authcore",
		},
		Refresh: RefreshConfig{
			TTL:              7 * 24 * time.Hour,
			ReuseGraceWindow: 2 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold:    5,
			Window:       30 * time.Minute,
			LockDuration: 15 * time.Minute,
		},
		MFA: MFAConfig{
			Issuer:       "authcore",
			ChallengeTTL: 5 * time.Minute,
			MaxAttempts:  5,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Register: RegisterConfig{
			DefaultRole:     "member",
			VerificationTTL: 24 * time.Hour,
		},
		Reset: ResetConfig{
			TTL: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		RedisPrefix: "ac",
	}
}

// Validate rejects configurations that would weaken the engine's security
// properties.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.AccessTTL > time.Hour {
		return errors.New("token access TTL must be positive and at most one hour")
	}
	if c.Refresh.TTL <= c.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if c.Refresh.ReuseGraceWindow < 0 || c.Refresh.ReuseGraceWindow > 10*time.Minute {
		return errors.New("reuse grace window must be between 0 and 10 minutes")
	}
	if c.Lockout.Threshold < 1 {
		return errors.New("lockout threshold must be at least 1")
	}
	if c.Lockout.Window <= 0 || c.Lockout.LockDuration <= 0 {
		return errors.New("lockout window and lock duration must be positive")
	}
	if c.MFA.ChallengeTTL <= 0 {
		return errors.New("mfa challenge TTL must be positive")
	}
	if c.MFA.MaxAttempts < 1 {
		return errors.New("mfa max attempts must be at least 1")
	}
	if c.Register.DefaultRole == "" {
		return errors.New("register default role required")
	}
	if c.Register.VerificationTTL <= 0 || c.Reset.TTL <= 0 {
		return errors.New("purpose token TTLs must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
