package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/tmkelly/authcore/ledger"
	"github.com/tmkelly/authcore/lockout"
	"github.com/tmkelly/authcore/password"
	"github.com/tmkelly/authcore/token"
)

// Builder assembles an Engine. Configure it with the With* methods and
// call Build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	creds    CredentialStore
	ledger   ledger.Ledger
	notifier Notifier
	hasher   PasswordHasher
	clock    Clock
	sink     AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the entire configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the fast-store client used for lockout counters and
// pending purpose records. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the persistent account store. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.creds = store
	return b
}

// WithLedger sets the refresh-token ledger. Defaults to the in-memory
// implementation, which is single-process only.
func (b *Builder) WithLedger(l ledger.Ledger) *Builder {
	b.ledger = l
	return b
}

// WithNotifier sets the out-of-band notifier for verification and reset
// tokens. Without one, Register and RequestReset still work but the
// tokens go nowhere.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithHasher overrides the default argon2id password hasher.
func (b *Builder) WithHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithClock overrides the system clock. Intended for tests.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithAuditSink sets the destination for audit events. Only consulted
// when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// Build validates the configuration, wires the components, and returns
// a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.creds == nil {
		return nil, errors.New("credential store required")
	}

	clock := b.clock
	if clock == nil {
		clock = SystemClock()
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
		Clock:         clock,
	})
	if err != nil {
		return nil, err
	}

	hasher := b.hasher
	if hasher == nil {
		hasher, err = password.NewHasher(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
	}

	ldg := b.ledger
	if ldg == nil {
		ldg = ledger.NewMemory(clock, cfg.Refresh.ReuseGraceWindow)
	}

	engine := &Engine{
		config:   cfg,
		creds:    b.creds,
		ledger:   ldg,
		tokens:   tokens,
		hasher:   hasher,
		notifier: b.notifier,
		clock:    clock,
		limiter: lockout.New(b.redis, lockout.Config{
			Threshold:    cfg.Lockout.Threshold,
			Window:       cfg.Lockout.Window,
			LockDuration: cfg.Lockout.LockDuration,
			Prefix:       cfg.RedisPrefix,
		}),
		pending: newPurposeStore(b.redis, cfg.RedisPrefix),
		audit:   newAuditDispatcher(cfg.Audit, b.sink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
