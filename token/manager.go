package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm used for all tokens.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Curve25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 using a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

// Kind tags a purpose token with the single follow-up action it is valid
// for. The set is closed; ParsePurpose rejects any other value.
type Kind string

const (
	// KindMFA gates the second step of an MFA login.
	KindMFA Kind = "mfa"
	// KindEmailVerify completes registration email verification.
	KindEmailVerify Kind = "email_verify"
	// KindPasswordReset authorizes an unauthenticated password reset.
	KindPasswordReset Kind = "password_reset"
)

var (
	// ErrExpired is returned when a token's expiry is in the past.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned for any token that fails signature or
	// structural validation.
	ErrMalformed = errors.New("token malformed")
	// ErrWrongKind is returned when a purpose token carries a kind other
	// than the one the caller expects.
	ErrWrongKind = errors.New("token purpose mismatch")
)

// Clock supplies the current time. Injected so tests can freeze it.
type Clock interface {
	Now() time.Time
}

// Config holds the codec's signing material and issuance parameters.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	Clock         Clock
}

// Manager creates and verifies the three token families. Safe for
// concurrent use; configured once and treated as immutable.
type Manager struct {
	config Config
}

// AccessClaims is the payload of a short-lived access token. Subject is
// the account id, SessionID ties the token to its refresh chain.
type AccessClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// PurposeClaims is the payload of a single-purpose token. Subject is the
// account id; ID is the random pending-record key in the fast store.
type PurposeClaims struct {
	Kind  Kind   `json:"knd"`
	Email string `json:"eml,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims wraps an opaque ledger value so the client cannot forge a
// ledger key. ID carries the opaque value, SessionID the chain id.
type RefreshClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a ready codec.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Clock == nil {
		return nil, errors.New("clock required")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// IssueAccess mints an access token for the account and refresh chain.
func (m *Manager) IssueAccess(accountID, role, sessionID string) (string, error) {
	now := m.config.Clock.Now()
	claims := AccessClaims{
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	return m.sign(claims)
}

// AccessTTL reports the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// IssuePurpose mints a single-purpose token with the caller-chosen TTL and
// returns it together with its pending-record id.
func (m *Manager) IssuePurpose(kind Kind, accountID, email string, ttl time.Duration) (string, string, error) {
	if ttl <= 0 {
		return "", "", errors.New("invalid purpose TTL")
	}
	switch kind {
	case KindMFA, KindEmailVerify, KindPasswordReset:
	default:
		return "", "", ErrWrongKind
	}

	now := m.config.Clock.Now()
	id := uuid.NewString()
	claims := PurposeClaims{
		Kind:  kind,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	signed, err := m.sign(claims)
	if err != nil {
		return "", "", err
	}
	return signed, id, nil
}

// IssueRefresh wraps an opaque ledger value in a signed envelope whose jti
// equals the value, so the ledger key cannot be forged client-side.
func (m *Manager) IssueRefresh(accountID, sessionID, value string, expiresAt time.Time) (string, error) {
	now := m.config.Clock.Now()
	claims := RefreshClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        value,
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	return m.sign(claims)
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParsePurpose verifies a purpose token and checks it carries exactly the
// expected kind. Kind confusion is ErrWrongKind, never a pass.
func (m *Manager) ParsePurpose(tokenStr string, want Kind) (*PurposeClaims, error) {
	claims := &PurposeClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	switch claims.Kind {
	case KindMFA, KindEmailVerify, KindPasswordReset:
	default:
		return nil, ErrMalformed
	}
	if claims.Kind != want {
		return nil, ErrWrongKind
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// ParseRefresh verifies a refresh envelope and returns its claims. Expiry
// here is a fast path; the ledger row stays authoritative.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	tok := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(m.config.Clock.Now),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrMalformed
	}
	if !tok.Valid {
		return ErrMalformed
	}
	return nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
