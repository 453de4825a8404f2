package authcore

import (
	"context"
	"time"
)

// AccountStatus represents the lifecycle state of an account.
type AccountStatus uint8

const (
	// AccountPending means registration happened but the email address
	// has not been verified yet.
	AccountPending AccountStatus = iota
	// AccountActive is a fully usable account.
	AccountActive
	// AccountSuspended is a temporarily disabled account.
	AccountSuspended
	// AccountBanned is a permanently disabled account.
	AccountBanned
)

// Account is the credential-state record owned by the credential store.
// MFASecret is opaque to the engine and present only when MFA is enabled;
// it is never logged and never returned after initial enrollment.
type Account struct {
	ID             string
	Email          string
	PasswordDigest string
	FirstName      string
	LastName       string
	Role           string
	Status         AccountStatus
	MFAEnabled     bool
	MFASecret      string
	LastLoginAt    *time.Time
}

// CredentialStore is the persistent-store adapter for account credential
// state. Implementations map their own not-found and duplicate conditions
// to ErrAccountNotFound and ErrAccountExists, and wrap infrastructure
// failures in ErrStoreUnavailable.
type CredentialStore interface {
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	Create(ctx context.Context, account Account) (Account, error)
	UpdatePasswordDigest(ctx context.Context, id, digest string) error
	UpdateStatus(ctx context.Context, id string, status AccountStatus) error
	UpdateMFA(ctx context.Context, id string, enabled bool, secret string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// PasswordHasher is the black-box password hashing primitive. The default
// is the argon2id hasher in the password package.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
}

// hashUpgrader is satisfied by hashers that can report outdated digests;
// the login path rehashes opportunistically when available.
type hashUpgrader interface {
	NeedsUpgrade(digest string) (bool, error)
}

// Notifier delivers verification and reset tokens out of band. The engine
// only issues opaque tokens; delivery is entirely the notifier's problem.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
	SendReset(ctx context.Context, email, token string) error
}

// Clock supplies the current time. The engine, token codec, ledger, and
// limiter all share one injected clock so tests can freeze time.
type Clock interface {
	Now() time.Time
}

// RegisterInput is the input for Engine.Register.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// RegisterResult is returned by Engine.Register. No session exists yet;
// the account stays pending until the verification token is redeemed.
type RegisterResult struct {
	ID    string
	Email string
}

// TokenPair is an access token plus the signed refresh credential.
// ExpiresIn is the access token lifetime in seconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// LoginResult is returned by Engine.Login and Engine.CompleteMFA. When
// RequiresMFA is set, no session tokens were issued and MFAToken must be
// presented to CompleteMFA together with a code.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64

	RequiresMFA bool
	MFAToken    string
}

// SessionView is one device session projected from the refresh ledger:
// the account's currently active chain records.
type SessionView struct {
	ID        string
	CreatedAt time.Time
	LastUsed  time.Time
	ExpiresAt time.Time
}

// MFAProvision holds the raw TOTP secret and otpauth:// URI returned by
// Engine.EnableMFA. This is the only time the secret leaves the store.
type MFAProvision struct {
	Secret string
	URI    string
}

// Identity is the verified content of an access token, for callers
// building authenticated transports.
type Identity struct {
	AccountID string
	Role      string
	SessionID string
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
