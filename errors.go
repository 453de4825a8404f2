package authcore

import "errors"

var (
	// ErrValidation covers malformed, user-correctable input.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidCredentials is the generic authentication failure. Every
	// credential check collapses to this message so callers cannot learn
	// which field was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked means brute-force lockout is in effect. Disclosed
	// deliberately: hiding it helps no one.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountNotActive means the account is suspended or banned.
	ErrAccountNotActive = errors.New("account not active")
	// ErrAccountPendingVerification means the email address has not been
	// verified yet.
	ErrAccountPendingVerification = errors.New("account pending email verification")
	// ErrAccountExists is returned for duplicate registration.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is an internal store condition; the engine maps
	// it to ErrInvalidCredentials on authentication paths.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTokenInvalid covers malformed or unverifiable tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired means a token's expiry is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked means the refresh record was revoked by logout,
	// session revocation, or a credential change.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrReuseDetected is the security event: a refresh token was
	// presented again after rotation. Every session for the account has
	// been torn down; the client must force a full re-login.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrSessionNotFound means the refresh value has no ledger record.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPasswordPolicy means the new password fails the strength policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse means the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrMFARequired means login succeeded past the password check but a
	// second factor is outstanding.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFAInvalid means the MFA challenge or code did not verify.
	ErrMFAInvalid = errors.New("mfa challenge invalid")
	// ErrMFAAttemptsExceeded means the challenge burned its attempt
	// budget and was discarded.
	ErrMFAAttemptsExceeded = errors.New("mfa challenge attempts exceeded")
	// ErrMFANotEnrolled means the account has no MFA secret.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")
	// ErrStoreUnavailable wraps infrastructure failures. Security checks
	// fail closed on it; it is never silently retried on the lockout path.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrSessionInvalidationFailed means the credential update succeeded
	// but revoking outstanding refresh records did not.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrEngineNotReady means the engine was not built correctly.
	ErrEngineNotReady = errors.New("engine not initialized")
)
