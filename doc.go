// Package authcore is a token and session lifecycle core for credential
// authentication: registration with email verification, password login
// with TOTP step-up, refresh token rotation with reuse detection, session
// enumeration and revocation, brute-force lockout, and password change
// and reset flows.
//
// Engine methods are safe to call from multiple goroutines after
// construction through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface: [Engine], [Builder], [Config], and the
// value types they exchange. The signed-token codec (token), refresh
// ledger (ledger), lockout limiter (lockout), password hashing
// (password), and the PostgreSQL credential store (credstore) live in
// sub-packages; only ledger.Ledger and the store interfaces appear in
// the public API, so implementations can be swapped.
//
// # Token model
//
// Access tokens are short-lived signed JWTs validated without any store
// round-trip; they are never revocable before expiry. Refresh tokens
// wrap a 256-bit opaque value whose SHA-256 digest keys a
// record-per-token ledger. Rotation consumes the record and installs a
// successor; presenting a consumed value again inside a small grace
// window replays the identical pair, while reuse outside the window
// revokes every session the account has.
package authcore
