// Package token implements the signed-token codec: short-lived access
// tokens, single-purpose step-up tokens (MFA, email verification, password
// reset), and the signed wrapper around opaque refresh-ledger values.
//
// The codec is pure: verification needs only the signing key and the clock,
// never a store lookup. That is the deliberate trade-off that makes access
// tokens fast but not instantly revocable; all revocation semantics live in
// the refresh ledger.
package token
