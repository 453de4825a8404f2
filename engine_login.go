package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/tmkelly/authcore/token"
)

// Login authenticates an email and password. When the account has MFA
// enabled, no session is issued yet: the result carries a short-lived
// challenge token that must be redeemed through CompleteMFA.
//
// Lockout is keyed on the submitted email, not the account, so attempts
// against unknown addresses are throttled the same way. When the lockout
// store is unreachable the check fails closed.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password required", ErrValidation)
	}

	locked, err := e.limiter.IsLocked(ctx, email)
	if locked {
		if err != nil {
			log.Printf("authcore: lockout check degraded, failing closed: %v", err)
		}
		e.metrics.Inc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, "", "", false, ErrAccountLocked)
		return nil, ErrAccountLocked
	}

	account, err := e.creds.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, e.failLogin(ctx, email, "")
		}
		return nil, err
	}

	ok, err := e.hasher.Verify(password, account.PasswordDigest)
	if err != nil {
		return nil, fmt.Errorf("verify password digest: %w", err)
	}
	if !ok {
		return nil, e.failLogin(ctx, email, account.ID)
	}

	// Status is only disclosed once the caller has proven the password.
	if err := statusErr(account.Status); err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, account.ID, "", false, err)
		return nil, err
	}

	// The plaintext is only in hand right here, so this is the one place
	// an outdated digest can be rehashed.
	account = e.maybeUpgradeDigest(ctx, account, password)

	if account.MFAEnabled {
		challenge, jti, err := e.tokens.IssuePurpose(token.KindMFA, account.ID, account.Email, e.config.MFA.ChallengeTTL)
		if err != nil {
			return nil, err
		}
		if err := e.pending.Save(ctx, string(token.KindMFA), jti, account.ID, e.config.MFA.ChallengeTTL); err != nil {
			return nil, err
		}

		e.metrics.Inc(MetricMFAChallengeIssued)
		e.emitAudit(ctx, auditEventMFAChallenge, account.ID, "", true, nil)

		return &LoginResult{RequiresMFA: true, MFAToken: challenge}, nil
	}

	return e.completeLogin(ctx, account)
}

// CompleteMFA redeems an MFA challenge token together with a TOTP code
// and finishes the login it belongs to. A wrong code burns one attempt;
// spending the whole budget destroys the challenge.
func (e *Engine) CompleteMFA(ctx context.Context, mfaToken, code string) (*LoginResult, error) {
	claims, err := e.tokens.ParsePurpose(mfaToken, token.KindMFA)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	// Peek, don't consume: a wrong code must leave the challenge alive
	// until its attempt budget runs out.
	accountID, err := e.pending.Peek(ctx, string(token.KindMFA), claims.ID)
	if err != nil {
		if errors.Is(err, errPurposeNotFound) {
			return nil, ErrMFAInvalid
		}
		return nil, err
	}
	if accountID != claims.Subject {
		return nil, ErrMFAInvalid
	}

	account, err := e.creds.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.MFAEnabled || account.MFASecret == "" {
		return nil, ErrMFANotEnrolled
	}
	if err := statusErr(account.Status); err != nil {
		return nil, err
	}

	valid, err := e.verifyTOTP(code, account.MFASecret)
	if err != nil || !valid {
		exceeded, ferr := e.pending.RecordFailure(ctx, string(token.KindMFA), claims.ID, e.config.MFA.MaxAttempts, e.config.MFA.ChallengeTTL)
		if ferr != nil {
			log.Printf("authcore: mfa attempt accounting failed for account %s: %v", account.ID, ferr)
		}

		e.metrics.Inc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, account.ID, "", false, ErrMFAInvalid)

		if exceeded {
			return nil, ErrMFAAttemptsExceeded
		}
		return nil, ErrMFAInvalid
	}

	if _, err := e.pending.Consume(ctx, string(token.KindMFA), claims.ID); err != nil {
		if errors.Is(err, errPurposeNotFound) {
			return nil, ErrMFAInvalid
		}
		return nil, err
	}

	e.metrics.Inc(MetricMFASuccess)
	e.emitAudit(ctx, auditEventMFASuccess, account.ID, "", true, nil)

	return e.completeLogin(ctx, account)
}

// failLogin records one failed attempt against the submitted email and
// collapses the cause to ErrInvalidCredentials. The lock, if the attempt
// crossed the threshold, applies from the next attempt on.
func (e *Engine) failLogin(ctx context.Context, email, accountID string) error {
	if _, err := e.limiter.RecordFailure(ctx, email); err != nil {
		log.Printf("authcore: recording login failure degraded: %v", err)
	}
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, accountID, "", false, ErrInvalidCredentials)
	return ErrInvalidCredentials
}

// completeLogin runs after every credential and factor check has passed:
// clear the lockout counter and issue the session pair.
func (e *Engine) completeLogin(ctx context.Context, account Account) (*LoginResult, error) {
	if err := e.limiter.Clear(ctx, account.Email); err != nil {
		log.Printf("authcore: clearing lockout counter failed for account %s: %v", account.ID, err)
	}

	pair, sessionID, err := e.issuePair(ctx, account)
	if err != nil {
		return nil, err
	}

	if err := e.creds.UpdateLastLogin(ctx, account.ID, e.clock.Now()); err != nil {
		log.Printf("authcore: updating last login failed for account %s: %v", account.ID, err)
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, account.ID, sessionID, true, nil)

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// maybeUpgradeDigest rehashes the just-verified password when the stored
// digest was produced with weaker parameters. Best effort: the login
// proceeds on the old digest if anything here fails.
func (e *Engine) maybeUpgradeDigest(ctx context.Context, account Account, password string) Account {
	if !e.config.Password.UpgradeOnLogin {
		return account
	}
	upgrader, ok := e.hasher.(hashUpgrader)
	if !ok {
		return account
	}
	outdated, err := upgrader.NeedsUpgrade(account.PasswordDigest)
	if err != nil || !outdated {
		return account
	}

	digest, err := e.hasher.Hash(password)
	if err != nil {
		log.Printf("authcore: digest upgrade rehash failed for account %s: %v", account.ID, err)
		return account
	}
	if err := e.creds.UpdatePasswordDigest(ctx, account.ID, digest); err != nil {
		log.Printf("authcore: digest upgrade store failed for account %s: %v", account.ID, err)
		return account
	}

	account.PasswordDigest = digest
	return account
}
