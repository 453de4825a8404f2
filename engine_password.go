package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/tmkelly/authcore/token"
)

// ChangePassword rotates an authenticated account's password and revokes
// every outstanding session, forcing all devices to log in again. If the
// revocation fails after the credential update succeeded, the returned
// error joins ErrSessionInvalidationFailed so the caller knows sessions
// may still be live against the old password.
func (e *Engine) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := e.creds.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(currentPassword, account.PasswordDigest)
	if err != nil {
		return err
	}
	if !ok {
		e.emitAudit(ctx, auditEventPasswordChange, accountID, "", false, ErrInvalidCredentials)
		return ErrInvalidCredentials
	}

	if err := e.applyNewPassword(ctx, account, newPassword, currentPassword); err != nil {
		return err
	}

	e.metrics.Inc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChange, accountID, "", true, nil)

	return nil
}

// RequestReset issues a password reset token for the address, delivered
// through the notifier. It always returns nil for well-formed input so
// callers cannot probe which addresses have accounts.
func (e *Engine) RequestReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	account, err := e.creds.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return err
	}
	// Suspended and banned accounts get no reset path either, silently.
	if account.Status != AccountActive {
		return nil
	}

	resetToken, jti, err := e.tokens.IssuePurpose(token.KindPasswordReset, account.ID, account.Email, e.config.Reset.TTL)
	if err != nil {
		return err
	}
	if err := e.pending.Save(ctx, string(token.KindPasswordReset), jti, account.ID, e.config.Reset.TTL); err != nil {
		return err
	}

	if e.notifier != nil {
		if err := e.notifier.SendReset(ctx, account.Email, resetToken); err != nil {
			log.Printf("authcore: reset delivery failed for account %s: %v", account.ID, err)
		}
	}

	e.metrics.Inc(MetricPasswordResetRequested)
	e.emitAudit(ctx, auditEventResetRequested, account.ID, "", true, nil)

	return nil
}

// ResetPassword redeems a reset token and installs the new password. The
// token is single use, and every outstanding session is revoked on
// success.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	claims, err := e.tokens.ParsePurpose(resetToken, token.KindPasswordReset)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}

	// Consume before validating the new password would allow burning a
	// token with a weak password, so the policy runs first but the pending
	// record is still consumed before any state changes.
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	accountID, err := e.pending.Consume(ctx, string(token.KindPasswordReset), claims.ID)
	if err != nil {
		if errors.Is(err, errPurposeNotFound) {
			return ErrTokenInvalid
		}
		return err
	}
	if accountID != claims.Subject {
		return ErrTokenInvalid
	}

	account, err := e.creds.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Status != AccountActive {
		return ErrAccountNotActive
	}

	if err := e.applyNewPassword(ctx, account, newPassword, ""); err != nil {
		return err
	}

	e.metrics.Inc(MetricPasswordReset)
	e.emitAudit(ctx, auditEventPasswordReset, account.ID, "", true, nil)

	return nil
}

// applyNewPassword enforces policy and reuse rules, writes the new
// digest, revokes all sessions, and clears the lockout counter. The
// currentPassword argument is only used for the cheap plaintext reuse
// check; pass "" when it is not in hand.
func (e *Engine) applyNewPassword(ctx context.Context, account Account, newPassword, currentPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if currentPassword != "" && newPassword == currentPassword {
		return ErrPasswordReuse
	}

	// The plaintext comparison above misses the reset path, so always
	// check against the stored digest too.
	same, err := e.hasher.Verify(newPassword, account.PasswordDigest)
	if err != nil {
		return err
	}
	if same {
		return ErrPasswordReuse
	}

	digest, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.creds.UpdatePasswordDigest(ctx, account.ID, digest); err != nil {
		return err
	}

	// The credential changed; every outstanding refresh chain must die.
	// A failure here leaves valid sessions against a dead password, which
	// the caller must be told about loudly.
	if err := e.ledger.RevokeAll(ctx, account.ID); err != nil {
		return errors.Join(ErrSessionInvalidationFailed, err)
	}

	if err := e.limiter.Clear(ctx, account.Email); err != nil {
		log.Printf("authcore: clearing lockout counter failed for account %s: %v", account.ID, err)
	}

	return nil
}
