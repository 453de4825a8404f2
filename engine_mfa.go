package authcore

import (
	"context"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// EnableMFA enrolls the account in TOTP and returns the secret and
// otpauth:// provisioning URI. This is the only time the secret leaves
// the store; subsequent logins require CompleteMFA.
func (e *Engine) EnableMFA(ctx context.Context, accountID string) (*MFAProvision, error) {
	account, err := e.creds.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := statusErr(account.Status); err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.config.MFA.Issuer,
		AccountName: account.Email,
	})
	if err != nil {
		return nil, err
	}

	if err := e.creds.UpdateMFA(ctx, account.ID, true, key.Secret()); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventMFAEnabled, account.ID, "", true, nil)

	return &MFAProvision{Secret: key.Secret(), URI: key.URL()}, nil
}

// DisableMFA turns TOTP off for the account. The caller must prove it
// still holds the factor by presenting a current code.
func (e *Engine) DisableMFA(ctx context.Context, accountID, code string) error {
	account, err := e.creds.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.MFAEnabled || account.MFASecret == "" {
		return ErrMFANotEnrolled
	}

	valid, err := e.verifyTOTP(code, account.MFASecret)
	if err != nil || !valid {
		e.metrics.Inc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, account.ID, "", false, ErrMFAInvalid)
		return ErrMFAInvalid
	}

	if err := e.creds.UpdateMFA(ctx, account.ID, false, ""); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventMFADisabled, account.ID, "", true, nil)

	return nil
}

// verifyTOTP checks a six-digit code against the secret with one period
// of clock skew in either direction.
func (e *Engine) verifyTOTP(code, secret string) (bool, error) {
	return totp.ValidateCustom(code, secret, e.clock.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}
