package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"unicode"

	"github.com/tmkelly/authcore/token"
)

const minPasswordLength = 8

// normalizeEmail lower-cases and trims the address so lookups, lockout
// keys, and the unique constraint all agree on one form.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email required", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: malformed email address", ErrValidation)
	}
	return nil
}

// validatePassword enforces the strength policy: minimum length plus at
// least one upper, lower, digit, and symbol.
func validatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrPasswordPolicy, minPasswordLength)
	}

	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return fmt.Errorf("%w: password needs upper, lower, digit, and symbol characters", ErrPasswordPolicy)
	}
	return nil
}

// Register creates a pending account and issues an email verification
// token. No session exists until VerifyEmail promotes the account and a
// login completes.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	email := normalizeEmail(input.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	digest, err := e.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	account, err := e.creds.Create(ctx, Account{
		Email:          email,
		PasswordDigest: digest,
		FirstName:      strings.TrimSpace(input.FirstName),
		LastName:       strings.TrimSpace(input.LastName),
		Role:           e.config.Register.DefaultRole,
		Status:         AccountPending,
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metrics.Inc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegister, "", "", false, ErrAccountExists)
		}
		return nil, err
	}

	verifyToken, jti, err := e.tokens.IssuePurpose(token.KindEmailVerify, account.ID, account.Email, e.config.Register.VerificationTTL)
	if err != nil {
		return nil, err
	}
	if err := e.pending.Save(ctx, string(token.KindEmailVerify), jti, account.ID, e.config.Register.VerificationTTL); err != nil {
		return nil, err
	}

	// Delivery is best effort. The account exists either way and
	// verification can be re-requested.
	if e.notifier != nil {
		if err := e.notifier.SendVerification(ctx, account.Email, verifyToken); err != nil {
			log.Printf("authcore: verification delivery failed for account %s: %v", account.ID, err)
		}
	}

	e.metrics.Inc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, account.ID, "", true, nil)

	return &RegisterResult{ID: account.ID, Email: account.Email}, nil
}

// VerifyEmail redeems a verification token and promotes the pending
// account to active. The token is single use; re-presenting it after a
// successful verification fails, but verifying an already active account
// through a fresh token is a no-op.
func (e *Engine) VerifyEmail(ctx context.Context, verifyToken string) error {
	claims, err := e.tokens.ParsePurpose(verifyToken, token.KindEmailVerify)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}

	accountID, err := e.pending.Consume(ctx, string(token.KindEmailVerify), claims.ID)
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
	switch account.Status {
	case AccountActive:
		return nil
	case AccountPending:
	default:
		return ErrAccountNotActive
	}

	if err := e.creds.UpdateStatus(ctx, account.ID, AccountActive); err != nil {
		return err
	}

	e.metrics.Inc(MetricEmailVerified)
	e.emitAudit(ctx, auditEventEmailVerified, account.ID, "", true, nil)

	return nil
}
