package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegisterCreatesPendingAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result, err := env.engine.Register(ctx, RegisterInput{
		Email:     "Alice@Example.com",
		Password:  testPassword,
		FirstName: "Alice",
		LastName:  "Liddell",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", result.Email)
	}

	account, err := env.creds.GetByID(ctx, result.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if account.Status != AccountPending {
		t.Fatalf("expected pending status, got %v", account.Status)
	}
	if account.Role != "member" {
		t.Fatalf("expected default role, got %q", account.Role)
	}
	if account.PasswordDigest == testPassword || account.PasswordDigest == "" {
		t.Fatal("password must be stored as a digest")
	}

	if env.notifier.lastVerification("alice@example.com") == "" {
		t.Fatal("expected verification token handed to notifier")
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, RegisterInput{Email: "not-an-email", Password: testPassword}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := env.engine.Register(ctx, RegisterInput{Email: "a@example.com", Password: "weak"}); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, RegisterInput{Email: "alice@example.com", Password: testPassword}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Case differences collapse onto the same account.
	_, err := env.engine.Register(ctx, RegisterInput{Email: "ALICE@example.com", Password: testPassword})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestLoginBeforeVerificationRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, RegisterInput{Email: "alice@example.com", Password: testPassword}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := env.engine.Login(ctx, "alice@example.com", testPassword)
	if !errors.Is(err, ErrAccountPendingVerification) {
		t.Fatalf("expected ErrAccountPendingVerification, got %v", err)
	}
}

func TestVerifyEmailPromotesAndIsSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result, err := env.engine.Register(ctx, RegisterInput{Email: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	verifyToken := env.notifier.lastVerification("alice@example.com")
	if err := env.engine.VerifyEmail(ctx, verifyToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	account, err := env.creds.GetByID(ctx, result.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if account.Status != AccountActive {
		t.Fatalf("expected active status, got %v", account.Status)
	}

	if err := env.engine.VerifyEmail(ctx, verifyToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on second use, got %v", err)
	}

	// And the account logs in now.
	env.login(t, "alice@example.com", testPassword)
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, RegisterInput{Email: "alice@example.com", Password: testPassword}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	env.clock.Advance(25 * time.Hour)

	err := env.engine.VerifyEmail(ctx, env.notifier.lastVerification("alice@example.com"))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyEmailRejectsOtherTokenKinds(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.seedAccount(t, "alice@example.com", testPassword)
	if err := env.engine.RequestReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestReset failed: %v", err)
	}

	// A reset token is not a verification token.
	err := env.engine.VerifyEmail(ctx, env.notifier.lastReset("alice@example.com"))
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}
