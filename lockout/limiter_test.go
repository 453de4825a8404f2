package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, cfg), mr
}

func TestLockAfterThreshold(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		Threshold:    3,
		Window:       15 * time.Minute,
		LockDuration: 30 * time.Minute,
	})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		count, err := limiter.RecordFailure(ctx, "alice@example.com")
		if err != nil {
			t.Fatalf("RecordFailure %d failed: %v", i, err)
		}
		if count != int64(i) {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}

	locked, err := limiter.IsLocked(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if locked {
		t.Fatal("locked before threshold")
	}

	if _, err := limiter.RecordFailure(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	locked, err = limiter.IsLocked(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if !locked {
		t.Fatal("expected hard lock after threshold")
	}
}

func TestLockOutlivesCounterWindow(t *testing.T) {
	limiter, mr := newTestLimiter(t, Config{
		Threshold:    2,
		Window:       time.Minute,
		LockDuration: time.Hour,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := limiter.RecordFailure(ctx, "bob@example.com"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	// The counter window closes; the lock must still hold.
	mr.FastForward(2 * time.Minute)

	if n, err := limiter.Attempts(ctx, "bob@example.com"); err != nil || n != 0 {
		t.Fatalf("expected counter gone, got %d, %v", n, err)
	}
	locked, err := limiter.IsLocked(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if !locked {
		t.Fatal("lock must outlive the counter window")
	}

	// And the lock itself expires on its own schedule.
	mr.FastForward(time.Hour)
	locked, err = limiter.IsLocked(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if locked {
		t.Fatal("lock should have expired")
	}
}

func TestWindowArmsOnlyOnFirstFailure(t *testing.T) {
	limiter, mr := newTestLimiter(t, Config{
		Threshold:    10,
		Window:       time.Minute,
		LockDuration: time.Hour,
	})
	ctx := context.Background()

	if _, err := limiter.RecordFailure(ctx, "carol@example.com"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	mr.FastForward(45 * time.Second)

	// A later failure must not re-arm the window.
	if _, err := limiter.RecordFailure(ctx, "carol@example.com"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	mr.FastForward(30 * time.Second)

	n, err := limiter.Attempts(ctx, "carol@example.com")
	if err != nil {
		t.Fatalf("Attempts failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("window should have closed at its original deadline, counter is %d", n)
	}
}

func TestClearResetsCounterAndLock(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		Threshold:    1,
		Window:       time.Minute,
		LockDuration: time.Hour,
	})
	ctx := context.Background()

	if _, err := limiter.RecordFailure(ctx, "dave@example.com"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if locked, _ := limiter.IsLocked(ctx, "dave@example.com"); !locked {
		t.Fatal("expected lock")
	}

	if err := limiter.Clear(ctx, "dave@example.com"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if locked, _ := limiter.IsLocked(ctx, "dave@example.com"); locked {
		t.Fatal("expected lock cleared")
	}
	if n, _ := limiter.Attempts(ctx, "dave@example.com"); n != 0 {
		t.Fatalf("expected counter cleared, got %d", n)
	}
}

func TestIsLockedFailsClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := New(client, Config{Threshold: 3, Window: time.Minute, LockDuration: time.Hour})

	mr.Close()

	locked, err := limiter.IsLocked(context.Background(), "eve@example.com")
	if err == nil {
		t.Fatal("expected error from dead store")
	}
	if !locked {
		t.Fatal("store failure must report locked")
	}
}

func TestKeysAreNamespaced(t *testing.T) {
	limiter, mr := newTestLimiter(t, Config{
		Threshold:    5,
		Window:       time.Minute,
		LockDuration: time.Hour,
		Prefix:       "authx",
	})

	if _, err := limiter.RecordFailure(context.Background(), "frank@example.com"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !mr.Exists("authx:fail:frank@example.com") {
		t.Fatal("expected prefixed counter key")
	}
}
