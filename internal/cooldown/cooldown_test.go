package cooldown

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGuardFiltersWithinWindow(t *testing.T) {
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	guard := NewMemoryGuard(4 * time.Hour)
	guard.now = func() time.Time { return clock }

	passed, err := guard.Filter(context.Background(), []string{"bitcoin", "solana"})
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(passed) != 2 {
		t.Fatalf("expected both coins to pass first, got %v", passed)
	}

	// Same coins inside the window are suppressed; a new coin passes.
	clock = clock.Add(time.Hour)
	passed, err = guard.Filter(context.Background(), []string{"bitcoin", "solana", "dogecoin"})
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(passed) != 1 || passed[0] != "dogecoin" {
		t.Errorf("expected only dogecoin to pass, got %v", passed)
	}
}

func TestMemoryGuardExpiresMarks(t *testing.T) {
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	guard := NewMemoryGuard(4 * time.Hour)
	guard.now = func() time.Time { return clock }

	if _, err := guard.Filter(context.Background(), []string{"bitcoin"}); err != nil {
		t.Fatalf("Filter failed: %v", err)
	}

	clock = clock.Add(4 * time.Hour)
	passed, err := guard.Filter(context.Background(), []string{"bitcoin"})
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(passed) != 1 {
		t.Errorf("expected bitcoin to pass after the window elapsed, got %v", passed)
	}
}

func TestMemoryGuardSeed(t *testing.T) {
	guard := NewMemoryGuard(4 * time.Hour)
	guard.Seed([]string{"bitcoin"})

	passed, err := guard.Filter(context.Background(), []string{"bitcoin", "solana"})
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(passed) != 1 || passed[0] != "solana" {
		t.Errorf("seeded coin must be suppressed, got %v", passed)
	}
}

func TestMemoryGuardEmptyInput(t *testing.T) {
	guard := NewMemoryGuard(4 * time.Hour)
	passed, err := guard.Filter(context.Background(), nil)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(passed) != 0 {
		t.Errorf("expected no coins, got %v", passed)
	}
}
