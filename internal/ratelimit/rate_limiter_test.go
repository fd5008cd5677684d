package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitTurnSpacesCalls(t *testing.T) {
	r := NewRateLimiter(20)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := r.WaitTurn(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("three calls at 20rps took %s", elapsed)
	}
}

func TestWaitTurnHonorsCancel(t *testing.T) {
	r := NewRateLimiter(1)
	if err := r.WaitTurn(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.WaitTurn(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}
