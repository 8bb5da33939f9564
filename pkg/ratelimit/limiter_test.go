package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConstantPacerAllow(t *testing.T) {
	p := NewConstantPacer(200 * time.Millisecond)

	// First request is free
	if !p.Allow() {
		t.Error("Expected first request to be allowed")
	}

	// Second request inside the gap is denied
	if p.Allow() {
		t.Error("Expected request inside the gap to be denied")
	}

	// After the gap it passes again
	time.Sleep(250 * time.Millisecond)
	if !p.Allow() {
		t.Error("Expected request after the gap to be allowed")
	}
}

func TestConstantPacerWaitEnforcesGap(t *testing.T) {
	p := NewConstantPacer(150 * time.Millisecond)
	ctx := context.Background()

	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}

	start := time.Now()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("second Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("second Wait returned after %v, expected close to the gap", elapsed)
	}
}

func TestConstantPacerZeroDelay(t *testing.T) {
	p := NewConstantPacer(0)

	for i := 0; i < 10; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
	}
}

func TestConstantPacerWaitCancellation(t *testing.T) {
	p := NewConstantPacer(5 * time.Second)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := p.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait did not return promptly on cancellation")
	}
}

func TestConstantPacerReset(t *testing.T) {
	p := NewConstantPacer(time.Hour)

	if !p.Allow() {
		t.Fatal("Expected first request to be allowed")
	}
	if p.Allow() {
		t.Fatal("Expected second request to be denied")
	}

	p.Reset()
	if !p.Allow() {
		t.Error("Expected request after reset to be allowed")
	}
}

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(5, time.Second)

	// Test initial capacity
	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}

	// Test exhaustion
	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	// Test refill after waiting
	time.Sleep(time.Second + 100*time.Millisecond)
	if !tb.Allow() {
		t.Error("Expected tokens to be refilled after waiting")
	}

	// Test reset
	tb.tokens = 0
	tb.Reset()
	if tb.tokens != tb.capacity {
		t.Error("Expected tokens to be reset to capacity")
	}
}

func TestTokenBucketWaitCancellation(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	if !tb.Allow() {
		t.Fatal("Expected the single token to be available")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := tb.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestForConfig(t *testing.T) {
	if _, ok := ForConfig(500*time.Millisecond, 1).(*ConstantPacer); !ok {
		t.Error("expected a constant pacer for burst 1")
	}
	if _, ok := ForConfig(500*time.Millisecond, 3).(*TokenBucket); !ok {
		t.Error("expected a token bucket for burst 3")
	}
}
