package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(5, 200*time.Millisecond)

	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}

	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	// one interval later exactly one token is back
	time.Sleep(250 * time.Millisecond)
	if !tb.Allow() {
		t.Error("Expected a token to be refilled after one interval")
	}
	if tb.Allow() {
		t.Error("Expected only one token after one interval")
	}

	tb.Reset()
	if tb.tokens != tb.capacity {
		t.Error("Expected tokens to be reset to capacity")
	}
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(1, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("Expected Wait to pace requests, took only %v", elapsed)
	}
}

func TestSlidingWindow(t *testing.T) {
	sw := NewSlidingWindow(3, 300*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !sw.Allow() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	if sw.Allow() {
		t.Error("Expected request to be denied when limit is reached")
	}

	time.Sleep(350 * time.Millisecond)
	if !sw.Allow() {
		t.Error("Expected request to be allowed after window slides")
	}

	sw.Reset()
	if len(sw.requests) != 0 {
		t.Error("Expected requests to be cleared after reset")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	limiters := map[string]Limiter{
		"token bucket":   NewTokenBucket(1, time.Hour),
		"sliding window": NewSlidingWindow(1, time.Hour),
	}

	for name, l := range limiters {
		t.Run(name, func(t *testing.T) {
			if !l.Allow() {
				t.Fatal("first request should pass")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Expected deadline exceeded, got %v", err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(0, 10).(Unlimited); !ok {
		t.Error("Expected zero rate to disable limiting")
	}
	if _, ok := New(60, 10).(*TokenBucket); !ok {
		t.Error("Expected a token bucket when burst is set")
	}
	if _, ok := New(60, 0).(*SlidingWindow); !ok {
		t.Error("Expected a sliding window without burst")
	}
}
