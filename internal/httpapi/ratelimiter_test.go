package httpapi

import (
	"testing"
	"time"
)

func TestDumpLimiterRefillsAcrossWindow(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewDumpLimiter(time.Minute, 2, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow(); !ok {
			t.Fatalf("dump %d should be granted", i+1)
		}
	}
	ok, wait := limiter.Allow()
	if ok {
		t.Fatal("third dump inside the window should be refused")
	}
	if wait != 30*time.Second {
		t.Fatalf("expected to wait 30s for the next dump, got %v", wait)
	}

	now = now.Add(10 * time.Second)
	if ok, wait := limiter.Allow(); ok || wait != 20*time.Second {
		t.Fatalf("expected refusal with 20s wait, got ok=%v wait=%v", ok, wait)
	}

	now = now.Add(21 * time.Second)
	if ok, _ := limiter.Allow(); !ok {
		t.Fatal("dump should be granted once a token has refilled")
	}
	if ok, _ := limiter.Allow(); ok {
		t.Fatal("only one token refills in half a window")
	}
}

func TestDumpLimiterDisabled(t *testing.T) {
	if ok, wait := NewDumpLimiter(0, 0, nil).Allow(); !ok || wait != 0 {
		t.Fatal("limiter with zero configuration should allow")
	}
	var nilLimiter *DumpLimiter
	if ok, _ := nilLimiter.Allow(); !ok {
		t.Fatal("nil limiter should allow")
	}
}
