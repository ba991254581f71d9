package networking

import (
	"math"
	"testing"
	"time"
)

func TestFrameBudgetSkipsFramesUntilRefill(t *testing.T) {
	current := time.Unix(0, 0)
	budget := NewFrameBudget(1000, func() time.Time { return current })

	// A full bucket admits one 700 byte frame, not two.
	if !budget.Allow("viewer", 700) {
		t.Fatalf("expected the first frame to pass")
	}
	if budget.Allow("viewer", 700) {
		t.Fatalf("expected the second frame to be skipped")
	}

	current = current.Add(500 * time.Millisecond)
	if !budget.Allow("viewer", 700) {
		t.Fatalf("expected a frame to pass after refilling 500 bytes")
	}

	current = current.Add(500 * time.Millisecond)
	usage, ok := budget.Usage()["viewer"]
	if !ok {
		t.Fatalf("missing usage for viewer")
	}
	if usage.Skipped != 1 {
		t.Fatalf("expected one skipped frame, got %d", usage.Skipped)
	}
	if usage.SentBytes != 1400 {
		t.Fatalf("expected 1400 bytes sent, got %d", usage.SentBytes)
	}
	if math.Abs(usage.BytesPerSecond-1400) > 1e-6 {
		t.Fatalf("unexpected throughput %.3f", usage.BytesPerSecond)
	}
	if math.Abs(usage.Available-600) > 1e-6 {
		t.Fatalf("unexpected available bytes %.3f", usage.Available)
	}

	budget.Forget("viewer")
	if usage := budget.Usage(); len(usage) != 0 {
		t.Fatalf("expected usage cleared after forget, got %+v", usage)
	}
}

func TestFrameBudgetIgnoresClockRewind(t *testing.T) {
	current := time.Unix(100, 0)
	budget := NewFrameBudget(100, func() time.Time { return current })
	if !budget.Allow("viewer", 100) {
		t.Fatalf("expected the first frame to pass")
	}
	current = current.Add(-time.Hour)
	if budget.Allow("viewer", 1) {
		t.Fatalf("a rewound clock must not refill the bucket")
	}
}

func TestFrameBudgetDefaultsAndNil(t *testing.T) {
	budget := NewFrameBudget(0, nil)
	if !budget.Allow("viewer", int(DefaultViewerBytesPerSecond)) {
		t.Fatalf("expected default capacity to admit a full second of bytes")
	}
	var disabled *FrameBudget
	if !disabled.Allow("viewer", 1<<30) {
		t.Fatalf("nil budget should not throttle")
	}
	if disabled.Usage() != nil {
		t.Fatalf("nil budget should report no usage")
	}
}
