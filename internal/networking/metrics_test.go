package networking

import "testing"

func TestDeliveryMetricsTrackAndForget(t *testing.T) {
	metrics := NewDeliveryMetrics()
	metrics.Delivered("viewer-1", 128)
	metrics.Delivered("viewer-1", 64)
	metrics.Delivered("", 999)
	metrics.Dropped(DropThrottled)
	metrics.Dropped(DropThrottled)
	metrics.Dropped(DropSlowClient)

	if bytes := metrics.BytesPerClient(); bytes["viewer-1"] != 192 || len(bytes) != 1 {
		t.Fatalf("unexpected bytes recorded: %+v", bytes)
	}
	if frames := metrics.FramesPerClient(); frames["viewer-1"] != 2 {
		t.Fatalf("unexpected frame counts: %+v", frames)
	}
	counts := metrics.DropCounts()
	if counts[DropThrottled] != 2 || counts[DropSlowClient] != 1 {
		t.Fatalf("unexpected drop counts: %+v", counts)
	}

	metrics.ForgetClient("viewer-1")
	if remaining := metrics.BytesPerClient(); len(remaining) != 0 {
		t.Fatalf("expected client removal, got %+v", remaining)
	}
	if counts := metrics.DropCounts(); counts[DropThrottled] != 2 {
		t.Fatalf("drop counters should survive client removal, got %+v", counts)
	}

	var nilMetrics *DeliveryMetrics
	nilMetrics.Delivered("x", 1)
	if nilMetrics.DropCounts() != nil {
		t.Fatalf("nil metrics should report nothing")
	}
}
