package events

import (
	"context"
	"runtime"
	"testing"
	"time"

	"raygrid/internal/frame"
)

func frameWith(tick uint64, outcome string) frame.Frame {
	return frame.Frame{Type: frame.TypeFrame, Tick: tick, Outcome: outcome, ObstacleIndex: -1}
}

func TestStreamDeliversInOrder(t *testing.T) {
	stream := NewStream(Config{Retain: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsubscribe, err := stream.Subscribe(ctx, 8)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsubscribe()

	stream.Publish(frameWith(1, "traveling"))
	stream.Publish(frameWith(2, "hit_boundary"))

	for expected := uint64(1); expected <= 2; expected++ {
		select {
		case env := <-ch:
			if env.Sequence != expected || env.Frame.Tick != expected {
				t.Fatalf("expected sequence %d, got %+v", expected, env)
			}
			if env.Terminal != (expected == 2) {
				t.Fatalf("unexpected terminal flag on %+v", env)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for frame %d", expected)
		}
	}
}

func TestStreamReplaysRetainedTerminalFrames(t *testing.T) {
	stream := NewStream(Config{Retain: 2})
	stream.Publish(frameWith(1, "hit_obstacle"))
	stream.Publish(frameWith(2, "traveling"))
	stream.Publish(frameWith(3, "hit_boundary"))
	stream.Publish(frameWith(4, "hit_obstacle"))

	ch, cancel, err := stream.Subscribe(context.Background(), 1)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	var ticks []uint64
	for i := 0; i < 2; i++ {
		ticks = append(ticks, (<-ch).Frame.Tick)
	}
	if ticks[0] != 3 || ticks[1] != 4 {
		t.Fatalf("expected the two newest terminal frames, got %v", ticks)
	}
}

func TestStreamSkipsFullSubscribersAndClosesOnCancel(t *testing.T) {
	stream := NewStream(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	ch, _, err := stream.Subscribe(ctx, 1)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	stream.Publish(frameWith(1, "traveling"))
	stream.Publish(frameWith(2, "traveling"))
	if stream.Missed() != 1 {
		t.Fatalf("expected one missed delivery, got %d", stream.Missed())
	}

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if stream.Subscribers() != 0 {
					t.Fatalf("expected subscriber removal")
				}
				return
			}
		case <-deadline:
			t.Fatalf("channel was not closed after cancellation")
		}
	}
}

func TestStreamCancelReleasesContextWatch(t *testing.T) {
	stream := NewStream(Config{})
	// ctx outlives every subscription, so nothing but cancel can end them.
	ctx, stopCtx := context.WithCancel(context.Background())
	defer stopCtx()

	baseline := runtime.NumGoroutine()
	for i := 0; i < 64; i++ {
		_, cancel, err := stream.Subscribe(ctx, 1)
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		cancel()
		cancel()
	}
	if stream.Subscribers() != 0 {
		t.Fatalf("expected every subscription to be removed, got %d", stream.Subscribers())
	}

	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > baseline+2 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines grew from %d to %d after cancelled subscriptions", baseline, runtime.NumGoroutine())
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Ending ctx afterwards must not touch the removed subscriptions.
	stopCtx()
	stream.Publish(frameWith(1, "traveling"))
	if stream.Missed() != 0 {
		t.Fatalf("expected no deliveries to cancelled subscribers, got %d misses", stream.Missed())
	}
}
