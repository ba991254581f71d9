package viewer

import (
	"testing"
	"time"
)

// manualTimers stands in for time.AfterFunc so tests decide when held
// updates fire.
type manualTimers struct {
	pending []func()
	delays  []time.Duration
}

func (m *manualTimers) after(d time.Duration, f func()) func() bool {
	idx := len(m.pending)
	m.pending = append(m.pending, f)
	m.delays = append(m.delays, d)
	return func() bool {
		stopped := m.pending[idx] != nil
		m.pending[idx] = nil
		return stopped
	}
}

func (m *manualTimers) fireAll() {
	for i, f := range m.pending {
		if f != nil {
			m.pending[i] = nil
			f()
		}
	}
}

func TestKeyGateRejectsReorderedUpdates(t *testing.T) {
	gate := NewKeyGate(GateConfig{}, nil)
	applied := 0
	apply := func() { applied++ }

	if got := gate.Offer("viewer-1", 5, apply); got != GateAccepted {
		t.Fatalf("first update rejected: %q", got)
	}
	if got := gate.Offer("viewer-1", 4, apply); got != GateSequence {
		t.Fatalf("expected sequence rejection, got %q", got)
	}
	if got := gate.Offer("viewer-1", 5, apply); got != GateSequence {
		t.Fatalf("duplicate should be rejected, got %q", got)
	}
	if got := gate.Offer("viewer-2", 1, apply); got != GateAccepted {
		t.Fatalf("viewers are tracked independently, got %q", got)
	}
	if got := gate.Offer("viewer-1", 0, apply); got != GateAccepted {
		t.Fatalf("unsequenced update should pass, got %q", got)
	}
	gate.Forget("viewer-1")
	if got := gate.Offer("viewer-1", 1, apply); got != GateAccepted {
		t.Fatalf("forgotten viewer should start fresh, got %q", got)
	}
	if applied != 4 {
		t.Fatalf("expected 4 applied updates, got %d", applied)
	}
	if drops := gate.Drops(); drops[GateSequence] != 2 {
		t.Fatalf("unexpected drop counts %+v", drops)
	}
}

func TestKeyGateHoldsNewestUpdateInsideInterval(t *testing.T) {
	current := time.Unix(100, 0)
	timers := &manualTimers{}
	gate := NewKeyGate(GateConfig{MinInterval: 10 * time.Millisecond}, func() time.Time { return current })
	gate.after = timers.after

	var latched string
	set := func(state string) func() { return func() { latched = state } }

	if got := gate.Offer("viewer", 1, set("press")); got != GateAccepted || latched != "press" {
		t.Fatalf("first update should apply at once, got %q latched=%q", got, latched)
	}
	current = current.Add(2 * time.Millisecond)
	if got := gate.Offer("viewer", 2, set("release")); got != GateDeferred {
		t.Fatalf("expected the release to be held, got %q", got)
	}
	current = current.Add(1 * time.Millisecond)
	if got := gate.Offer("viewer", 3, set("press-again")); got != GateDeferred {
		t.Fatalf("expected the second update to be held, got %q", got)
	}
	if len(timers.pending) != 1 || timers.delays[0] != 8*time.Millisecond {
		t.Fatalf("expected one timer for the rest of the interval, got %v", timers.delays)
	}
	if latched != "press" {
		t.Fatalf("held updates must wait for the interval, latched=%q", latched)
	}

	current = current.Add(7 * time.Millisecond)
	timers.fireAll()
	if latched != "press-again" {
		t.Fatalf("expected the newest held update to apply, latched=%q", latched)
	}
	if drops := gate.Drops(); drops[GateSuperseded] != 1 || drops[GateSequence] != 0 {
		t.Fatalf("unexpected drop counts %+v", drops)
	}

	// Nothing is held any more, so a late timer is harmless.
	timers.fireAll()
	if latched != "press-again" {
		t.Fatalf("latched state changed without an update: %q", latched)
	}
}

func TestKeyGateAppliesAfterIntervalAndCancelsHeld(t *testing.T) {
	current := time.Unix(100, 0)
	timers := &manualTimers{}
	gate := NewKeyGate(GateConfig{MinInterval: 10 * time.Millisecond}, func() time.Time { return current })
	gate.after = timers.after

	var latched string
	set := func(state string) func() { return func() { latched = state } }

	gate.Offer("viewer", 1, set("press"))
	current = current.Add(5 * time.Millisecond)
	gate.Offer("viewer", 2, set("held"))

	// The timer has not run yet, but the interval is over: the newer update
	// applies directly and the held one is dropped.
	current = current.Add(10 * time.Millisecond)
	if got := gate.Offer("viewer", 3, set("release")); got != GateAccepted || latched != "release" {
		t.Fatalf("expected immediate apply, got %q latched=%q", got, latched)
	}
	timers.fireAll()
	if latched != "release" {
		t.Fatalf("a cancelled held update was applied: %q", latched)
	}
}

func TestKeyGateForgetDiscardsHeldUpdate(t *testing.T) {
	current := time.Unix(100, 0)
	timers := &manualTimers{}
	gate := NewKeyGate(GateConfig{MinInterval: 10 * time.Millisecond}, func() time.Time { return current })
	gate.after = timers.after

	applied := 0
	gate.Offer("viewer", 1, func() { applied++ })
	gate.Offer("viewer", 2, func() { applied++ })
	release := timers.pending[0]
	gate.Forget("viewer")
	// Even a timer that fired before it could be stopped must not apply.
	release()
	if applied != 1 {
		t.Fatalf("held update applied after forget, applied=%d", applied)
	}
}

func TestNilKeyGateAppliesEverything(t *testing.T) {
	var gate *KeyGate
	applied := false
	if got := gate.Offer("viewer", 1, func() { applied = true }); got != GateAccepted || !applied {
		t.Fatalf("nil gate should apply at once, got %q", got)
	}
}
