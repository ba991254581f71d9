package viewer

import (
	"sync"
	"time"
)

// GateConfig controls how inbound key updates are paced.
type GateConfig struct {
	// MinInterval is the shortest gap between two applied updates per viewer.
	// Updates inside the gap are held, not discarded.
	MinInterval time.Duration
}

// GateReason says what happened to an update.
type GateReason string

const (
	GateAccepted GateReason = ""
	// GateDeferred means the update is held and applies once the interval
	// has passed, unless a newer one replaces it first.
	GateDeferred GateReason = "deferred"
	GateSequence GateReason = "sequence"
	// GateSuperseded counts held updates replaced by a newer one before they
	// were applied.
	GateSuperseded GateReason = "superseded"
)

type gateState struct {
	lastSequence uint64
	lastApplied  time.Time
	// held is the newest update waiting for the interval to pass.
	held     func()
	stopHeld func() bool
}

// KeyGate orders and paces key updates per viewer. Every update carries the
// full key state, so pacing keeps the newest one instead of dropping it: a
// release that follows a press within the interval still lands. Updates
// without a sequence number skip the ordering check.
type KeyGate struct {
	mu      sync.Mutex
	cfg     GateConfig
	now     func() time.Time
	after   func(time.Duration, func()) func() bool
	clients map[string]*gateState
	drops   map[GateReason]uint64
}

// NewKeyGate constructs a gate. A nil clock uses time.Now.
func NewKeyGate(cfg GateConfig, clock func() time.Time) *KeyGate {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if clock == nil {
		clock = time.Now
	}
	return &KeyGate{
		cfg:     cfg,
		now:     clock,
		after:   func(d time.Duration, f func()) func() bool { return time.AfterFunc(d, f).Stop },
		clients: make(map[string]*gateState),
		drops:   make(map[GateReason]uint64),
	}
}

// Offer runs apply now, holds it until the viewer's interval has passed, or
// rejects it as out of order. apply runs with the gate locked, so updates of
// one viewer are applied in the order they were accepted.
func (g *KeyGate) Offer(clientID string, sequence uint64, apply func()) GateReason {
	if g == nil || clientID == "" {
		apply()
		return GateAccepted
	}
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.clients[clientID]
	if state == nil {
		state = &gateState{}
		g.clients[clientID] = state
	}
	//1.- Ordering first: a late packet must never undo a newer key state.
	if sequence != 0 && state.lastSequence != 0 && sequence <= state.lastSequence {
		g.drops[GateSequence]++
		return GateSequence
	}
	if sequence != 0 {
		state.lastSequence = sequence
	}
	if state.held != nil {
		g.drops[GateSuperseded]++
	}

	//2.- Outside the interval the update applies at once and cancels any held one.
	wait := g.cfg.MinInterval - now.Sub(state.lastApplied)
	if g.cfg.MinInterval == 0 || state.lastApplied.IsZero() || wait <= 0 {
		if state.stopHeld != nil {
			state.stopHeld()
		}
		state.held, state.stopHeld = nil, nil
		state.lastApplied = now
		apply()
		return GateAccepted
	}

	//3.- Inside it, keep only the newest update and arm one timer to apply it.
	state.held = apply
	if state.stopHeld == nil {
		state.stopHeld = g.after(wait, func() { g.release(clientID, state) })
	}
	return GateDeferred
}

// release applies the held update of state if the viewer is still tracked.
func (g *KeyGate) release(clientID string, state *gateState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.clients[clientID] != state || state.held == nil {
		return
	}
	apply := state.held
	state.held, state.stopHeld = nil, nil
	state.lastApplied = g.now()
	apply()
}

// Forget clears state for a disconnected viewer. A held update is discarded
// and never applied afterwards.
func (g *KeyGate) Forget(clientID string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if state := g.clients[clientID]; state != nil && state.stopHeld != nil {
		state.stopHeld()
	}
	delete(g.clients, clientID)
}

// Drops returns cumulative rejected or superseded updates per reason.
func (g *KeyGate) Drops() map[GateReason]uint64 {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[GateReason]uint64, len(g.drops))
	for reason, count := range g.drops {
		out[reason] = count
	}
	return out
}
