package simulation

import "sync"

// FlightStats summarises finished flights, counted in ticks from launch to the
// terminal tick inclusive.
type FlightStats struct {
	Flights      uint64
	MeanTicks    float64
	LongestTicks uint64
	// CurrentTicks is how long the flight in progress has lasted.
	CurrentTicks uint64
}

// FlightTracker is an Observer that measures how long each flight lasts.
type FlightTracker struct {
	mu      sync.Mutex
	current uint64
	flights uint64
	total   uint64
	longest uint64
}

// NewFlightTracker returns a tracker with no flights recorded.
func NewFlightTracker() *FlightTracker { return &FlightTracker{} }

// ObserveTick implements Observer.
func (f *FlightTracker) ObserveTick(_ uint64, outcome Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current++
	if outcome.Kind == Traveling {
		return
	}
	f.flights++
	f.total += f.current
	f.longest = max(f.longest, f.current)
	f.current = 0
}

// Snapshot reports the flights finished so far.
func (f *FlightTracker) Snapshot() FlightStats {
	if f == nil {
		return FlightStats{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := FlightStats{Flights: f.flights, LongestTicks: f.longest, CurrentTicks: f.current}
	if f.flights > 0 {
		stats.MeanTicks = float64(f.total) / float64(f.flights)
	}
	return stats
}
