package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DumpLimiter caps replay dumps to burst per window. Spent dumps come back one
// at a time, evenly spread over the window.
type DumpLimiter struct {
	clock func() time.Time

	mu     sync.Mutex
	bucket *rate.Limiter
}

// NewDumpLimiter allows burst dumps per window. A non-positive window or burst
// disables the limit.
func NewDumpLimiter(window time.Duration, burst int, clock func() time.Time) *DumpLimiter {
	if clock == nil {
		clock = time.Now
	}
	l := &DumpLimiter{clock: clock}
	if window > 0 && burst > 0 {
		l.bucket = rate.NewLimiter(rate.Every(window/time.Duration(burst)), burst)
	}
	return l
}

// Allow grants a dump or reports how long until the next one would be granted.
func (l *DumpLimiter) Allow() (bool, time.Duration) {
	if l == nil || l.bucket == nil {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	reservation := l.bucket.ReserveN(now, 1)
	if wait := reservation.DelayFrom(now); wait > 0 {
		//1.- A refused dump must not hold on to the token it would have waited for.
		reservation.CancelAt(now)
		return false, max(wait.Round(time.Millisecond), time.Millisecond)
	}
	return true, 0
}
