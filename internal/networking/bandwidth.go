package networking

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultViewerBytesPerSecond leaves headroom for a 60 Hz JSON frame stream
// (roughly 700 bytes per frame) to a single viewer.
const DefaultViewerBytesPerSecond = 64 * 1024.0

// ViewerUsage is the budget state of one viewer.
type ViewerUsage struct {
	Viewer         string
	Available      float64
	BytesPerSecond float64
	SentBytes      int64
	Skipped        int64
	Since          time.Time
}

type viewerAllowance struct {
	bucket  *rate.Limiter
	since   time.Time
	sent    int64
	skipped int64
}

// FrameBudget meters outbound frame bytes per viewer with a token bucket sized
// to one second of traffic. A viewer that runs dry skips frames until the bucket
// refills; the next frame it gets is the newest, so skipping never shows stale
// state. A nil budget admits everything.
type FrameBudget struct {
	rate  float64
	clock func() time.Time

	mu      sync.Mutex
	viewers map[string]*viewerAllowance
}

// NewFrameBudget meters each viewer to bytesPerSecond.
func NewFrameBudget(bytesPerSecond float64, clock func() time.Time) *FrameBudget {
	if bytesPerSecond <= 0 {
		bytesPerSecond = DefaultViewerBytesPerSecond
	}
	if clock == nil {
		clock = time.Now
	}
	return &FrameBudget{rate: bytesPerSecond, clock: clock, viewers: make(map[string]*viewerAllowance)}
}

// Allow charges a frame of size bytes to the viewer and reports whether it may
// be sent.
func (b *FrameBudget) Allow(viewer string, size int) bool {
	if b == nil || viewer == "" || size <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	a, ok := b.viewers[viewer]
	if !ok {
		//1.- A fresh bucket is full, so a new viewer's first frames go out at once.
		a = &viewerAllowance{bucket: rate.NewLimiter(rate.Limit(b.rate), int(b.rate)), since: now}
		b.viewers[viewer] = a
	}
	if a.bucket.AllowN(now, size) {
		a.sent += int64(size)
		return true
	}
	a.skipped++
	return false
}

// Forget drops a disconnected viewer.
func (b *FrameBudget) Forget(viewer string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	delete(b.viewers, viewer)
	b.mu.Unlock()
}

// Usage reports every metered viewer as of the current time.
func (b *FrameBudget) Usage() map[string]ViewerUsage {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	out := make(map[string]ViewerUsage, len(b.viewers))
	for viewer, a := range b.viewers {
		usage := ViewerUsage{
			Viewer:    viewer,
			Available: a.bucket.TokensAt(now),
			SentBytes: a.sent,
			Skipped:   a.skipped,
			Since:     a.since,
		}
		if observed := now.Sub(a.since).Seconds(); observed > 0 {
			usage.BytesPerSecond = float64(a.sent) / observed
		}
		out[viewer] = usage
	}
	return out
}
