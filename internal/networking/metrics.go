// Package networking holds the per-viewer delivery accounting shared by the
// WebSocket hub and the operational endpoints.
package networking

import "sync"

// DropReason explains why a frame never reached a viewer.
type DropReason string

const (
	// DropThrottled means the viewer's bandwidth budget was exhausted.
	DropThrottled DropReason = "throttled"
	// DropSlowClient means the send queue was full and the viewer was disconnected.
	DropSlowClient DropReason = "slow_client"
)

// DeliveryMetrics tracks bytes delivered per viewer and frames dropped by reason.
type DeliveryMetrics struct {
	mu     sync.RWMutex
	bytes  map[string]int64
	frames map[string]int64
	drops  map[DropReason]int64
}

// NewDeliveryMetrics constructs an empty tracker.
func NewDeliveryMetrics() *DeliveryMetrics {
	return &DeliveryMetrics{
		bytes:  make(map[string]int64),
		frames: make(map[string]int64),
		drops:  make(map[DropReason]int64),
	}
}

// Delivered records a payload queued for a viewer.
func (m *DeliveryMetrics) Delivered(clientID string, payloadBytes int) {
	if m == nil || clientID == "" {
		return
	}
	size := int64(payloadBytes)
	if size < 0 {
		size = 0
	}
	m.mu.Lock()
	m.bytes[clientID] += size
	m.frames[clientID]++
	m.mu.Unlock()
}

// Dropped counts a frame that was not delivered.
func (m *DeliveryMetrics) Dropped(reason DropReason) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.drops[reason]++
	m.mu.Unlock()
}

// ForgetClient removes the per-viewer gauges for a disconnected viewer. Drop
// counters are cumulative and survive.
func (m *DeliveryMetrics) ForgetClient(clientID string) {
	if m == nil || clientID == "" {
		return
	}
	m.mu.Lock()
	delete(m.bytes, clientID)
	delete(m.frames, clientID)
	m.mu.Unlock()
}

// BytesPerClient returns a copy of the bytes delivered to each connected viewer.
func (m *DeliveryMetrics) BytesPerClient() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.bytes) == 0 {
		return nil
	}
	out := make(map[string]int64, len(m.bytes))
	for clientID, size := range m.bytes {
		out[clientID] = size
	}
	return out
}

// FramesPerClient returns a copy of the frame counts per connected viewer.
func (m *DeliveryMetrics) FramesPerClient() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.frames) == 0 {
		return nil
	}
	out := make(map[string]int64, len(m.frames))
	for clientID, count := range m.frames {
		out[clientID] = count
	}
	return out
}

// DropCounts returns the cumulative drops per reason.
func (m *DeliveryMetrics) DropCounts() map[DropReason]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.drops) == 0 {
		return nil
	}
	out := make(map[DropReason]int64, len(m.drops))
	for reason, count := range m.drops {
		out[reason] = count
	}
	return out
}
