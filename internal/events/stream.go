// Package events fans simulation frames out to in-process consumers such as
// the gRPC stream, keeping a short history of terminal outcomes for late joiners.
package events

import (
	"context"
	"errors"
	"sync"

	"raygrid/internal/frame"
	"raygrid/internal/simulation"
)

// Envelope carries a frame together with its publish sequence.
type Envelope struct {
	Sequence uint64
	Terminal bool
	Frame    frame.Frame
}

// Config controls the history kept for new subscribers.
type Config struct {
	// Retain is how many terminal outcomes are replayed to a new subscriber.
	Retain int
}

const defaultRetention = 32

// Stream delivers every published frame to every active subscriber. Delivery
// is best effort: a subscriber whose buffer is full misses that frame and the
// publisher never blocks.
type Stream struct {
	mu          sync.Mutex
	nextSeq     uint64
	retention   int
	history     []Envelope
	subscribers map[uint64]chan Envelope
	nextSubID   uint64
	missed      uint64
}

// NewStream constructs a stream using the provided configuration.
func NewStream(cfg Config) *Stream {
	retention := cfg.Retain
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Stream{retention: retention, subscribers: make(map[uint64]chan Envelope)}
}

// Subscribe registers a consumer. Retained terminal outcomes are queued first,
// oldest first, then live frames follow. The returned cancel func is
// idempotent and also runs when ctx ends; the channel is closed afterwards.
func (s *Stream) Subscribe(ctx context.Context, buffer int) (<-chan Envelope, func(), error) {
	if s == nil {
		return nil, func() {}, errors.New("nil stream")
	}
	if buffer <= 0 {
		buffer = 32
	}

	s.mu.Lock()
	//1.- Size the channel so the whole history fits ahead of live traffic.
	ch := make(chan Envelope, buffer+len(s.history))
	for _, env := range s.history {
		ch <- env
	}
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}
	if ctx == nil {
		return ch, unsubscribe, nil
	}
	//2.- Tie the subscription to ctx without parking a goroutine on it; an
	// explicit cancel detaches the hook.
	stop := context.AfterFunc(ctx, unsubscribe)
	return ch, func() {
		stop()
		unsubscribe()
	}, nil
}

// Publish stamps the frame with the next sequence and offers it to every subscriber.
func (s *Stream) Publish(f frame.Frame) uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	env := Envelope{Sequence: s.nextSeq, Terminal: f.Outcome != simulation.Traveling.String(), Frame: f}
	if env.Terminal {
		s.history = append(s.history, env)
		if overflow := len(s.history) - s.retention; overflow > 0 {
			s.history = append([]Envelope(nil), s.history[overflow:]...)
		}
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- env:
		default:
			s.missed++
		}
	}
	return env.Sequence
}

// ObserveFrame lets the stream be registered wherever frames are produced.
func (s *Stream) ObserveFrame(f frame.Frame) { s.Publish(f) }

// Subscribers reports the number of active subscriptions.
func (s *Stream) Subscribers() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Missed reports how many deliveries were skipped because a buffer was full.
func (s *Stream) Missed() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missed
}
