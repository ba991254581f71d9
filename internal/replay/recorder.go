package replay

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"raygrid/internal/frame"
	"raygrid/internal/logging"
	"raygrid/internal/simulation"
)

// DefaultSampleHz is how often traveling frames are kept in a bundle.
const DefaultSampleHz = 5.0

// RecorderConfig configures where and how a session is recorded.
type RecorderConfig struct {
	Dir       string
	SessionID string
	TickHz    float64
	SampleHz  float64
	Seed      uint64
	Scene     SceneParameters
	Clock     func() time.Time
	Logger    *logging.Logger
}

// RecorderStats is exported on /metrics.
type RecorderStats struct {
	Bundle   string
	Events   uint64
	Frames   uint64
	Rolls    uint64
	Errors   uint64
	LastRoll time.Time
}

// Recorder turns the frame feed into replay bundles. Terminal outcomes are
// written as events and frames; traveling frames are sampled. Roll closes the
// active bundle and opens a fresh one without pausing the feed.
type Recorder struct {
	mu     sync.Mutex
	cfg    RecorderConfig
	every  uint64
	writer *Writer
	stats  RecorderStats
	closed bool
	log    *logging.Logger
}

// ErrRecorderClosed is returned by Roll after Close.
var ErrRecorderClosed = errors.New("replay recorder closed")

// NewRecorder opens the first bundle under cfg.Dir.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Dir == "" {
		return nil, errors.New("replay directory must be provided")
	}
	if !(cfg.TickHz > 0) {
		return nil, errors.New("tick rate must be positive")
	}
	if !(cfg.SampleHz > 0) {
		cfg.SampleHz = DefaultSampleHz
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.L()
	}
	every := uint64(math.Round(cfg.TickHz / cfg.SampleHz))
	if every == 0 {
		every = 1
	}
	r := &Recorder{cfg: cfg, every: every, log: cfg.Logger.With(logging.String("component", "replay"))}
	if err := r.openLocked(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) openLocked() error {
	writer, _, err := NewWriter(r.cfg.Dir, r.cfg.SessionID, r.cfg.Clock)
	if err != nil {
		return err
	}
	writer.SetHeaderMetadata(r.cfg.Seed, r.cfg.Scene)
	r.writer = writer
	r.stats.Bundle = writer.Directory()
	r.log.Info("replay bundle opened", logging.String("path", writer.Directory()))
	return nil
}

// SampleEvery is the tick stride between sampled traveling frames.
func (r *Recorder) SampleEvery() uint64 { return r.every }

// terminalPayload is the body of a hit_obstacle or hit_boundary event.
type terminalPayload struct {
	ObstacleIndex *int       `json:"obstacle_index,omitempty"`
	Judged        [3]float64 `json:"judged"`
	NextZenith    float64    `json:"next_zenith"`
	NextAzimuth   float64    `json:"next_azimuth"`
}

// ObserveFrame records f. Write failures are logged and counted; they never
// reach the simulation loop.
func (r *Recorder) ObserveFrame(f frame.Frame) {
	if r == nil {
		return
	}
	terminal := f.Outcome != simulation.Traveling.String()
	if !terminal && f.Tick%r.every != 0 {
		return
	}
	simulatedMs := int64(float64(f.Tick) * 1000 / r.cfg.TickHz)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.writer == nil {
		return
	}

	//1.- Terminal outcomes also land in the event log so the timeline is complete without frames.
	if terminal {
		payload := terminalPayload{Judged: f.Judged, NextZenith: f.Particle.Zenith, NextAzimuth: f.Particle.Azimuth}
		if f.ObstacleIndex >= 0 {
			index := f.ObstacleIndex
			payload.ObstacleIndex = &index
		}
		data, err := json.Marshal(payload)
		if err == nil {
			err = r.writer.AppendEvent(f.Tick, simulatedMs, f.Outcome, data)
		}
		if err != nil {
			r.failLocked("replay event write failed", f.Tick, err)
			return
		}
		r.stats.Events++
	}

	//2.- Frames are stored as protobuf Structs, the same shape the gRPC stream sends.
	data, err := f.MarshalBinary()
	if err == nil {
		err = r.writer.AppendFrame(f.Tick, simulatedMs, data)
	}
	if err != nil {
		r.failLocked("replay frame write failed", f.Tick, err)
		return
	}
	r.stats.Frames++
}

func (r *Recorder) failLocked(message string, tick uint64, err error) {
	r.stats.Errors++
	r.log.Warn(message, logging.Error(err), logging.Int64("tick", int64(tick)))
}

// Roll closes the active bundle and starts a new one, returning the path of
// the bundle that was closed.
func (r *Recorder) Roll(ctx context.Context) (string, error) {
	if r == nil {
		return "", ErrRecorderClosed
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrRecorderClosed
	}

	previous := r.writer
	path := previous.Directory()
	//1.- Close the old bundle so its header and trailing frames hit disk.
	if err := previous.Close(); err != nil {
		r.stats.Errors++
		r.log.Warn("replay bundle close failed", logging.Error(err), logging.String("path", path))
	}
	//2.- A failed reopen leaves the recorder idle rather than half-open.
	r.writer = nil
	if err := r.openLocked(); err != nil {
		r.stats.Errors++
		r.stats.Bundle = ""
		return path, err
	}
	r.stats.Rolls++
	r.stats.LastRoll = r.cfg.Clock().UTC()
	r.log.Info("replay bundle rolled", logging.String("path", path))
	return path, nil
}

// Stats returns a snapshot of recorder counters.
func (r *Recorder) Stats() RecorderStats {
	if r == nil {
		return RecorderStats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close finalises the active bundle.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.writer == nil {
		return nil
	}
	err := r.writer.Close()
	r.writer = nil
	return err
}
