// Package httpapi serves the host's operational endpoints: health, metrics,
// the static scene and replay dumps.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"raygrid/internal/logging"
	"raygrid/internal/networking"
	"raygrid/internal/replay"
	"raygrid/internal/simulation"
	"raygrid/internal/viewer"
)

// ReadinessProvider exposes host state required for readiness checks.
type ReadinessProvider interface {
	SnapshotClientCounts() (clients, pending int)
	StartupError() error
	Uptime() time.Duration
}

// StatsFunc returns cumulative broadcast and client statistics.
type StatsFunc func() (broadcasts, clients int)

// StreamStats describes the in-process frame fan-out.
type StreamStats interface {
	Subscribers() int
	Missed() uint64
}

// ReplayDumper closes the active replay bundle and returns its location.
type ReplayDumper interface {
	DumpReplay(ctx context.Context) (string, error)
}

// ReplayDumperFunc adapts a function into a ReplayDumper.
type ReplayDumperFunc func(ctx context.Context) (string, error)

// DumpReplay implements ReplayDumper.
func (f ReplayDumperFunc) DumpReplay(ctx context.Context) (string, error) { return f(ctx) }

// RateLimiter gates how frequently replay dumps may be requested. A refusal
// carries the wait before the next attempt can succeed.
type RateLimiter interface {
	Allow() (bool, time.Duration)
}

// Options configures the HandlerSet. Every source is optional; metrics for a
// missing source are omitted.
type Options struct {
	Logger      *logging.Logger
	Readiness   ReadinessProvider
	Stats       StatsFunc
	Simulation  func() simulation.Counters
	Ticks       *simulation.TickMonitor
	Flights     func() simulation.FlightStats
	KeyDrops    func() map[viewer.GateReason]uint64
	Delivery    *networking.DeliveryMetrics
	Budget      *networking.FrameBudget
	Stream      StreamStats
	Replay      ReplayDumper
	ReplayStats func() replay.RecorderStats
	Retention   func() replay.StorageStats
	Scene       any
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet bundles the host operational handlers.
type HandlerSet struct {
	opts       Options
	logger     *logging.Logger
	adminToken string
	now        func() time.Time
	scene      []byte
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) (*HandlerSet, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	h := &HandlerSet{
		opts:       opts,
		logger:     logger,
		adminToken: strings.TrimSpace(opts.AdminToken),
		now:        now,
	}
	if opts.Scene != nil {
		data, err := json.Marshal(opts.Scene)
		if err != nil {
			return nil, fmt.Errorf("encode scene: %w", err)
		}
		h.scene = data
	}
	return h, nil
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/scene", h.SceneHandler())
	mux.HandleFunc("/replay/dump", h.ReplayDumpHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports readiness, including viewer counts and startup status.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status         string  `json:"status"`
		Message        string  `json:"message,omitempty"`
		UptimeSeconds  float64 `json:"uptime_seconds"`
		Clients        int     `json:"clients"`
		PendingClients int     `json:"pending_clients"`
		Ticks          uint64  `json:"ticks"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.opts.Readiness != nil {
			resp.Clients, resp.PendingClients = h.opts.Readiness.SnapshotClientCounts()
			resp.UptimeSeconds = h.opts.Readiness.Uptime().Seconds()
			if err := h.opts.Readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		if h.opts.Simulation != nil {
			resp.Ticks = h.opts.Simulation().Ticks
		}
		writeJSON(w, status, resp)
	}
}

// SceneHandler serves the static scene description viewers render from.
func (h *HandlerSet) SceneHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.scene == nil {
			http.Error(w, "scene unavailable", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=60")
		_, _ = w.Write(h.scene)
	}
}

// metricWriter keeps HELP and TYPE lines next to their samples.
type metricWriter struct {
	w http.ResponseWriter
}

func (m metricWriter) header(name, kind, help string) {
	fmt.Fprintf(m.w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(m.w, "# TYPE %s %s\n", name, kind)
}

func (m metricWriter) gauge(name, help string, value any) {
	m.header(name, "gauge", help)
	fmt.Fprintf(m.w, "%s %v\n", name, value)
}

func (m metricWriter) counter(name, help string, value any) {
	m.header(name, "counter", help)
	fmt.Fprintf(m.w, "%s %v\n", name, value)
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		broadcasts, clients := h.metricsStats()
		pending, uptime := h.pendingAndUptime()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := metricWriter{w: w}
		m.gauge("raygrid_uptime_seconds", "Host uptime in seconds.", fmt.Sprintf("%.0f", uptime))
		m.gauge("raygrid_clients", "Current connected viewers.", clients)
		m.gauge("raygrid_pending_clients", "WebSocket handshakes awaiting upgrade.", pending)
		m.counter("raygrid_broadcasts_total", "Total frames broadcast to viewers.", broadcasts)

		if h.opts.Simulation != nil {
			counters := h.opts.Simulation()
			m.counter("raygrid_ticks_total", "Simulation ticks executed.", counters.Ticks)
			m.counter("raygrid_obstacle_hits_total", "Ticks that ended with the ray inside an obstacle.", counters.ObstacleHits)
			m.counter("raygrid_boundary_exits_total", "Ticks that ended with the ray outside the grid.", counters.BoundaryExits)
			m.counter("raygrid_resets_total", "Particle resets after a terminal outcome.", counters.Resets())
		}
		if h.opts.Ticks != nil {
			snap := h.opts.Ticks.Snapshot()
			m.gauge("raygrid_tick_duration_avg_seconds", "Mean simulation tick compute time.", snap.Average.Seconds())
			m.gauge("raygrid_tick_duration_max_seconds", "Slowest simulation tick observed.", snap.Max.Seconds())
			m.counter("raygrid_tick_overruns_total", "Ticks that exceeded the frame budget.", snap.Overruns)
		}
		if h.opts.Flights != nil {
			flights := h.opts.Flights()
			m.counter("raygrid_flights_total", "Flights that ended in a hit or an exit.", flights.Flights)
			m.gauge("raygrid_flight_mean_ticks", "Mean ticks per finished flight.", flights.MeanTicks)
			m.gauge("raygrid_flight_longest_ticks", "Longest finished flight in ticks.", flights.LongestTicks)
		}
		if h.opts.KeyDrops != nil {
			m.header("raygrid_key_updates_dropped_total", "counter", "Viewer key updates rejected or superseded, by reason.")
			drops := h.opts.KeyDrops()
			reasons := make([]string, 0, len(drops))
			for reason := range drops {
				reasons = append(reasons, string(reason))
			}
			sort.Strings(reasons)
			for _, reason := range reasons {
				fmt.Fprintf(w, "raygrid_key_updates_dropped_total{reason=%q} %d\n", reason, drops[viewer.GateReason(reason)])
			}
		}
		if h.opts.Delivery != nil {
			m.header("raygrid_delivered_bytes_total", "counter", "Frame bytes written per viewer.")
			bytes := h.opts.Delivery.BytesPerClient()
			for _, id := range sortedKeys(bytes) {
				fmt.Fprintf(w, "raygrid_delivered_bytes_total{client=%q} %d\n", id, bytes[id])
			}
			m.header("raygrid_dropped_frames_total", "counter", "Frames not delivered, by reason.")
			drops := h.opts.Delivery.DropCounts()
			reasons := make([]string, 0, len(drops))
			for reason := range drops {
				reasons = append(reasons, string(reason))
			}
			sort.Strings(reasons)
			for _, reason := range reasons {
				fmt.Fprintf(w, "raygrid_dropped_frames_total{reason=%q} %d\n", reason, drops[networking.DropReason(reason)])
			}
		}
		if h.opts.Budget != nil {
			usage := h.opts.Budget.Usage()
			if len(usage) > 0 {
				ids := sortedKeys(usage)
				m.header("raygrid_bandwidth_bytes_per_second", "gauge", "Observed outbound bandwidth per viewer.")
				for _, id := range ids {
					fmt.Fprintf(w, "raygrid_bandwidth_bytes_per_second{client=%q} %.2f\n", id, usage[id].BytesPerSecond)
				}
				m.header("raygrid_bandwidth_denied_total", "counter", "Frames skipped because the viewer ran out of byte budget.")
				for _, id := range ids {
					fmt.Fprintf(w, "raygrid_bandwidth_denied_total{client=%q} %d\n", id, usage[id].Skipped)
				}
			}
		}
		if h.opts.Stream != nil {
			m.gauge("raygrid_stream_subscribers", "Active frame stream subscribers.", h.opts.Stream.Subscribers())
			m.counter("raygrid_stream_missed_total", "Frames a stream subscriber missed because its buffer was full.", h.opts.Stream.Missed())
		}
		if h.opts.ReplayStats != nil {
			stats := h.opts.ReplayStats()
			m.counter("raygrid_replay_events_total", "Terminal events written to replay bundles.", stats.Events)
			m.counter("raygrid_replay_frames_total", "Frames written to replay bundles.", stats.Frames)
			m.counter("raygrid_replay_dumps_total", "Replay bundles rolled on request.", stats.Rolls)
			m.counter("raygrid_replay_errors_total", "Replay write failures.", stats.Errors)
		}
		if h.opts.Retention != nil {
			stats := h.opts.Retention()
			m.gauge("raygrid_replay_bundles", "Replay bundles retained on disk.", stats.Bundles)
			m.gauge("raygrid_replay_bytes", "Disk footprint of retained replay bundles.", stats.Bytes)
			m.gauge("raygrid_replay_unclosed_bundles", "Retained bundles that were never closed.", stats.Unclosed)
			m.gauge("raygrid_replay_bundles_removed", "Bundles removed by the latest retention sweep.", stats.Removed)
		}
	}
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ReplayDumpHandler authorises and triggers a replay bundle roll.
func (h *HandlerSet) ReplayDumpHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.LoggerFromContext(r.Context()).With(
			logging.String("handler", "replay_dump"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("replay dump denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("replay dump denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.opts.RateLimiter != nil {
			if ok, wait := h.opts.RateLimiter.Allow(); !ok {
				reqLogger.Warn("replay dump denied: rate limit exceeded", logging.String("retry_after", wait.String()))
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}
		if h.opts.Replay == nil {
			reqLogger.Warn("replay dump denied: no dumper configured")
			http.Error(w, "replay dumping is unavailable", http.StatusServiceUnavailable)
			return
		}
		location, err := h.opts.Replay.DumpReplay(r.Context())
		if err != nil {
			reqLogger.Error("replay dump trigger failed", logging.Error(err))
			http.Error(w, "failed to trigger replay dump", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("replay dump triggered", logging.String("location", location))
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Location: location})
	}
}

func (h *HandlerSet) metricsStats() (broadcasts, clients int) {
	if h.opts.Stats != nil {
		return h.opts.Stats()
	}
	if h.opts.Readiness != nil {
		clients, _ = h.opts.Readiness.SnapshotClientCounts()
	}
	return
}

func (h *HandlerSet) pendingAndUptime() (pending int, uptime float64) {
	if h.opts.Readiness == nil {
		return 0, 0
	}
	_, pending = h.opts.Readiness.SnapshotClientCounts()
	return pending, h.opts.Readiness.Uptime().Seconds()
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
