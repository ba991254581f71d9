package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"raygrid/internal/logging"
	"raygrid/internal/networking"
	"raygrid/internal/replay"
	"raygrid/internal/simulation"
	"raygrid/internal/viewer"
)

type stubReadiness struct {
	clients int
	pending int
	uptime  time.Duration
	err     error
}

func (s *stubReadiness) SnapshotClientCounts() (int, int) { return s.clients, s.pending }
func (s *stubReadiness) StartupError() error              { return s.err }
func (s *stubReadiness) Uptime() time.Duration            { return s.uptime }

type stubLimiter struct {
	remaining int
}

func (s *stubLimiter) Allow() (bool, time.Duration) {
	if s.remaining <= 0 {
		return false, 1500 * time.Millisecond
	}
	s.remaining--
	return true, 0
}

type stubStream struct{}

func (stubStream) Subscribers() int { return 3 }
func (stubStream) Missed() uint64   { return 17 }

func mustHandlers(t *testing.T, opts Options) *HandlerSet {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.NewTestLogger()
	}
	handlers, err := NewHandlerSet(opts)
	if err != nil {
		t.Fatalf("NewHandlerSet: %v", err)
	}
	return handlers
}

func TestLivenessHandlerReturnsJSON(t *testing.T) {
	fixed := time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)
	handlers := mustHandlers(t, Options{TimeSource: func() time.Time { return fixed }})
	rr := httptest.NewRecorder()
	handlers.LivenessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "alive" || payload.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestReadinessHandlerUnavailable(t *testing.T) {
	readiness := &stubReadiness{clients: 3, pending: 1, uptime: 45 * time.Second, err: errors.New("grpc listener failed")}
	handlers := mustHandlers(t, Options{
		Readiness:  readiness,
		Simulation: func() simulation.Counters { return simulation.Counters{Ticks: 900} },
	})

	rr := httptest.NewRecorder()
	handlers.ReadinessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var payload struct {
		Status         string  `json:"status"`
		Message        string  `json:"message"`
		UptimeSeconds  float64 `json:"uptime_seconds"`
		Clients        int     `json:"clients"`
		PendingClients int     `json:"pending_clients"`
		Ticks          uint64  `json:"ticks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "error" || payload.Message != "grpc listener failed" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Clients != 3 || payload.PendingClients != 1 || payload.Ticks != 900 {
		t.Fatalf("unexpected counts: %+v", payload)
	}
	if payload.UptimeSeconds != readiness.uptime.Seconds() {
		t.Fatalf("unexpected uptime: got %f want %f", payload.UptimeSeconds, readiness.uptime.Seconds())
	}
}

func TestMetricsHandlerOutputsPrometheusFormat(t *testing.T) {
	monitor := simulation.NewTickMonitor(time.Millisecond)
	monitor.Observe(2 * time.Millisecond)
	delivery := networking.NewDeliveryMetrics()
	delivery.Delivered("viewer-1", 640)
	delivery.Dropped(networking.DropSlowClient)

	handlers := mustHandlers(t, Options{
		Readiness: &stubReadiness{clients: 2, pending: 1, uptime: 90 * time.Second},
		Stats:     func() (int, int) { return 4, 2 },
		Simulation: func() simulation.Counters {
			return simulation.Counters{Ticks: 500, ObstacleHits: 3, BoundaryExits: 2}
		},
		Ticks: monitor,
		Flights: func() simulation.FlightStats {
			return simulation.FlightStats{Flights: 4, MeanTicks: 2.5, LongestTicks: 6}
		},
		KeyDrops: func() map[viewer.GateReason]uint64 {
			return map[viewer.GateReason]uint64{viewer.GateSequence: 2, viewer.GateSuperseded: 7}
		},
		Delivery:    delivery,
		Stream:      stubStream{},
		ReplayStats: func() replay.RecorderStats { return replay.RecorderStats{Events: 5, Frames: 40, Rolls: 1} },
		Retention:   func() replay.StorageStats { return replay.StorageStats{Bundles: 2, Bytes: 2048, Unclosed: 1} },
	})

	rr := httptest.NewRecorder()
	handlers.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := rr.Header().Get("Content-Type"); got != "text/plain; version=0.0.4" {
		t.Fatalf("unexpected content type %q", got)
	}
	body := rr.Body.String()
	for _, substr := range []string{
		"raygrid_broadcasts_total 4",
		"raygrid_clients 2",
		"raygrid_pending_clients 1",
		"raygrid_uptime_seconds 90",
		"raygrid_ticks_total 500",
		"raygrid_obstacle_hits_total 3",
		"raygrid_boundary_exits_total 2",
		"raygrid_resets_total 5",
		"raygrid_tick_overruns_total 1",
		"raygrid_flights_total 4",
		"raygrid_flight_mean_ticks 2.5",
		"raygrid_flight_longest_ticks 6",
		`raygrid_key_updates_dropped_total{reason="sequence"} 2`,
		`raygrid_key_updates_dropped_total{reason="superseded"} 7`,
		`raygrid_delivered_bytes_total{client="viewer-1"} 640`,
		`raygrid_dropped_frames_total{reason="slow_client"} 1`,
		"raygrid_stream_subscribers 3",
		"raygrid_stream_missed_total 17",
		"raygrid_replay_frames_total 40",
		"raygrid_replay_dumps_total 1",
		"raygrid_replay_bundles 2",
		"raygrid_replay_unclosed_bundles 1",
		"raygrid_replay_bytes 2048",
		"# TYPE raygrid_ticks_total counter",
	} {
		if !strings.Contains(body, substr) {
			t.Fatalf("metrics missing %q:\n%s", substr, body)
		}
	}
}

func TestSceneHandlerServesStaticPayload(t *testing.T) {
	handlers := mustHandlers(t, Options{Scene: map[string]any{"half_size": 0.5}})

	rr := httptest.NewRecorder()
	handlers.SceneHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/scene", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"half_size":0.5}` {
		t.Fatalf("unexpected scene body %q", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handlers.SceneHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/scene", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	empty := mustHandlers(t, Options{})
	rr = httptest.NewRecorder()
	empty.SceneHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/scene", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a scene, got %d", rr.Code)
	}
}

func TestReplayDumpHandlerAuthAndRateLimits(t *testing.T) {
	calls := 0
	handlers := mustHandlers(t, Options{
		Replay: ReplayDumperFunc(func(ctx context.Context) (string, error) {
			calls++
			return "/tmp/latest", nil
		}),
		AdminToken:  "topsecret",
		RateLimiter: &stubLimiter{remaining: 1},
	})

	makeRequest := func(method, token string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(method, "/replay/dump", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		handlers.ReplayDumpHandler().ServeHTTP(rr, req)
		return rr
	}

	if resp := makeRequest(http.MethodGet, "topsecret"); resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", resp.Code)
	}
	if resp := makeRequest(http.MethodPost, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for missing token, got %d", resp.Code)
	}
	if resp := makeRequest(http.MethodPost, "wrong"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for wrong token, got %d", resp.Code)
	}
	resp := makeRequest(http.MethodPost, "topsecret")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for authorised request, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "/tmp/latest") {
		t.Fatalf("expected location in body, got %q", resp.Body.String())
	}
	if calls != 1 {
		t.Fatalf("expected dumper invoked once, got %d", calls)
	}
	resp = makeRequest(http.MethodPost, "topsecret")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit, got %d", resp.Code)
	}
	if got := resp.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After rounded up to 2s, got %q", got)
	}
}

func TestReplayDumpHandlerRequiresConfiguredToken(t *testing.T) {
	handlers := mustHandlers(t, Options{})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/replay/dump", nil)
	req.Header.Set("X-Admin-Token", "anything")
	handlers.ReplayDumpHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without admin token, got %d", rr.Code)
	}
}
