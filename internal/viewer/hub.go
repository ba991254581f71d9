// Package viewer serves the WebSocket endpoint renderers connect to: it sends
// the static scene once, then every frame, and feeds arrow-key state back into
// the camera input latch.
package viewer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"raygrid/internal/camera"
	"raygrid/internal/frame"
	"raygrid/internal/logging"
	"raygrid/internal/networking"
)

const (
	defaultSendBuffer   = 256
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	maxInboundBytes     = 4 << 10

	// TypeScene tags the one-off static payload.
	TypeScene = "scene"
	// TypeKeys tags inbound key updates.
	TypeKeys = "keys"
)

// Options configures a Hub.
type Options struct {
	Logger         *logging.Logger
	AllowedOrigins []string
	// MaxClients caps concurrent viewers. Zero disables the cap.
	MaxClients   int
	PingInterval time.Duration
	SendBuffer   int
	// Static is marshalled once and sent to each viewer before any frame.
	Static  any
	Input   *camera.Input
	Gate    *KeyGate
	Budget  *networking.FrameBudget
	Metrics *networking.DeliveryMetrics
	// Steering, when set, limits camera control to authenticated viewers.
	// Everyone else still receives frames.
	Steering Authenticator
}

// Authenticator resolves the subject allowed to steer from the upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	// canSteer is fixed at connect time.
	canSteer bool
	// ownsKeys marks the viewer whose keys are currently latched.
	ownsKeys atomic.Bool
}

// Hub fans frames out to WebSocket viewers. Slow viewers are disconnected
// rather than allowed to stall the simulation.
type Hub struct {
	log          *logging.Logger
	upgrader     websocket.Upgrader
	origins      map[string]struct{}
	maxClients   int
	pingInterval time.Duration
	sendBuffer   int
	static       []byte
	input        *camera.Input
	gate         *KeyGate
	budget       *networking.FrameBudget
	metrics      *networking.DeliveryMetrics
	steering     Authenticator

	lock    sync.Mutex
	clients map[*client]struct{}
	// closed turns away upgrades once shutdown has begun.
	closed bool

	started    time.Time
	nextID     atomic.Uint64
	pending    atomic.Int64
	broadcasts atomic.Int64
}

// NewHub validates the options and prepares the static payload.
func NewHub(opts Options) (*Hub, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	h := &Hub{
		log:          logger.With(logging.String("component", "viewer_hub")),
		origins:      make(map[string]struct{}),
		maxClients:   opts.MaxClients,
		pingInterval: opts.PingInterval,
		sendBuffer:   opts.SendBuffer,
		input:        opts.Input,
		gate:         opts.Gate,
		budget:       opts.Budget,
		metrics:      opts.Metrics,
		steering:     opts.Steering,
		clients:      make(map[*client]struct{}),
		started:      time.Now(),
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	for _, origin := range opts.AllowedOrigins {
		if trimmed := strings.ToLower(strings.TrimSpace(origin)); trimmed != "" {
			h.origins[trimmed] = struct{}{}
		}
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}

	if opts.Static != nil {
		payload, err := json.Marshal(struct {
			Type  string `json:"type"`
			Scene any    `json:"scene"`
		}{Type: TypeScene, Scene: opts.Static})
		if err != nil {
			return nil, fmt.Errorf("encode static scene: %w", err)
		}
		h.static = payload
	}
	return h, nil
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := strings.ToLower(strings.TrimSpace(r.Header.Get("Origin")))
	if origin == "" {
		return true
	}
	if _, ok := h.origins["*"]; ok {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

// ServeHTTP upgrades the request and runs the viewer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isClosed() {
		http.Error(w, "viewer hub shutting down", http.StatusServiceUnavailable)
		return
	}
	if h.maxClients > 0 && h.clientCount() >= h.maxClients {
		h.log.Warn("viewer rejected: capacity reached", logging.String("remote_addr", r.RemoteAddr))
		http.Error(w, "viewer capacity reached", http.StatusServiceUnavailable)
		return
	}
	canSteer, subject := true, ""
	if h.steering != nil {
		var err error
		subject, err = h.steering.Authenticate(r)
		canSteer = err == nil
		if err != nil {
			h.log.Debug("viewer joins watch-only", logging.String("remote_addr", r.RemoteAddr), logging.Error(err))
		}
	}
	h.pending.Add(1)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	h.pending.Add(-1)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logging.String("remote_addr", r.RemoteAddr), logging.Error(err))
		return
	}

	c := &client{
		id:   fmt.Sprintf("viewer-%d", h.nextID.Add(1)),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),

		canSteer: canSteer,
	}
	logger := h.log.With(logging.String("client_id", c.id), logging.String("remote_addr", r.RemoteAddr))
	if subject != "" {
		logger = logger.With(logging.String("subject", subject))
	}

	//1.- Queue the scene before registering so it always precedes the first frame.
	if h.static != nil {
		c.send <- h.static
	}
	h.lock.Lock()
	if h.closed {
		//2.- Close ran while this upgrade was in flight.
		h.lock.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	logger.Info("viewer connected", logging.Bool("can_steer", canSteer))

	go h.writePump(c)
	go h.readPump(c, logger)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type inbound struct {
	Type     string `json:"type"`
	Sequence uint64 `json:"seq"`
	camera.Keys
}

func (h *Hub) readPump(c *client, logger *logging.Logger) {
	defer func() {
		//1.- Forget first so no held key update can land after the release.
		h.gate.Forget(c.id)
		h.unregister(c)
		c.conn.Close()
		if c.ownsKeys.Load() && h.input != nil {
			h.input.Release()
		}
		h.budget.Forget(c.id)
		h.metrics.ForgetClient(c.id)
		logger.Info("viewer disconnected")
	}()

	//2.- A viewer that stops answering pings is dropped after two intervals.
	deadline := 2 * h.pingInterval
	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("viewer read failed", logging.Error(err))
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("ignoring malformed viewer message", logging.Error(err))
			continue
		}
		if msg.Type != TypeKeys || h.input == nil {
			continue
		}
		if !c.canSteer {
			logger.Debug("key update dropped", logging.String("reason", "watch_only"))
			continue
		}
		keys := msg.Keys
		switch reason := h.gate.Offer(c.id, msg.Sequence, func() { h.applyKeys(c, keys) }); reason {
		case GateAccepted, GateDeferred:
		default:
			logger.Debug("key update dropped", logging.String("reason", string(reason)))
		}
	}
}

// applyKeys latches keys for owner. Last writer wins; the tick polls whatever
// is latched. A viewer that already left is ignored.
func (h *Hub) applyKeys(owner *client, keys camera.Keys) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if _, ok := h.clients[owner]; !ok {
		return
	}
	h.input.Set(keys)
	for c := range h.clients {
		c.ownsKeys.Store(c == owner)
	}
}

func (h *Hub) unregister(c *client) {
	h.lock.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.lock.Unlock()
}

// Publish encodes the frame once and queues it for every viewer.
func (h *Hub) Publish(f frame.Frame) error {
	payload, err := f.JSON()
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	h.broadcast(payload)
	return nil
}

// ObserveFrame adapts Publish to the host's frame sink signature.
func (h *Hub) ObserveFrame(f frame.Frame) {
	if err := h.Publish(f); err != nil {
		h.log.Warn("frame broadcast failed", logging.Error(err))
	}
}

func (h *Hub) broadcast(msg []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.broadcasts.Add(1)
	for c := range h.clients {
		if !h.budget.Allow(c.id, len(msg)) {
			h.metrics.Dropped(networking.DropThrottled)
			continue
		}
		select {
		case c.send <- msg:
			h.metrics.Delivered(c.id, len(msg))
		default:
			//1.- A full queue means the viewer cannot keep up; cut it loose.
			close(c.send)
			delete(h.clients, c)
			h.metrics.Dropped(networking.DropSlowClient)
			h.log.Warn("dropping slow viewer", logging.String("client_id", c.id))
		}
	}
}

// Close disconnects every viewer and turns away later upgrades.
func (h *Hub) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) isClosed() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.closed
}

func (h *Hub) clientCount() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// SnapshotClientCounts reports connected viewers and upgrades in flight.
func (h *Hub) SnapshotClientCounts() (clients, pending int) {
	return h.clientCount(), int(h.pending.Load())
}

// Stats reports cumulative broadcasts and the current viewer count.
func (h *Hub) Stats() (broadcasts, clients int) {
	return int(h.broadcasts.Load()), h.clientCount()
}

// Uptime is the time since the hub was created.
func (h *Hub) Uptime() time.Duration { return time.Since(h.started) }
