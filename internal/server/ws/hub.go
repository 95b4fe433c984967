// Package ws pushes live discovery output to browser and bot clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// Channels pushed to clients.
const (
	ChannelOpportunities = "opportunities"
	ChannelStats         = "stats"
	ChannelLinks         = "links"
	ChannelStatus        = "status"
)

var defaultChannels = []string{ChannelOpportunities, ChannelStats, ChannelLinks, ChannelStatus}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS and auth middleware sit in front of the upgrade.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Config describes the hub's process for the status frame, plus any bus
// channels to relay.
type Config struct {
	Mode      string
	StartedAt time.Time
	// Relay maps bus channels to client channels. Server mode uses it to
	// serve output produced by a discovery process elsewhere.
	Relay map[string]string
}

// Hub fans frames out to websocket clients. Frames are JSON text unless a
// client connects with ?format=proto.
type Hub struct {
	cfg       Config
	bus       domain.SignalBus
	broadcast chan encodedFrame
	logger    *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
	closed  bool
}

// NewHub builds a hub. bus is only read when cfg.Relay is set.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	return &Hub{
		cfg:       cfg,
		bus:       bus,
		broadcast: make(chan encodedFrame, 256),
		clients:   make(map[*client]bool),
		logger:    logger.With(slog.String("component", "ws_hub")),
	}
}

// Broadcast queues payload for the subscribers of channel. A full queue
// drops the frame; it never blocks the caller.
func (h *Hub) Broadcast(channel string, payload any) {
	f, err := encodeFrame(channel, payload)
	if err != nil {
		h.logger.Error("ws: broadcast", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- f:
	default:
		h.logger.Warn("ws: broadcast queue full", slog.String("channel", channel))
	}
}

// Run delivers queued frames until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		for from, to := range h.cfg.Relay {
			go h.relay(ctx, from, to)
		}
	}
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-h.broadcast:
			h.fanOut(f)
		}
	}
}

func (h *Hub) fanOut(f encodedFrame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.isSubscribed(f.channel) && !c.offer(f.bytes(c.format)) {
			h.logger.Warn("ws: client too slow, frame dropped", slog.String("channel", f.channel))
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client connected", slog.Int("clients", n))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Info("ws: client disconnected", slog.Int("clients", n))
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// relay republishes JSON payloads from a bus channel.
func (h *Hub) relay(ctx context.Context, from, to string) {
	msgs, err := h.bus.Subscribe(ctx, from)
	if err != nil {
		h.logger.Error("ws: relay subscribe", slog.String("channel", from), slog.String("error", err.Error()))
		return
	}
	h.logger.Info("ws: relaying", slog.String("from", from), slog.String("to", to))
	for data := range msgs {
		var payload any
		if err := json.Unmarshal(data, &payload); err != nil {
			h.logger.Warn("ws: relay payload is not json", slog.String("channel", from))
			continue
		}
		h.Broadcast(to, payload)
	}
}

// HandleWS serves GET /ws?format=json|proto.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade", slog.String("error", err.Error()))
		return
	}
	c := newClient(h, conn, parseFormat(r.URL.Query().Get("format")))
	h.greet(c)
	if !h.add(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

// greet sends the status frame so a client can show the link as healthy
// before the first opportunity.
func (h *Hub) greet(c *client) {
	f, err := encodeFrame(ChannelStatus, map[string]any{
		"mode":           h.cfg.Mode,
		"uptime_seconds": max(int64(time.Since(h.cfg.StartedAt).Seconds()), 0),
	})
	if err == nil {
		c.offer(f.bytes(c.format))
	}
}
