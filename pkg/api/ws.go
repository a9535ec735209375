package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbianchi/photarc/internal/logger"
	"github.com/mbianchi/photarc/pkg/metrics"
	"github.com/mbianchi/photarc/pkg/pipeline"
)

const (
	// Ledger activity is coalesced onto this tick so a busy scan sends one
	// status frame per interval instead of thousands of tiny ones.
	flushInterval = 250 * time.Millisecond

	heartbeatInterval = 30 * time.Second

	writeWait = 10 * time.Second
)

// snapshotSource composes the status frame clients receive; the pipeline
// supervisor implements it.
type snapshotSource interface {
	Snapshot() (*pipeline.Snapshot, error)
}

// Hub streams pipeline progress to connected WebSocket clients. It
// implements pipeline.Notifier: published events mark the hub dirty, and a
// coalesced tick broadcasts one status snapshot in the same shape the HTTP
// pipeline endpoint serves. Publish never blocks.
type Hub struct {
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	events   chan pipeline.Event

	mu        sync.Mutex
	snapshots snapshotSource
	clients   map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an idle hub; call Run to start delivery.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API is same-host self-hosted; no origin restriction.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		events:  make(chan pipeline.Event, 1024),
		clients: make(map[*wsClient]struct{}),
	}
}

// SetSnapshotSource binds the supervisor whose state the hub broadcasts.
func (h *Hub) SetSnapshotSource(src snapshotSource) {
	h.mu.Lock()
	h.snapshots = src
	h.mu.Unlock()
}

func (h *Hub) source() snapshotSource {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshots
}

// Publish marks the hub dirty so the next tick sends a snapshot. Never
// blocks.
func (h *Hub) Publish(ev pipeline.Event) {
	select {
	case h.events <- ev:
	default:
	}
}

// Run delivers coalesced snapshot frames and heartbeats until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	flush := time.NewTicker(flushInterval)
	defer flush.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	dirty := false
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.events:
			dirty = true
		case <-flush.C:
			if !dirty {
				continue
			}
			dirty = false
			h.broadcastSnapshot()
		case <-heartbeat.C:
			h.broadcastRaw([]byte(`{"heartbeat":true}`))
		}
	}
}

// ServeWS upgrades the connection and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.WebsocketClientConnected()
	logger.Debug("websocket client connected", "clients", n)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) broadcastSnapshot() {
	src := h.source()
	if src == nil {
		return
	}
	snap, err := src.Snapshot()
	if err != nil {
		logger.Warn("failed to compose progress snapshot", "error", err)
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	h.broadcastRaw(payload)
}

func (h *Hub) broadcastRaw(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow client; drop the frame rather than stall the hub.
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}

// readPump discards inbound frames; its job is to notice disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	close(c.send)
	h.metrics.WebsocketClientDisconnected()
	logger.Debug("websocket client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.drop(c)
	}
}
