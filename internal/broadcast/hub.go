package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/i474232898/location-data-aggregation/internal/location"
	"github.com/i474232898/location-data-aggregation/internal/logging"
)

const sendBuffer = 16

// Source is the snapshot feed the hub fans out.
type Source interface {
	Current() location.Snapshot
	Subscribe() (<-chan location.Snapshot, func())
}

// Frame is the JSON message sent to every WebSocket client.
type Frame struct {
	Snapshot location.Snapshot `json:"snapshot"`
	Stamp    int64             `json:"stamp"` // Unix ms
}

// Hub streams snapshots to WebSocket clients. A client receives the current
// snapshot on connect and every replacement after that.
type Hub struct {
	source   Source
	log      logging.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool // set once Run has returned
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub fed by source. Call Run to start forwarding.
func NewHub(source Source, log logging.Logger) *Hub {
	return &Hub{
		source: source,
		log:    logging.OrNoop(log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Handler returns a mux serving the hub at /ws.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	return mux
}

// Run forwards store replacements to clients until ctx is cancelled, then
// disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	updates, cancel := h.source.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case snap, ok := <-updates:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(snap)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client. After Run has
// returned new connections are refused.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isClosed() {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "ws: upgrade failed", logging.Err(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	h.clients[c.id] = c
	if data, err := encode(h.source.Current()); err == nil {
		c.send <- data
	}
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Info(r.Context(), "ws: client connected",
		logging.String("client_id", c.id),
		logging.Int("clients", total),
	)

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// readLoop drains client messages so control frames are handled, and
// unregisters the client once the connection fails.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.log.Info(context.Background(), "ws: client disconnected",
			logging.String("client_id", c.id),
			logging.Int("clients", total),
		)
	}
}

func (h *Hub) broadcast(snap location.Snapshot) {
	data, err := encode(snap)
	if err != nil {
		h.log.Error(context.Background(), "ws: encode snapshot", logging.Err(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn(context.Background(), "ws: client too slow, frame dropped", logging.String("client_id", c.id))
		}
	}
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

func encode(snap location.Snapshot) ([]byte, error) {
	return json.Marshal(Frame{Snapshot: snap, Stamp: time.Now().UnixMilli()})
}
