package notify

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/metrics"
)

// Event is one websocket frame.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

const (
	OpHeartbeat    = "heartbeat"
	OpHeartbeatAck = "heartbeat_ack"
	OpReady        = "ready"
	OpNotification = "notification"
	OpDismissed    = "notification_dismissed"
)

// Hub fans notification events out to every open stream of an admin. An admin may
// have several tabs open, each with its own connection.
type Hub struct {
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	seq        atomic.Int64

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logging.OrNop(logger).Named("notify_hub"),
		metrics:    m,
	}
}

// Run serves register and unregister requests until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for adminID, set := range h.clients {
				for c := range set {
					close(c.send)
					h.metrics.WSConnected(-1)
				}
				delete(h.clients, adminID)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.adminID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.adminID] = set
	}
	set[c] = struct{}{}
	h.metrics.WSConnected(1)
	h.logger.Debug("stream connected", zap.String("admin_id", c.adminID), zap.Int("connections", len(set)))
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.adminID]
	if !ok {
		return
	}
	if _, exists := set[c]; !exists {
		return
	}
	delete(set, c)
	close(c.send)
	h.metrics.WSConnected(-1)
	if len(set) == 0 {
		delete(h.clients, c.adminID)
	}
	h.logger.Debug("stream disconnected", zap.String("admin_id", c.adminID), zap.Int("remaining", len(set)))
}

// SendToAdmin delivers ev to every connection of adminID. Slow connections whose
// buffers are full are dropped.
func (h *Hub) SendToAdmin(adminID string, ev Event) {
	ev.Seq = h.seq.Add(1)
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event failed", zap.String("op", ev.Op), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[adminID] {
		select {
		case c.send <- data:
		default:
			go h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Connections counts open streams for adminID.
func (h *Hub) Connections(adminID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[adminID])
}
