package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Origin is left to gorilla's same-host check.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is one websocket connection. Only the write pump writes to conn.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	adminID string
	send    chan []byte
	mu      sync.Mutex
}

// Serve upgrades the request and streams events for adminID until the socket closes.
// ready is sent as the first frame.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, adminID string, ready any) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("admin_id", adminID), zap.Error(err))
		return
	}
	c := &Client{hub: h, conn: conn, adminID: adminID, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	c.queue(Event{Op: OpReady, Data: ready})
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("unexpected close", zap.String("admin_id", c.adminID), zap.Error(err))
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		if ev.Op == OpHeartbeat {
			if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
				return
			}
			c.queue(Event{Op: OpHeartbeatAck})
		}
	}
}

func (c *Client) queue(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	// The hub closes send on shutdown; a late heartbeat must not panic.
	defer func() { _ = recover() }()
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.write(websocket.CloseMessage, nil)
}

func (c *Client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
