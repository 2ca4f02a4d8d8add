package websocket

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cinepulse/internal/pipeline"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Outbound frames buffered per client
	sendBuffer = 64
)

// Filter restricts the events a client receives. Empty fields match all.
type Filter struct {
	Domain pipeline.Domain `json:"domain,omitempty"`
	Key    string          `json:"key,omitempty"`
}

func (f Filter) matches(e pipeline.Event) bool {
	if f.Domain != "" && f.Domain != e.Domain {
		return false
	}
	return f.Key == "" || f.Key == e.Key
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var f Filter
	if raw := q.Get("domain"); raw != "" {
		d, err := pipeline.ParseDomain(raw)
		if err != nil {
			return Filter{}, err
		}
		f.Domain = d
	}
	if raw := q.Get("key"); raw != "" {
		if f.Domain == "" {
			return Filter{}, fmt.Errorf("key filter requires a domain")
		}
		key, err := pipeline.NormalizeKey(f.Domain, raw)
		if err != nil {
			return Filter{}, err
		}
		f.Key = key
	}
	return f, nil
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound messages, closed by the hub
	send chan []byte

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time
	filter      Filter
	logger      *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, filter Filter, traceID string) *Client {
	id := uuid.NewString()
	logger := hub.logger.With(
		slog.String("component", "websocket.client"),
		slog.String("client_id", id))
	if traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          id,
		traceID:     traceID,
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: time.Now(),
		filter:      filter,
		logger:      logger,
	}
}

// readPump drains the connection so pongs and close frames are processed.
// Clients have nothing to say beyond heartbeats.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	pongWait := c.hub.cfg.PongWait
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Unexpected WebSocket close", slog.String("error", err.Error()))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump writes queued frames and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Error writing message", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Failed to send ping", slog.String("error", err.Error()))
				return
			}
		}
	}
}
