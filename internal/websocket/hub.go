package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cinepulse/internal/config"
	"cinepulse/internal/infrastructure"
	"cinepulse/internal/middleware"
	"cinepulse/internal/pipeline"
)

// Message types sent to clients
const (
	TypeConnection = "connection"
	TypeStage      = pipeline.EventTypeStage
)

// broadcastBuffer bounds events queued between Publish and the hub loop
const broadcastBuffer = 256

// Message is the envelope of every frame sent to clients
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// Options configures a Hub
type Options struct {
	Config         config.WebSocketConfig
	AllowedOrigins []string
	Metrics        *infrastructure.BusinessMetrics
	Logger         *slog.Logger
}

// Hub fans pipeline stage events out to connected WebSocket clients.
// It implements pipeline.EventSink.
type Hub struct {
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
	metrics  *infrastructure.BusinessMetrics
	logger   *slog.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan pipeline.Event
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]struct{}

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewHub creates a new Hub. Call Run to start delivering events.
func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if opts.Config.PongWait <= 0 {
		opts.Config.PongWait = 60 * time.Second
	}
	if opts.Config.PingPeriod <= 0 || opts.Config.PingPeriod >= opts.Config.PongWait {
		opts.Config.PingPeriod = opts.Config.PongWait * 9 / 10
	}
	h := &Hub{
		cfg:        opts.Config,
		metrics:    opts.Metrics,
		logger:     logger.With(slog.String("component", "websocket.hub")),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan pipeline.Event, broadcastBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  opts.Config.ReadBufferSize,
		WriteBufferSize: opts.Config.WriteBufferSize,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Publish queues an event for delivery without blocking the pipeline.
// Events are dropped when the queue is full or the hub has stopped.
func (h *Hub) Publish(e pipeline.Event) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- e:
	default:
		h.dropped.Add(1)
		h.logger.Warn("event queue full, dropping event",
			slog.String("domain", string(e.Domain)),
			slog.String("key", e.Key),
			slog.String("operation", string(e.Operation)))
	}
}

// Run delivers events until ctx is done, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	h.logger.InfoContext(ctx, "WebSocket hub started")
	defer h.shutdown(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			h.addClients(ctx, 1)
			h.logger.InfoContext(ctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", c.id),
				slog.String("remote_addr", c.remoteAddr))

			h.deliver(ctx, c, Message{
				Type: TypeConnection,
				Data: map[string]interface{}{
					"status":    "connected",
					"client_id": c.id,
					"filter":    c.filter,
				},
				Timestamp: time.Now().UTC(),
				TraceID:   c.traceID,
			})

		case c := <-h.unregister:
			h.remove(ctx, c, "client closed")

		case e := <-h.broadcast:
			h.fanOut(ctx, e)
		}
	}
}

func (h *Hub) fanOut(ctx context.Context, e pipeline.Event) {
	data, err := json.Marshal(Message{Type: e.Type, Data: e, Timestamp: e.Timestamp})
	if err != nil {
		h.logger.ErrorContext(ctx, "Error marshaling event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.filter.matches(e) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.send(ctx, c, data)
	}
}

func (h *Hub) deliver(ctx context.Context, c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error marshaling message", slog.String("error", err.Error()))
		return
	}
	h.send(ctx, c, data)
}

// send queues data on the client, disconnecting clients that cannot keep up
func (h *Hub) send(ctx context.Context, c *Client, data []byte) {
	select {
	case c.send <- data:
		h.sent.Add(1)
		if h.metrics != nil {
			h.metrics.WebSocketMessages.Add(ctx, 1)
		}
	default:
		h.remove(ctx, c, "send buffer full")
	}
}

func (h *Hub) remove(ctx context.Context, c *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.addClients(ctx, -1)
	h.logger.InfoContext(ctx, "Client unregistered",
		slog.String("client_id", c.id),
		slog.String("reason", reason),
		slog.Int("total_clients", count),
		slog.Duration("connection_duration", time.Since(c.connectedAt)))
}

func (h *Hub) shutdown(ctx context.Context) {
	close(h.done)

	h.mu.Lock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	h.addClients(context.WithoutCancel(ctx), -int64(n))
	h.logger.Info("WebSocket hub stopped",
		slog.Int("disconnected", n),
		slog.Int64("messages_sent", h.sent.Load()),
		slog.Int64("events_dropped", h.dropped.Load()))
}

func (h *Hub) addClients(ctx context.Context, n int64) {
	if h.metrics != nil && n != 0 {
		h.metrics.WebSocketClients.Add(ctx, n)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns delivery counters
func (h *Hub) Stats() map[string]int64 {
	return map[string]int64{
		"active_clients": int64(h.ClientCount()),
		"messages_sent":  h.sent.Load(),
		"events_dropped": h.dropped.Load(),
	}
}

// ServeHTTP upgrades the request and attaches a client. The optional domain
// and key query parameters restrict the events the client receives.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "event hub is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn, filter, middleware.GetRequestID(r.Context()))
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
