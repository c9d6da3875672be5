package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wschoenell/chimera-manager/internal/infrastructure/config"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/logging"
)

// Frame types on the live event stream.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameEvent       = "event"
	FrameAck         = "ack"
	FrameError       = "error"
)

// AllEvents subscribes to every event. A pattern ending in ".*" matches
// every event under that prefix, e.g. "item.*".
const AllEvents = "*"

const (
	outboxSize          = 64
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// Frame is one message on the stream, in either direction. Clients send
// subscribe, unsubscribe and ping frames; the supervisor sends events and
// replies.
type Frame struct {
	Type    string    `json:"type"`
	ID      string    `json:"id,omitempty"`
	Event   string    `json:"event,omitempty"`
	Events  []string  `json:"events,omitempty"`
	Time    time.Time `json:"time,omitzero"`
	Payload any       `json:"payload,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Hub fans supervisor events out to stream subscribers. It implements
// supervisor.Publisher and notify.Publisher.
type Hub struct {
	logger   *logging.Logger
	maxFrame int64
	ping     time.Duration
	pongWait time.Duration

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub creates a hub with the stream settings from cfg.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		logger:   logger,
		maxFrame: int64(cfg.MaxMessageSize),
		ping:     time.Duration(cfg.PingInterval) * time.Second,
		pongWait: time.Duration(cfg.PongTimeout) * time.Second,
		subs:     make(map[*subscriber]struct{}),
	}
	if h.ping <= 0 {
		h.ping = defaultPingInterval
	}
	if h.pongWait <= 0 {
		h.pongWait = defaultPongTimeout
	}
	return h
}

// Run blocks until ctx is done and then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs {
		c.close()
		delete(h.subs, c)
	}
}

// Publish sends event to every subscriber whose patterns match it. A
// subscriber whose outbox is full misses the event.
func (h *Hub) Publish(event string, payload any) {
	data, err := json.Marshal(Frame{Type: FrameEvent, Event: event, Time: time.Now().UTC(), Payload: payload})
	if err != nil {
		h.logger.Error("encoding stream event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for c := range h.subs {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.wants(event) {
			continue
		}
		if !c.deliver(data) {
			h.logger.Warn("stream subscriber lagging, event dropped", "event", event, "subject", c.subject)
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) add(c *subscriber) {
	h.mu.Lock()
	h.subs[c] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("stream subscriber connected", "subject", c.subject, "clients", n)
}

func (h *Hub) remove(c *subscriber) {
	h.mu.Lock()
	delete(h.subs, c)
	n := len(h.subs)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("stream subscriber disconnected", "subject", c.subject, "clients", n)
}

// subscriber is one stream connection. out is never closed; quit ends the
// writer instead, so a late Publish cannot panic.
type subscriber struct {
	conn    *websocket.Conn
	subject string
	out     chan []byte
	quit    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	patterns map[string]struct{}
}

func newSubscriber(conn *websocket.Conn, subject string) *subscriber {
	return &subscriber{
		conn:     conn,
		subject:  subject,
		out:      make(chan []byte, outboxSize),
		quit:     make(chan struct{}),
		patterns: make(map[string]struct{}),
	}
}

func (c *subscriber) close() {
	c.once.Do(func() { close(c.quit) })
}

func (c *subscriber) deliver(data []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *subscriber) wants(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p := range c.patterns {
		if matchEvent(p, event) {
			return true
		}
	}
	return false
}

// matchEvent reports whether event falls under pattern.
func matchEvent(pattern, event string) bool {
	switch {
	case pattern == AllEvents:
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(event, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == event
	}
}

// update adds or removes patterns and returns the resulting set.
func (c *subscriber) update(patterns []string, subscribe bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range patterns {
		if subscribe {
			c.patterns[p] = struct{}{}
		} else {
			delete(c.patterns, p)
		}
	}
	current := make([]string, 0, len(c.patterns))
	for p := range c.patterns {
		current = append(current, p)
	}
	return current
}

func (c *subscriber) reply(f Frame) {
	f.Time = time.Now().UTC()
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.deliver(data)
}

func (c *subscriber) handle(f Frame) {
	switch f.Type {
	case FrameSubscribe, FrameUnsubscribe:
		if len(f.Events) == 0 {
			c.reply(Frame{Type: FrameError, ID: f.ID, Error: "events is required"})
			return
		}
		for _, p := range f.Events {
			if strings.TrimSpace(p) == "" {
				c.reply(Frame{Type: FrameError, ID: f.ID, Error: "empty event pattern"})
				return
			}
		}
		current := c.update(f.Events, f.Type == FrameSubscribe)
		c.reply(Frame{Type: FrameAck, ID: f.ID, Events: current})
	case FramePing:
		c.reply(Frame{Type: FramePong, ID: f.ID})
	default:
		c.reply(Frame{Type: FrameError, ID: f.ID, Error: "unknown frame type: " + f.Type})
	}
}

// readLoop handles client frames until the connection fails.
func (c *subscriber) readLoop(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	if h.maxFrame > 0 {
		c.conn.SetReadLimit(h.maxFrame)
	}
	wait := h.ping + h.pongWait
	//nolint:errcheck // Deadline errors surface on the next read
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("stream read failed", "subject", c.subject, "error", err)
			}
			return
		}
		//nolint:errcheck // Deadline errors surface on the next read
		c.conn.SetReadDeadline(time.Now().Add(wait))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.reply(Frame{Type: FrameError, Error: "invalid JSON frame"})
			continue
		}
		c.handle(f)
	}
}

// writeLoop drains the outbox and keeps the connection alive with pings.
func (c *subscriber) writeLoop(h *Hub) {
	ticker := time.NewTicker(h.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.quit:
			//nolint:errcheck // Best-effort close frame
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "supervisor stopping"),
				time.Now().Add(h.pongWait))
			return
		case data := <-c.out:
			//nolint:errcheck // Write errors are caught below
			c.conn.SetWriteDeadline(time.Now().Add(h.pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.pongWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

// The single-use ticket authenticates the connection, so any origin is
// accepted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket upgrades a ticketed request into a stream subscriber.
// Tickets come from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newSubscriber(conn, entry.subject)
	s.hub.add(c)
	go c.writeLoop(s.hub)
	go c.readLoop(s.hub)
}
