// Package realtime pushes order, task and chat events to websocket clients.
//
// Clients connect to /ws with an access token and one or more topics
// (order:<id>, artist:<id>, design:<room>, branch:<room>). Each topic is
// checked by the hub's Authorizer before the client is subscribed. Services
// publish through the Publisher interface; the hub fans events out to the
// subscribers of the event's topic.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/auth"
)

// Event types.
const (
	EventWelcome      = "welcome"
	EventSubscribed   = "subscribed"
	EventError        = "error"
	EventOrderStatus  = "order_status"
	EventTaskAssigned = "task_assigned"
	EventTaskStatus   = "task_status"
	EventStageUpdated = "stage_updated"
	EventMessage      = "message"
	EventRoomUpdated  = "room_updated"
)

// Event is a message delivered to subscribers of Topic.
type Event struct {
	Topic     string          `json:"topic,omitempty"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Publisher sends events to topic subscribers.
type Publisher interface {
	Publish(topic, eventType string, data any)
}

// Authorizer decides whether p may subscribe to topic.
type Authorizer func(ctx context.Context, p *auth.Principal, topic string) error

// Topic helpers.
func OrderTopic(orderID string) string { return "order:" + orderID }
func ArtistTopic(artistID string) string { return "artist:" + artistID }
func DesignTopic(roomID string) string  { return "design:" + roomID }
func BranchTopic(roomID string) string  { return "branch:" + roomID }

// SplitTopic returns the kind and id of a topic such as "order:123".
func SplitTopic(topic string) (kind, id string, ok bool) {
	kind, id, ok = strings.Cut(topic, ":")
	if !ok || id == "" {
		return "", "", false
	}
	switch kind {
	case "order", "artist", "design", "branch":
		return kind, id, true
	}
	return "", "", false
}

type client struct {
	conn      *websocket.Conn
	principal *auth.Principal

	mu     sync.Mutex
	topics map[string]bool
}

func (c *client) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

func (c *client) setTopic(topic string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.topics[topic] = true
	} else {
		delete(c.topics, topic)
	}
}

func (c *client) topicList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

// Config holds hub settings.
type Config struct {
	Verifier   auth.Verifier
	Authorize  Authorizer
	Origins    []string
	BufferSize int
	Logger     *zap.Logger
}

// Hub manages websocket clients and topic fan-out.
type Hub struct {
	verifier  auth.Verifier
	authorize Authorizer
	origins   []string
	log       *zap.Logger

	clients   map[*client]struct{}
	clientsMu sync.RWMutex

	broadcast chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewHub creates a hub. Start must be called before events are delivered.
func NewHub(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.Authorize == nil {
		cfg.Authorize = func(context.Context, *auth.Principal, string) error { return nil }
	}
	if len(cfg.Origins) == 0 {
		cfg.Origins = []string{"*"}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		verifier:  cfg.Verifier,
		authorize: cfg.Authorize,
		origins:   cfg.Origins,
		log:       cfg.Logger,
		clients:   make(map[*client]struct{}),
		broadcast: make(chan Event, cfg.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the broadcast loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop disconnects every client and waits for the hub goroutines.
func (h *Hub) Stop() {
	h.once.Do(func() {
		h.cancel()
		h.clientsMu.Lock()
		for c := range h.clients {
			_ = c.conn.Close(websocket.StatusGoingAway, "Server shutting down")
			delete(h.clients, c)
		}
		h.clientsMu.Unlock()
		h.wg.Wait()
	})
}

// Publish queues an event. When the queue is full the event is dropped.
func (h *Hub) Publish(topic, eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Warn("failed to marshal event", zap.String("topic", topic), zap.Error(err))
		return
	}
	ev := Event{Topic: topic, Type: eventType, Timestamp: time.Now().UTC(), Data: raw}
	select {
	case h.broadcast <- ev:
	case <-h.ctx.Done():
	default:
		h.log.Warn("broadcast queue full, dropping event", zap.String("topic", topic), zap.String("type", eventType))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case ev := <-h.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			h.clientsMu.RLock()
			targets := make([]*client, 0, len(h.clients))
			for c := range h.clients {
				if c.subscribed(ev.Topic) {
					targets = append(targets, c)
				}
			}
			h.clientsMu.RUnlock()

			for _, c := range targets {
				if err := h.write(c, data); err != nil {
					h.log.Debug("failed to send to client", zap.Error(err))
					h.removeClient(c)
				}
			}
		}
	}
}

func (h *Hub) write(c *client, data []byte) error {
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (h *Hub) send(c *client, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = h.write(c, data)
}

// ServeHTTP authenticates the caller, authorises the requested topics and
// upgrades the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r)
	}
	if token == "" {
		writeError(w, apperr.Unauthorized("Access token required"))
		return
	}
	if h.verifier == nil {
		writeError(w, apperr.Unavailable("Realtime authentication is not configured"))
		return
	}
	p, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	var topics []string
	for _, raw := range r.URL.Query()["topic"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}
	for _, t := range topics {
		if err := h.checkTopic(r.Context(), p, t); err != nil {
			writeError(w, err)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, principal: p, topics: make(map[string]bool)}
	for _, t := range topics {
		c.topics[t] = true
	}

	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.log.Debug("client connected", zap.String("user", p.ID), zap.Int("clients", count))

	welcome, _ := json.Marshal(map[string]any{"user_id": p.ID, "topics": c.topicList()})
	h.send(c, Event{Type: EventWelcome, Data: welcome})

	h.wg.Add(1)
	go h.readLoop(c)
}

func (h *Hub) checkTopic(ctx context.Context, p *auth.Principal, topic string) error {
	if _, _, ok := SplitTopic(topic); !ok {
		return apperr.Invalid("Invalid topic").With("topic", topic)
	}
	return h.authorize(ctx, p, topic)
}

// clientMessage is a subscription change sent by a client.
type clientMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.removeClient(c)
	for {
		_, data, err := c.conn.Read(h.ctx)
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(c, apperr.Invalid("Invalid message"))
			continue
		}
		switch msg.Action {
		case "subscribe":
			if err := h.checkTopic(h.ctx, c.principal, msg.Topic); err != nil {
				h.sendError(c, err)
				continue
			}
			c.setTopic(msg.Topic, true)
			ack, _ := json.Marshal(map[string]any{"topics": c.topicList()})
			h.send(c, Event{Topic: msg.Topic, Type: EventSubscribed, Data: ack})
		case "unsubscribe":
			c.setTopic(msg.Topic, false)
		default:
			h.sendError(c, apperr.Invalid("Unknown action"))
		}
	}
}

func (h *Hub) sendError(c *client, err error) {
	msg := "Internal server error"
	if e, ok := apperr.As(err); ok {
		msg = e.Message
	}
	data, _ := json.Marshal(map[string]string{"error": msg})
	h.send(c, Event{Type: EventError, Data: data})
}

func (h *Hub) removeClient(c *client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.clientsMu.Unlock()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	h.log.Debug("client disconnected", zap.Int("clients", count))
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]any{"error": "Internal server error"}
	var e *apperr.Error
	if errors.As(err, &e) {
		status = apperr.HTTPStatus(e.Kind)
		body["error"] = e.Message
		for k, v := range e.Fields {
			body[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
