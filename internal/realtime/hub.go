package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/aura-webinar/adbroker/internal/ads"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	sendBuffer = 64
)

// Hub fans ad lifecycle events out to connected bridge clients.
// Every event is also mirrored to Redis so other services can observe presentations.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
	redis   RedisPublisher
}

// RedisPublisher is the interface for mirroring events to Redis.
type RedisPublisher interface {
	PublishEvent(event string, payload []byte) error
}

// NewHub creates a new event hub. redisPub may be nil.
func NewHub(logger *zap.Logger, redisPub RedisPublisher) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		redis:   redisPub,
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("event client connected", zap.String("client_id", c.ID), zap.Int("clients", count))
}

// Unregister removes a client and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("event client disconnected", zap.String("client_id", c.ID))
}

// Publish implements ads.EventSink: local broadcast plus the Redis mirror.
func (h *Hub) Publish(ev ads.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("marshal ad event", zap.Error(err))
		return
	}
	h.Broadcast(ev, data)
	if h.redis != nil {
		if err := h.redis.PublishEvent(string(ev.Name), data); err != nil {
			h.logger.Warn("redis event mirror failed", zap.String("event", string(ev.Name)), zap.Error(err))
		}
	}
}

// Broadcast sends an encoded event to every local client whose filter accepts it.
func (h *Hub) Broadcast(ev ads.Event, data []byte) {
	msg := WSMessage{Event: string(ev.Name), Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.accepts(ev) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("event client buffer full, dropping event", zap.String("client_id", c.ID), zap.String("event", msg.Event))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
