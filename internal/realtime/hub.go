// Package realtime pushes access changes to connected dashboards over WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentflow/backend/internal/access"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventAccessStatus carries an access.Result.
	EventAccessStatus = "access_status"
)

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishUserEvent(userID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to user channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeUser(userID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains user_id -> set of connections. A user may have several tabs open.
type Hub struct {
	users    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// NewHub creates a new WebSocket hub. Either Redis side may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		users:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client. Starts the Redis subscription for the user on the first connection.
// The subscribe round trip runs outside the lock so a slow Redis never stalls delivery to other users.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	first := h.users[c.UserID] == nil
	if first {
		h.users[c.UserID] = make(map[string]*Client)
	}
	h.users[c.UserID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))

	if first && h.redisSub != nil {
		h.subscribe(c.UserID)
	}
}

func (h *Hub) subscribe(userID uuid.UUID) {
	cancel, err := h.redisSub.SubscribeUser(userID, func(event string, payload []byte) {
		h.SendToUser(userID, event, json.RawMessage(payload))
	})
	if err != nil {
		h.logger.Warn("redis subscribe failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}

	h.mu.Lock()
	// The user may have left, or a later first connection may have subscribed, while we were waiting.
	keep := len(h.users[userID]) > 0 && h.subs[userID] == nil
	if keep {
		h.subs[userID] = cancel
	}
	h.mu.Unlock()
	if !keep {
		cancel()
	}
}

// Unregister removes a client. Cancels the Redis subscription when the user's last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.users[c.UserID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.users, c.UserID)
			if cancel, ok := h.subs[c.UserID]; ok {
				cancel()
				delete(h.subs, c.UserID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// SendToUser delivers a message to every local connection of the user.
func (h *Hub) SendToUser(userID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.users[userID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// PublishToUser routes through Redis when configured so every instance (this one included)
// delivers exactly once; otherwise it delivers locally.
func (h *Hub) PublishToUser(userID uuid.UUID, event string, payload interface{}) {
	if h.redis == nil {
		h.SendToUser(userID, event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := h.redis.PublishUserEvent(userID, event, data); err != nil {
		h.logger.Warn("redis publish failed, delivering locally", zap.Error(err))
		h.SendToUser(userID, event, payload)
	}
}

// Connections returns the number of local connections of a user.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// AccessListener forwards every resolved access result to the user's dashboards.
func (h *Hub) AccessListener() access.Listener {
	return func(_ context.Context, _ access.Event, res access.Result) {
		h.PublishToUser(res.UserID, EventAccessStatus, res)
	}
}

// PublishAccessListener is the listener for processes without a hub (the worker).
func PublishAccessListener(pub RedisPublisher, logger *zap.Logger) access.Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, ev access.Event, res access.Result) {
		data, err := json.Marshal(res)
		if err != nil {
			return
		}
		if err := pub.PublishUserEvent(res.UserID, EventAccessStatus, data); err != nil {
			logger.Warn("publish access status failed", zap.String("user_id", res.UserID.String()),
				zap.String("event", string(ev.Type)), zap.Error(err))
		}
	}
}
