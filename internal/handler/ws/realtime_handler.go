package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wavelink-backend/internal/broker"
	"wavelink-backend/internal/domain"
	"wavelink-backend/internal/middleware"
	"wavelink-backend/internal/realtime"
	"wavelink-backend/pkg/constants"
	"wavelink-backend/pkg/logger"
	"wavelink-backend/pkg/metrics"
)

// ChannelAuthorizer decides whether a user may subscribe to a channel.
type ChannelAuthorizer interface {
	Authorize(ctx context.Context, userID uuid.UUID, channel string) error
}

// Hub fans broker messages out to WebSocket subscribers. One socket can hold
// any number of channel subscriptions; the hub keeps exactly one broker
// subscription per channel regardless of how many sockets listen on it.
//
// The hub never publishes. Client frames other than subscribe, unsubscribe,
// and ping are dropped: all signaling enters the system through the HTTP
// relay, which stamps the sender identity.
type Hub struct {
	// subscribers per channel name
	channels map[string]map[*Client]bool

	// cancel functions for per-channel broker subscriptions
	subscriptionCancels map[string]context.CancelFunc

	subscriber broker.Subscriber
	authorizer ChannelAuthorizer
	metrics    *metrics.Metrics

	mu sync.RWMutex

	broadcast  chan *broker.Message
	unregister chan *Client

	maxConnections int
	semaphore      chan struct{}
}

// Client is one WebSocket connection and the set of channels it listens on.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   uuid.UUID
	channels map[string]bool
	ctx      context.Context
	cancel   context.CancelFunc

	// closed guards against double-closing send; protected by hub.mu.
	closed bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		return middleware.AllowedOrigins()[origin]
	},
}

// NewHub creates a hub over the given broker subscriber.
func NewHub(subscriber broker.Subscriber, authorizer ChannelAuthorizer, m *metrics.Metrics, maxConnections int) *Hub {
	if maxConnections <= 0 {
		maxConnections = 1000
	}

	hub := &Hub{
		channels:            make(map[string]map[*Client]bool),
		subscriptionCancels: make(map[string]context.CancelFunc),
		subscriber:          subscriber,
		authorizer:          authorizer,
		metrics:             m,
		broadcast:           make(chan *broker.Message, 256),
		unregister:          make(chan *Client),
		maxConnections:      maxConnections,
		semaphore:           make(chan struct{}, maxConnections),
	}

	go hub.run()

	return hub
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			h.dropAllSubscriptionsLocked(client)
			h.closeClientLocked(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// deliver fans one broker message out to every subscriber of its channel.
func (h *Hub) deliver(msg *broker.Message) {
	frame, err := json.Marshal(&realtime.ServerEvent{
		Event:     msg.Event,
		Channel:   msg.Channel,
		Payload:   msg.Payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.channels[msg.Channel] {
		select {
		case client.send <- frame:
			if h.metrics != nil {
				h.metrics.RecordMessageDelivered(msg.Event)
			}
		default:
			// Slow consumer: drop the whole connection rather than let it
			// backpressure every other subscriber.
			h.dropAllSubscriptionsLocked(client)
			h.closeClientLocked(client)
		}
	}
}

// subscribe attaches a client to a channel, opening the broker subscription
// when the channel gains its first subscriber.
func (h *Hub) subscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.channels[channel] {
		return
	}

	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)

		ctx, cancel := context.WithCancel(context.Background())
		h.subscriptionCancels[channel] = cancel
		go h.pumpChannel(ctx, channel)
	}

	h.channels[channel][client] = true
	client.channels[channel] = true

	if h.metrics != nil {
		kind, _, _, err := domain.ParseChannel(channel)
		if err == nil {
			h.metrics.ChannelSubscribed(kind)
		}
	}
}

// unsubscribe detaches a client from a channel.
func (h *Hub) unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropSubscriberLocked(channel, client)
}

func (h *Hub) dropSubscriberLocked(channel string, client *Client) {
	clients, ok := h.channels[channel]
	if !ok || !clients[client] {
		return
	}

	delete(clients, client)
	delete(client.channels, channel)

	if h.metrics != nil {
		kind, _, _, err := domain.ParseChannel(channel)
		if err == nil {
			h.metrics.ChannelUnsubscribed(kind)
		}
	}

	// Last subscriber gone: tear down the broker subscription.
	if len(clients) == 0 {
		if cancel, ok := h.subscriptionCancels[channel]; ok {
			cancel()
			delete(h.subscriptionCancels, channel)
		}
		delete(h.channels, channel)
	}
}

func (h *Hub) dropAllSubscriptionsLocked(client *Client) {
	for channel := range client.channels {
		h.dropSubscriberLocked(channel, client)
	}
}

func (h *Hub) closeClientLocked(client *Client) {
	if client.closed {
		return
	}
	client.closed = true
	close(client.send)
	client.cancel()
}

// pumpChannel holds the broker subscription for one channel and feeds the
// hub's broadcast loop until the last subscriber leaves.
func (h *Hub) pumpChannel(ctx context.Context, channel string) {
	sub, err := h.subscriber.Subscribe(ctx, channel)
	if err != nil {
		logger.Error("broker subscription failed",
			zap.String("channel", channel),
			zap.Error(err))
		return
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			h.broadcast <- msg
		}
	}
}

// ServeWS upgrades an authenticated request to a realtime delivery socket.
func (h *Hub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("websocket connection rejected: at capacity",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}
	release := func() { <-h.semaphore }

	userIDVal, exists := c.Get("user_id")
	if !exists {
		release()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		release()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		release()
		logger.Warn("websocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   userID,
		channels: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}

	if h.metrics != nil {
		h.metrics.WebSocketConnected()
	}

	go client.writePump()
	go func() {
		client.readPump()
		release()
		if h.metrics != nil {
			h.metrics.WebSocketDisconnected()
		}
	}()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket closed",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}

		var cmd realtime.ClientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.sendEvent(realtime.EventError, "", "invalid frame")
			continue
		}

		c.handleCommand(&cmd)
	}
}

func (c *Client) handleCommand(cmd *realtime.ClientCommand) {
	switch cmd.Action {
	case realtime.ActionSubscribe:
		if err := c.hub.authorizer.Authorize(c.ctx, c.userID, cmd.Channel); err != nil {
			logger.Warn("channel subscription denied",
				zap.String("user_id", c.userID.String()),
				zap.String("channel", cmd.Channel),
				zap.Error(err))
			c.sendEvent(realtime.EventError, cmd.Channel, "subscription denied")
			return
		}
		c.hub.subscribe(c, cmd.Channel)
		c.sendEvent(realtime.EventSubscribed, cmd.Channel, "")

	case realtime.ActionUnsubscribe:
		c.hub.unsubscribe(c, cmd.Channel)
		c.sendEvent(realtime.EventUnsubscribed, cmd.Channel, "")

	case realtime.ActionPing:
		c.sendEvent(realtime.EventPong, "", "")

	default:
		// Delivery-only socket: anything else is dropped.
	}
}

// sendEvent queues a protocol frame; drops it if the client is backed up.
func (c *Client) sendEvent(event, channel, detail string) {
	ev := &realtime.ServerEvent{
		Event:     event,
		Channel:   channel,
		Timestamp: time.Now().UTC(),
	}
	if detail != "" {
		payload, _ := json.Marshal(gin.H{"detail": detail})
		ev.Payload = payload
	}

	frame, err := json.Marshal(ev)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
