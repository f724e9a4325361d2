package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wavelink-backend/pkg/constants"
	apperrors "wavelink-backend/pkg/errors"
	"wavelink-backend/pkg/logger"
)

const writeWait = 10 * time.Second

// Client is a WebSocket client for the delivery hub. One Client holds one
// socket; channels are multiplexed over it with subscribe/unsubscribe
// commands. All methods are safe for concurrent use.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]*ChannelSubscription
	pending map[string]chan error
	closed  bool
	done    chan struct{}
}

// ChannelSubscription is a live subscription to one channel. Events stop
// flowing after Close or after the socket drops.
type ChannelSubscription struct {
	channel string
	events  chan *ServerEvent
	client  *Client
	once    sync.Once
}

// Events returns the stream of broadcast events for the channel. The channel
// is closed when the subscription or the socket closes.
func (s *ChannelSubscription) Events() <-chan *ServerEvent {
	return s.events
}

// Close unsubscribes from the channel. The unsubscribe command is
// best-effort; a dropped socket already implies the server forgot us.
func (s *ChannelSubscription) Close() error {
	s.once.Do(func() {
		s.client.dropSubscription(s.channel)
		s.client.writeCommand(&ClientCommand{Action: ActionUnsubscribe, Channel: s.channel})
	})
	return nil
}

// Dial connects to the hub at wsURL, authenticating with the bearer token.
func Dial(ctx context.Context, wsURL, token string) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, apperrors.Wrap(apperrors.ErrCodeUnauthorized, "WebSocket handshake rejected", err)
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeServiceUnavailable, "WebSocket dial failed", err)
	}

	c := &Client{
		conn:    conn,
		subs:    make(map[string]*ChannelSubscription),
		pending: make(map[string]chan error),
		done:    make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + writeWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + writeWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	go c.readLoop()
	return c, nil
}

// Subscribe asks the hub for the channel and waits for the ack. The server
// authorizes each subscription; denial surfaces as a FORBIDDEN error.
func (c *Client) Subscribe(ctx context.Context, channel string) (*ChannelSubscription, error) {
	ack := make(chan error, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrCodeServiceUnavailable, "connection closed")
	}
	if _, exists := c.subs[channel]; exists {
		c.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "already subscribed to "+channel)
	}
	sub := &ChannelSubscription{
		channel: channel,
		events:  make(chan *ServerEvent, 64),
		client:  c,
	}
	c.subs[channel] = sub
	c.pending[channel] = ack
	c.mu.Unlock()

	if err := c.writeCommand(&ClientCommand{Action: ActionSubscribe, Channel: channel}); err != nil {
		c.dropSubscription(channel)
		return nil, err
	}

	select {
	case err := <-ack:
		if err != nil {
			c.dropSubscription(channel)
			return nil, err
		}
		return sub, nil
	case <-ctx.Done():
		c.dropSubscription(channel)
		return nil, ctx.Err()
	case <-c.done:
		return nil, apperrors.New(apperrors.ErrCodeServiceUnavailable, "connection closed")
	}
}

// Close tears down the socket and every subscription.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	for channel, ack := range c.pending {
		ack <- apperrors.New(apperrors.ErrCodeServiceUnavailable, "connection closed")
		delete(c.pending, channel)
	}
	for channel, sub := range c.subs {
		close(sub.events)
		delete(c.subs, channel)
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		var ev ServerEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("WebSocket read failed", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + writeWait))
		c.dispatch(&ev)
	}
}

func (c *Client) dispatch(ev *ServerEvent) {
	switch ev.Event {
	case EventSubscribed:
		c.resolvePending(ev.Channel, nil)

	case EventError:
		if ev.Channel != "" {
			c.resolvePending(ev.Channel, apperrors.New(apperrors.ErrCodeForbidden, "subscription denied for "+ev.Channel))
			return
		}
		logger.Warn("server protocol error", zap.ByteString("payload", ev.Payload))

	case EventUnsubscribed, EventPong:
		// Acks with no waiter.

	default:
		c.deliver(ev)
	}
}

func (c *Client) deliver(ev *ServerEvent) {
	c.mu.Lock()
	sub, ok := c.subs[ev.Channel]
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case sub.events <- ev:
	default:
		// Consumer stalled; dropping beats blocking the socket reader.
		logger.Warn("dropping event for slow consumer",
			zap.String("channel", ev.Channel),
			zap.String("event", ev.Event))
	}
}

func (c *Client) resolvePending(channel string, err error) {
	c.mu.Lock()
	ack, ok := c.pending[channel]
	if ok {
		delete(c.pending, channel)
	}
	c.mu.Unlock()
	if ok {
		ack <- err
	}
}

func (c *Client) dropSubscription(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[channel]; ok {
		delete(c.subs, channel)
		if !c.closed {
			close(sub.events)
		}
	}
	delete(c.pending, channel)
}

func (c *Client) writeCommand(cmd *ClientCommand) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(cmd); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeServiceUnavailable, "WebSocket write failed", err)
	}
	return nil
}
