package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wavelink-backend/internal/database"
	"wavelink-backend/pkg/logger"
)

// redisChannelPrefix namespaces broadcast traffic inside the shared Redis.
const redisChannelPrefix = "broadcast:"

// RedisBroker implements Publisher and Subscriber over Redis pub/sub.
type RedisBroker struct {
	client *database.RedisClient
}

// NewRedisBroker creates a broker over the given Redis client
func NewRedisBroker(client *database.RedisClient) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish sends msg to every subscriber of msg.Channel
func (b *RedisBroker) Publish(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast message: %w", err)
	}

	if err := b.client.SafePublish(ctx, redisChannelPrefix+msg.Channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", msg.Channel, err)
	}

	return nil
}

// Subscribe opens a subscription to one broadcast channel. The returned
// subscription delivers until Close is called or ctx is cancelled.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := b.client.SafeSubscribe(ctx, redisChannelPrefix+channel)
	if pubsub == nil {
		return nil, fmt.Errorf("redis unavailable, cannot subscribe to %s", channel)
	}

	// Confirm the subscription before returning so callers can rely on
	// delivery starting from here.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan *Message, 64),
		done:   make(chan struct{}),
	}
	go sub.pump(ctx, channel)

	return sub, nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	out       chan *Message
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) C() <-chan *Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) pump(ctx context.Context, channel string) {
	defer close(s.out)
	ch := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}

			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				logger.Warn("dropping malformed broadcast message",
					zap.String("channel", channel),
					zap.Error(err))
				continue
			}

			select {
			case s.out <- &msg:
			default:
				// Slow consumer; drop rather than stall the pump. Call
				// signaling tolerates loss (ICE retransmits, offers are
				// re-sent by the UI).
				logger.Warn("dropping broadcast message for slow subscriber",
					zap.String("channel", channel))
			}
		}
	}
}
