package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "peerline:signal:"

// RedisChannel carries signaling messages over Redis pub/sub, one Redis
// channel per call channel key. Pub/sub has no history, so delivery matches
// the at-most-once contract: a message published before the remote side
// subscribes is simply lost.
type RedisChannel struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewRedisChannel(client *redis.Client, logger *zap.SugaredLogger) *RedisChannel {
	return &RedisChannel{
		client: client,
		logger: logger,
	}
}

func redisTopic(key domain.ChannelKey) string {
	return redisChannelPrefix + string(key)
}

func (c *RedisChannel) Open(ctx context.Context, key domain.ChannelKey, self domain.ParticipantID) (ports.Subscription, error) {
	pubsub := c.client.Subscribe(ctx, redisTopic(key))

	// Wait for the subscription to be confirmed so messages published right
	// after Open returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to signaling channel: %w", err)
	}

	sub := &redisSubscription{
		pubsub:   pubsub,
		key:      key,
		self:     self,
		handlers: make(map[domain.MessageKind][]func(domain.SignalMessage)),
		done:     make(chan struct{}),
		logger:   c.logger,
	}
	go sub.readLoop()

	c.logger.Infow("opened redis signaling subscription", "channel_key", key, "participant", self)
	return sub, nil
}

func (c *RedisChannel) Publish(ctx context.Context, key domain.ChannelKey, msg domain.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signal message: %w", err)
	}

	if err := c.client.Publish(ctx, redisTopic(key), data).Err(); err != nil {
		return fmt.Errorf("failed to publish signal message: %w", err)
	}

	c.logger.Debugw("published signal",
		"channel_key", key,
		"kind", msg.Kind,
		"sender", msg.Sender,
	)
	return nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	key    domain.ChannelKey
	self   domain.ParticipantID

	mu       sync.Mutex
	handlers map[domain.MessageKind][]func(domain.SignalMessage)

	closeOnce sync.Once
	done      chan struct{}
	logger    *zap.SugaredLogger
}

func (s *redisSubscription) OnMessage(kind domain.MessageKind, handler func(domain.SignalMessage)) {
	s.mu.Lock()
	s.handlers[kind] = append(s.handlers[kind], handler)
	s.mu.Unlock()
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) readLoop() {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}

			var msg domain.SignalMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				s.logger.Warnw("failed to unmarshal signal message",
					"channel_key", s.key,
					"error", err,
				)
				continue
			}

			// Skip our own messages; pub/sub echoes to all subscribers.
			if msg.Sender == s.self {
				continue
			}

			s.dispatch(msg)
		}
	}
}

func (s *redisSubscription) dispatch(msg domain.SignalMessage) {
	s.mu.Lock()
	handlers := make([]func(domain.SignalMessage), len(s.handlers[msg.Kind]))
	copy(handlers, s.handlers[msg.Kind])
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
}
