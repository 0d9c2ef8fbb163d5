package signaling

import (
	"context"
	"sync"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"

	"go.uber.org/zap"
)

// MemoryChannel is an in-process signaling transport. Both participants must
// live in the same process, which is the case in tests and in the loopback
// mode of the call daemon.
type MemoryChannel struct {
	mu     sync.RWMutex
	subs   map[domain.ChannelKey][]*memorySubscription
	logger *zap.SugaredLogger
}

func NewMemoryChannel(logger *zap.SugaredLogger) *MemoryChannel {
	return &MemoryChannel{
		subs:   make(map[domain.ChannelKey][]*memorySubscription),
		logger: logger,
	}
}

func (c *MemoryChannel) Open(ctx context.Context, key domain.ChannelKey, self domain.ParticipantID) (ports.Subscription, error) {
	sub := &memorySubscription{
		channel:  c,
		key:      key,
		self:     self,
		handlers: make(map[domain.MessageKind][]func(domain.SignalMessage)),
	}

	c.mu.Lock()
	c.subs[key] = append(c.subs[key], sub)
	c.mu.Unlock()

	c.logger.Debugw("opened in-memory signaling subscription", "channel_key", key, "participant", self)
	return sub, nil
}

// Publish delivers the message to every other live subscriber on the key.
// Delivery is at-most-once: nothing is retained for late subscribers.
func (c *MemoryChannel) Publish(ctx context.Context, key domain.ChannelKey, msg domain.SignalMessage) error {
	c.mu.RLock()
	subs := make([]*memorySubscription, len(c.subs[key]))
	copy(subs, c.subs[key])
	c.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(msg)
	}
	return nil
}

func (c *MemoryChannel) remove(key domain.ChannelKey, sub *memorySubscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.subs[key]
	for i, s := range subs {
		if s == sub {
			c.subs[key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(c.subs[key]) == 0 {
		delete(c.subs, key)
	}
}

type memorySubscription struct {
	channel *MemoryChannel
	key     domain.ChannelKey
	self    domain.ParticipantID

	mu       sync.Mutex
	handlers map[domain.MessageKind][]func(domain.SignalMessage)
	closed   bool
}

func (s *memorySubscription) OnMessage(kind domain.MessageKind, handler func(domain.SignalMessage)) {
	s.mu.Lock()
	s.handlers[kind] = append(s.handlers[kind], handler)
	s.mu.Unlock()
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.channel.remove(s.key, s)
	return nil
}

func (s *memorySubscription) deliver(msg domain.SignalMessage) {
	s.mu.Lock()
	if s.closed || msg.Sender == s.self {
		s.mu.Unlock()
		return
	}
	handlers := make([]func(domain.SignalMessage), len(s.handlers[msg.Kind]))
	copy(handlers, s.handlers[msg.Kind])
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
}
