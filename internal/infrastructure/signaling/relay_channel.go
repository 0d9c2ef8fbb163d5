package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RelayChannel carries signaling messages through the relay daemon over a
// websocket per channel key. It is the backend for deployments without a
// shared Redis.
type RelayChannel struct {
	url          string
	writeTimeout time.Duration
	pingInterval time.Duration

	mu    sync.Mutex
	conns map[domain.ChannelKey]*relaySubscription

	logger *zap.SugaredLogger
}

func NewRelayChannel(url string, logger *zap.SugaredLogger) *RelayChannel {
	return &RelayChannel{
		url:          url,
		writeTimeout: 10 * time.Second,
		pingInterval: 30 * time.Second,
		conns:        make(map[domain.ChannelKey]*relaySubscription),
		logger:       logger,
	}
}

func (c *RelayChannel) Open(ctx context.Context, key domain.ChannelKey, self domain.ParticipantID) (ports.Subscription, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial signaling relay: %w", err)
	}

	join := Frame{Type: FrameJoin, Channel: key, Sender: self}
	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to join signaling channel: %w", err)
	}

	sub := &relaySubscription{
		channel:  c,
		conn:     conn,
		key:      key,
		self:     self,
		handlers: make(map[domain.MessageKind][]func(domain.SignalMessage)),
		done:     make(chan struct{}),
		logger:   c.logger,
	}

	c.mu.Lock()
	if old := c.conns[key]; old != nil {
		// A stale subscription for the same key is superseded.
		go old.Close()
	}
	c.conns[key] = sub
	c.mu.Unlock()

	go sub.readLoop()
	go sub.pingLoop(c.pingInterval, c.writeTimeout)

	c.logger.Infow("joined signaling relay", "url", c.url, "channel_key", key, "participant", self)
	return sub, nil
}

func (c *RelayChannel) Publish(ctx context.Context, key domain.ChannelKey, msg domain.SignalMessage) error {
	c.mu.Lock()
	sub := c.conns[key]
	c.mu.Unlock()

	if sub == nil {
		return fmt.Errorf("signaling channel %s is not open", key)
	}
	return sub.send(Frame{
		Type:    FrameSignal,
		Channel: key,
		Sender:  msg.Sender,
		Message: &msg,
	})
}

func (c *RelayChannel) remove(key domain.ChannelKey, sub *relaySubscription) {
	c.mu.Lock()
	if c.conns[key] == sub {
		delete(c.conns, key)
	}
	c.mu.Unlock()
}

type relaySubscription struct {
	channel *RelayChannel
	conn    *websocket.Conn
	key     domain.ChannelKey
	self    domain.ParticipantID

	mu       sync.Mutex
	writeMu  sync.Mutex
	handlers map[domain.MessageKind][]func(domain.SignalMessage)

	closeOnce sync.Once
	done      chan struct{}
	logger    *zap.SugaredLogger
}

func (s *relaySubscription) OnMessage(kind domain.MessageKind, handler func(domain.SignalMessage)) {
	s.mu.Lock()
	s.handlers[kind] = append(s.handlers[kind], handler)
	s.mu.Unlock()
}

func (s *relaySubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.channel.remove(s.key, s)
		err = s.conn.Close()
	})
	return err
}

func (s *relaySubscription) send(frame Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.channel.writeTimeout))
	if err := s.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to write relay frame: %w", err)
	}
	return nil
}

func (s *relaySubscription) readLoop() {
	defer s.Close()

	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			select {
			case <-s.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Warnw("relay connection lost", "channel_key", s.key, "error", err)
				}
			}
			return
		}

		switch frame.Type {
		case FrameSignal:
			if frame.Message == nil || frame.Message.Sender == s.self {
				continue
			}
			s.dispatch(*frame.Message)
		case FrameError:
			s.logger.Warnw("relay reported error", "channel_key", s.key, "error", frame.Error)
		}
	}
}

func (s *relaySubscription) pingLoop(interval, writeTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Warnw("relay ping failed", "channel_key", s.key, "error", err)
				s.Close()
				return
			}
		}
	}
}

func (s *relaySubscription) dispatch(msg domain.SignalMessage) {
	s.mu.Lock()
	handlers := make([]func(domain.SignalMessage), len(s.handlers[msg.Kind]))
	copy(handlers, s.handlers[msg.Kind])
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
}
