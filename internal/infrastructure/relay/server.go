package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"peerline/internal/core/domain"
	"peerline/internal/infrastructure/signaling"
	"peerline/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server is the websocket signaling relay. Each client joins exactly one
// channel; signal frames fan out to every other client on the same channel.
// The relay never inspects SDP or candidate payloads and retains nothing.
type Server struct {
	channels map[domain.ChannelKey]map[*client]struct{}
	mu       sync.RWMutex

	pingInterval   time.Duration
	pongTimeout    time.Duration
	writeTimeout   time.Duration
	maxMessageSize int64
	messageRate    rate.Limit
	messageBurst   int

	logger *zap.SugaredLogger
}

type client struct {
	conn    *websocket.Conn
	channel domain.ChannelKey
	sender  domain.ParticipantID
	writeMu sync.Mutex
}

func NewServer(logger *zap.SugaredLogger) *Server {
	return &Server{
		channels:       make(map[domain.ChannelKey]map[*client]struct{}),
		pingInterval:   30 * time.Second,
		pongTimeout:    60 * time.Second,
		writeTimeout:   10 * time.Second,
		maxMessageSize: 64 * 1024,
		messageRate:    rate.Limit(50),
		messageBurst:   100,
		logger:         logger,
	}
}

// SetPingInterval sets the ping interval for websocket connections.
func (s *Server) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetMessageRate caps per-client signal frames per second.
func (s *Server) SetMessageRate(perSecond float64, burst int) {
	s.messageRate = rate.Limit(perSecond)
	s.messageBurst = burst
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	// The first frame must be a join.
	var join signaling.Frame
	if err := conn.ReadJSON(&join); err != nil {
		s.logger.Warnw("failed to read join frame", "error", err)
		return
	}
	if join.Type != signaling.FrameJoin {
		s.sendError(conn, "first frame must be a join")
		return
	}
	if err := validation.ValidateChannelKey(string(join.Channel)); err != nil {
		s.sendError(conn, "invalid channel key")
		return
	}
	if err := validation.ValidateParticipantID(string(join.Sender)); err != nil {
		s.sendError(conn, "invalid sender")
		return
	}

	c := &client{conn: conn, channel: join.Channel, sender: join.Sender}
	s.register(c)
	defer s.unregister(c)

	s.logger.Infow("client joined",
		"channel_key", c.channel,
		"sender", c.sender,
		"remote_addr", r.RemoteAddr,
	)

	limiter := rate.NewLimiter(s.messageRate, s.messageBurst)
	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	frameChan := make(chan signaling.Frame, 16)
	errorChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go s.readFrames(conn, frameChan, errorChan, done)

	for {
		select {
		case frame := <-frameChan:
			if !limiter.Allow() {
				s.sendError(conn, "message rate exceeded")
				continue
			}
			if err := s.handleFrame(c, frame); err != nil {
				s.logger.Infow("rejected frame",
					"channel_key", c.channel,
					"sender", c.sender,
					"error", err,
				)
				s.sendError(conn, err.Error())
			}

		case <-pingTicker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				s.logger.Infow("ping failed", "channel_key", c.channel, "sender", c.sender, "error", err)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read failed", "channel_key", c.channel, "sender", c.sender, "error", err)
			}
			return
		}
	}
}

// readFrames pumps inbound frames until the connection errors or done
// closes. The handler can return with frames still pending, so the send
// must never block past the connection's lifetime.
func (s *Server) readFrames(conn *websocket.Conn, frames chan<- signaling.Frame, errs chan<- error, done <-chan struct{}) {
	for {
		var frame signaling.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			select {
			case errs <- err:
			case <-done:
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))

		select {
		case frames <- frame:
		case <-done:
			return
		}
	}
}

func (s *Server) handleFrame(from *client, frame signaling.Frame) error {
	if frame.Type != signaling.FrameSignal {
		return errUnexpectedFrame(frame.Type)
	}
	if frame.Message == nil {
		return errEmptySignal
	}
	// The sender identity was fixed at join time; a client cannot spoof
	// frames on behalf of its peer.
	if frame.Message.Sender != from.sender {
		return errSenderMismatch
	}

	s.broadcast(from, *frame.Message)
	return nil
}

// broadcast fans the message out to every other client on the channel.
// Best-effort: a slow or dead recipient is logged and skipped.
func (s *Server) broadcast(from *client, msg domain.SignalMessage) {
	s.mu.RLock()
	peers := make([]*client, 0, len(s.channels[from.channel]))
	for c := range s.channels[from.channel] {
		if c != from {
			peers = append(peers, c)
		}
	}
	s.mu.RUnlock()

	frame := signaling.Frame{
		Type:    signaling.FrameSignal,
		Channel: from.channel,
		Sender:  msg.Sender,
		Message: &msg,
	}
	for _, peer := range peers {
		peer.writeMu.Lock()
		peer.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		err := peer.conn.WriteJSON(frame)
		peer.writeMu.Unlock()
		if err != nil {
			s.logger.Warnw("failed to forward signal",
				"channel_key", from.channel,
				"to", peer.sender,
				"kind", msg.Kind,
				"error", err,
			)
		}
	}

	s.logger.Debugw("forwarded signal",
		"channel_key", from.channel,
		"from", msg.Sender,
		"kind", msg.Kind,
		"recipients", len(peers),
	)
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channels[c.channel] == nil {
		s.channels[c.channel] = make(map[*client]struct{})
	}
	s.channels[c.channel][c] = struct{}{}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.channels[c.channel], c)
	if len(s.channels[c.channel]) == 0 {
		delete(s.channels, c.channel)
	}
	s.mu.Unlock()

	s.logger.Infow("client left", "channel_key", c.channel, "sender", c.sender)
}

func (s *Server) sendError(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	conn.WriteJSON(signaling.Frame{Type: signaling.FrameError, Error: message})
}

// ChannelCount reports the number of live channels, for health reporting.
func (s *Server) ChannelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, clients := range s.channels {
		count += len(clients)
	}
	return count
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"channels":  s.ChannelCount(),
		"clients":   s.ClientCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
