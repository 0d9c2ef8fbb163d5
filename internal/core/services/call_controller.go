package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"
	"peerline/pkg/tracing"

	"go.uber.org/zap"
)

// ControllerConfig holds per-session tunables.
type ControllerConfig struct {
	// NegotiationTimeout bounds the time between Start completing and the
	// session reaching Connected. Zero disables the timeout.
	NegotiationTimeout time.Duration
}

// CallController sequences one call session through its lifecycle:
// Idle -> Initializing -> Negotiating -> Connected -> Closing -> Closed,
// with a terminal Failed reachable from any non-terminal state.
//
// All command methods and signaling/transport callbacks serialize on one
// mutex, so transitions execute as discrete, non-overlapping turns.
type CallController struct {
	sessionID domain.SessionID
	localID   domain.ParticipantID
	remoteID  domain.ParticipantID
	role      domain.CallRole
	key       domain.ChannelKey
	video     bool
	cfg       ControllerConfig

	signaling ports.SignalingChannel
	capture   ports.MediaCapture
	connector ports.PeerConnector
	notifier  ports.Notifier
	observer  ports.CallObserver

	mu              sync.Mutex
	state           domain.CallState
	stream          ports.MediaStream
	sub             ports.Subscription
	pc              ports.PeerConnection
	remoteTracks    []ports.RemoteTrack
	earlyCandidates []domain.ICECandidate
	timer           *time.Timer
	failureNotified bool
	startedAt       time.Time
	connectedAt     time.Time

	logger *zap.SugaredLogger
}

func NewCallController(
	sessionID domain.SessionID,
	localID, remoteID domain.ParticipantID,
	role domain.CallRole,
	requestVideo bool,
	cfg ControllerConfig,
	signaling ports.SignalingChannel,
	capture ports.MediaCapture,
	connector ports.PeerConnector,
	notifier ports.Notifier,
	observer ports.CallObserver,
	logger *zap.SugaredLogger,
) *CallController {
	return &CallController{
		sessionID: sessionID,
		localID:   localID,
		remoteID:  remoteID,
		role:      role,
		key:       domain.DeriveChannelKey(localID, remoteID),
		video:     requestVideo,
		cfg:       cfg,
		signaling: signaling,
		capture:   capture,
		connector: connector,
		notifier:  notifier,
		observer:  observer,
		state:     domain.StateIdle,
		logger:    logger,
	}
}

// ChannelKey returns the signaling topic shared by both participants.
func (c *CallController) ChannelKey() domain.ChannelKey {
	return c.key
}

func (c *CallController) State() domain.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the UI-facing view of the session.
func (c *CallController) Snapshot() domain.CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	session := domain.CallSession{
		ID:                  c.sessionID,
		LocalParticipantID:  c.localID,
		RemoteParticipantID: c.remoteID,
		ChannelKey:          c.key,
		Role:                c.role,
		State:               c.state,
		StartedAt:           c.startedAt,
		ConnectedAt:         c.connectedAt,
	}
	if c.stream != nil {
		session.Muted = c.stream.Muted()
		session.VideoEnabled = c.stream.VideoEnabled()
	}
	return session
}

// RemoteTracks returns the remote media tracks, valid only while Connected.
func (c *CallController) RemoteTracks() []ports.RemoteTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	tracks := make([]ports.RemoteTrack, len(c.remoteTracks))
	copy(tracks, c.remoteTracks)
	return tracks
}

// Start acquires local media, opens the signaling subscription, and for the
// caller role publishes the initial offer. Valid only from Idle; the state
// check doubles as the negotiation-in-progress guard.
func (c *CallController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.StateIdle {
		c.mu.Unlock()
		return domain.ErrCallActive
	}
	c.startedAt = time.Now()
	c.setStateLocked(domain.StateInitializing)
	c.mu.Unlock()

	stream, err := c.capture.Acquire(ctx, c.video)
	if err != nil {
		c.fail(err, "Could not access your camera or microphone.")
		return err
	}

	c.mu.Lock()
	if c.state != domain.StateInitializing {
		// Ended while acquiring; release what we got and stop.
		c.mu.Unlock()
		stream.Release()
		return nil
	}
	c.stream = stream
	c.mu.Unlock()

	sub, err := c.signaling.Open(ctx, c.key, c.localID)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", domain.ErrSignalingUnavailable, err)
		c.fail(wrapped, "Could not reach the call service. Please try again.")
		return wrapped
	}

	c.mu.Lock()
	if c.state != domain.StateInitializing {
		c.mu.Unlock()
		if cerr := sub.Close(); cerr != nil {
			c.logger.Warnw("failed to close signaling subscription", "channel_key", c.key, "error", cerr)
		}
		return nil
	}
	c.sub = sub
	c.mu.Unlock()

	sub.OnMessage(domain.MessageOffer, c.handleOffer)
	sub.OnMessage(domain.MessageAnswer, c.handleAnswer)
	sub.OnMessage(domain.MessageICECandidate, c.handleCandidate)

	if c.role == domain.RoleCaller {
		if err := c.startCaller(ctx); err != nil {
			wrapped := fmt.Errorf("%w: %v", domain.ErrNegotiation, err)
			c.fail(wrapped, "Could not start the call.")
			return wrapped
		}
	}

	c.armNegotiationTimer()
	return nil
}

// ToggleMute flips the audio enabled flag on the local stream. A pure local
// side effect: no renegotiation, nothing published on the signaling channel.
func (c *CallController) ToggleMute() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil || c.state.Terminal() || c.state == domain.StateClosing {
		return false, domain.ErrNoActiveCall
	}
	c.stream.SetMuted(!c.stream.Muted())
	return c.stream.Muted(), nil
}

// ToggleVideo flips the video enabled flag on the local stream. Disabling
// video blanks the track without stopping camera acquisition.
func (c *CallController) ToggleVideo() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil || c.state.Terminal() || c.state == domain.StateClosing {
		return false, domain.ErrNoActiveCall
	}
	c.stream.SetVideoEnabled(!c.stream.VideoEnabled())
	return c.stream.VideoEnabled(), nil
}

// End tears the session down from any state and always lands in Closed.
// Each cleanup step is attempted independently; errors are logged, never
// propagated.
func (c *CallController) End() {
	c.mu.Lock()
	if c.state == domain.StateClosed {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(domain.StateClosing)
	c.mu.Unlock()

	c.cleanup()

	c.mu.Lock()
	c.setStateLocked(domain.StateClosed)
	c.mu.Unlock()
}

func (c *CallController) startCaller(ctx context.Context) error {
	pc, err := c.createPeer(ctx)
	if err != nil {
		return err
	}

	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		c.closePeer(pc)
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		c.closePeer(pc)
		return err
	}

	c.mu.Lock()
	c.pc = pc
	c.setStateLocked(domain.StateNegotiating)
	c.mu.Unlock()

	c.publish(domain.SignalMessage{
		Kind:   domain.MessageOffer,
		Sender: c.localID,
		SDP:    &offer,
	})
	return nil
}

// handleOffer drives the callee path: build the peer connection, apply the
// caller's offer, and publish an answer.
func (c *CallController) handleOffer(msg domain.SignalMessage) {
	if c.observer != nil {
		c.observer.RecordSignal(msg.Kind, false)
	}

	c.mu.Lock()
	if c.role != domain.RoleCallee || c.state != domain.StateInitializing || msg.SDP == nil {
		c.mu.Unlock()
		return
	}
	// Bar duplicate offers before releasing the lock.
	c.setStateLocked(domain.StateNegotiating)
	c.mu.Unlock()

	if err := c.acceptOffer(*msg.SDP); err != nil {
		wrapped := fmt.Errorf("%w: %v", domain.ErrNegotiation, err)
		c.fail(wrapped, "Could not answer the call.")
	}
}

func (c *CallController) acceptOffer(offer domain.SessionDescription) error {
	ctx := context.Background()

	pc, err := c.createPeer(ctx)
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		c.closePeer(pc)
		return err
	}

	answer, err := pc.CreateAnswer(ctx)
	if err != nil {
		c.closePeer(pc)
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		c.closePeer(pc)
		return err
	}

	// Publish the connection only after the remote description is applied,
	// so candidates buffered during setup replay in receipt order.
	c.mu.Lock()
	c.pc = pc
	early := c.earlyCandidates
	c.earlyCandidates = nil
	c.mu.Unlock()

	for _, cand := range early {
		if err := pc.AddICECandidate(cand); err != nil {
			c.logger.Warnw("failed to apply buffered candidate", "channel_key", c.key, "error", err)
		}
	}

	c.publish(domain.SignalMessage{
		Kind:   domain.MessageAnswer,
		Sender: c.localID,
		SDP:    &answer,
	})
	return nil
}

func (c *CallController) handleAnswer(msg domain.SignalMessage) {
	if c.observer != nil {
		c.observer.RecordSignal(msg.Kind, false)
	}

	c.mu.Lock()
	if c.role != domain.RoleCaller || c.state != domain.StateNegotiating || c.pc == nil || msg.SDP == nil {
		c.mu.Unlock()
		return
	}
	pc := c.pc
	c.mu.Unlock()

	if err := pc.SetRemoteDescription(*msg.SDP); err != nil {
		wrapped := fmt.Errorf("%w: %v", domain.ErrNegotiation, err)
		c.fail(wrapped, "Call setup failed.")
	}
}

func (c *CallController) handleCandidate(msg domain.SignalMessage) {
	if c.observer != nil {
		c.observer.RecordSignal(msg.Kind, false)
	}
	if msg.Candidate == nil {
		return
	}

	c.mu.Lock()
	if c.state.Terminal() || c.state == domain.StateClosing {
		c.mu.Unlock()
		return
	}
	if c.pc == nil {
		// Candidate outran the offer; hold it until the connection exists.
		c.earlyCandidates = append(c.earlyCandidates, *msg.Candidate)
		c.mu.Unlock()
		return
	}
	pc := c.pc
	c.mu.Unlock()

	if err := pc.AddICECandidate(*msg.Candidate); err != nil {
		c.logger.Warnw("failed to add remote candidate", "channel_key", c.key, "error", err)
	}
}

func (c *CallController) handleTrack(track ports.RemoteTrack) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remoteTracks = append(c.remoteTracks, track)
	if c.state != domain.StateNegotiating {
		return
	}

	c.connectedAt = time.Now()
	c.setStateLocked(domain.StateConnected)
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.observer != nil {
		c.observer.RecordCallConnected(c.connectedAt.Sub(c.startedAt))
	}
	c.logger.Infow("remote stream available",
		"channel_key", c.key,
		"track_id", track.ID(),
		"kind", track.Kind(),
	)
}

func (c *CallController) handleTransportState(state domain.PeerConnectionState) {
	c.logger.Infow("peer connection state changed", "channel_key", c.key, "state", state)

	if state == domain.PeerStateFailed || state == domain.PeerStateDisconnected {
		c.fail(fmt.Errorf("%w: transport state %s", domain.ErrSignalingUnavailable, state),
			"The call connection was lost.")
	}
}

func (c *CallController) createPeer(ctx context.Context) (ports.PeerConnection, error) {
	pc, err := c.connector.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()

	if err := pc.AttachLocalTracks(stream); err != nil {
		c.closePeer(pc)
		return nil, fmt.Errorf("failed to attach local tracks: %w", err)
	}

	pc.OnICECandidate(func(cand domain.ICECandidate) {
		c.publish(domain.SignalMessage{
			Kind:      domain.MessageICECandidate,
			Sender:    c.localID,
			Candidate: &cand,
		})
	})
	pc.OnTrack(c.handleTrack)
	pc.OnConnectionStateChange(c.handleTransportState)

	return pc, nil
}

// publish sends a signaling message best-effort: losses are logged, never
// surfaced to the state machine. Only delivered messages are counted.
func (c *CallController) publish(msg domain.SignalMessage) {
	ctx, span := tracing.TraceSignal(context.Background(), string(msg.Kind), string(c.key))
	defer span.End()

	if err := c.signaling.Publish(ctx, c.key, msg); err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Warnw("signal publish failed",
			"channel_key", c.key,
			"kind", msg.Kind,
			"error", err,
		)
		return
	}
	if c.observer != nil {
		c.observer.RecordSignal(msg.Kind, true)
	}
}

// closePeer discards a connection that never made it into the session.
func (c *CallController) closePeer(pc ports.PeerConnection) {
	if err := pc.Close(); err != nil {
		c.logger.Warnw("failed to close peer connection", "channel_key", c.key, "error", err)
	}
}

func (c *CallController) armNegotiationTimer() {
	if c.cfg.NegotiationTimeout <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() || c.state == domain.StateConnected {
		return
	}
	c.timer = time.AfterFunc(c.cfg.NegotiationTimeout, c.onNegotiationTimeout)
}

func (c *CallController) onNegotiationTimeout() {
	c.mu.Lock()
	pending := c.state == domain.StateInitializing || c.state == domain.StateNegotiating
	c.mu.Unlock()
	if !pending {
		return
	}
	c.fail(domain.ErrNegotiationTimeout, "The other side did not answer in time.")
}

// fail moves the session to the terminal Failed state, emits exactly one
// user-facing notification, and releases all resources.
func (c *CallController) fail(err error, userMessage string) {
	c.mu.Lock()
	if c.state.Terminal() || c.state == domain.StateClosing {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(domain.StateFailed)
	notified := c.failureNotified
	c.failureNotified = true
	c.mu.Unlock()

	c.logger.Errorw("call session failed",
		"channel_key", c.key,
		"role", c.role,
		"error", err,
	)
	if !notified && c.notifier != nil {
		c.notifier.Notify(ports.NotifyError, "Call failed", userMessage)
	}

	c.cleanup()
}

// cleanup releases the stream, the peer connection, and the signaling
// subscription. Every step is attempted regardless of earlier failures;
// all three operations are idempotent.
func (c *CallController) cleanup() {
	c.mu.Lock()
	stream, pc, sub, timer := c.stream, c.pc, c.sub, c.timer
	c.remoteTracks = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if stream != nil {
		stream.Release()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			c.logger.Warnw("failed to close peer connection", "channel_key", c.key, "error", err)
		}
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			c.logger.Warnw("failed to close signaling subscription", "channel_key", c.key, "error", err)
		}
	}
}

func (c *CallController) setStateLocked(to domain.CallState) {
	from := c.state
	c.state = to
	c.logger.Infow("call state changed",
		"session_id", c.sessionID,
		"channel_key", c.key,
		"from", from,
		"to", to,
	)
	if c.observer != nil {
		c.observer.RecordStateChange(c.key, from, to)
	}
}
