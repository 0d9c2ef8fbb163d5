package webrtc

import (
	"context"
	"fmt"
	"sync"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config holds transport settings for new peer connections.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// Connector builds pion-backed peer connections.
type Connector struct {
	config Config
	logger *zap.SugaredLogger
}

func NewConnector(config Config, logger *zap.SugaredLogger) *Connector {
	return &Connector{
		config: config,
		logger: logger,
	}
}

func (c *Connector) Create(ctx context.Context) (ports.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	if c.config.PortRange.Min > 0 && c.config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(c.config.PortRange.Min, c.config.PortRange.Max); err != nil {
			return nil, fmt.Errorf("invalid UDP port range: %w", err)
		}
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   c.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	return &PeerConnection{
		pc:     pc,
		logger: c.logger,
	}, nil
}

// PeerConnection wraps a pion connection behind the transport port. It
// enforces negotiation ordering: candidates arriving before the remote
// description are buffered and replayed in order once it is applied, and
// answering before an offer is applied is refused.
type PeerConnection struct {
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	mu        sync.Mutex
	remoteSet bool
	pending   []domain.ICECandidate

	closeOnce sync.Once
	closeErr  error
}

func (p *PeerConnection) AttachLocalTracks(stream ports.MediaStream) error {
	if stream == nil {
		return nil
	}
	for _, track := range stream.LocalTracks() {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("failed to add local track %s: %w", track.ID(), err)
		}
		go drainSenderRTCP(sender, p.logger)
	}
	return nil
}

func (p *PeerConnection) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	return fromSessionDescription(offer), nil
}

func (p *PeerConnection) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	p.mu.Lock()
	remoteSet := p.remoteSet
	p.mu.Unlock()
	if !remoteSet {
		return domain.SessionDescription{}, fmt.Errorf("%w: cannot answer before the remote offer is applied", domain.ErrNegotiation)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	return fromSessionDescription(answer), nil
}

func (p *PeerConnection) SetLocalDescription(desc domain.SessionDescription) error {
	if err := p.pc.SetLocalDescription(toSessionDescription(desc)); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	return nil
}

func (p *PeerConnection) SetRemoteDescription(desc domain.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(toSessionDescription(desc)); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, candidate := range pending {
		if err := p.pc.AddICECandidate(toCandidateInit(candidate)); err != nil {
			p.logger.Warnw("failed to apply buffered candidate", "error", err)
		}
	}
	return nil
}

func (p *PeerConnection) AddICECandidate(candidate domain.ICECandidate) error {
	p.mu.Lock()
	if !p.remoteSet {
		// The candidate outran the description. Hold it; it replays in
		// order after SetRemoteDescription.
		p.pending = append(p.pending, candidate)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(toCandidateInit(candidate)); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

func (p *PeerConnection) OnICECandidate(handler func(domain.ICECandidate)) {
	p.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			// End-of-candidates marker; nothing to relay.
			return
		}
		handler(fromCandidateInit(candidate.ToJSON()))
	})
}

func (p *PeerConnection) OnTrack(handler func(ports.RemoteTrack)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.logger.Infow("remote track started",
			"track_id", track.ID(),
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
		)
		go drainReceiverRTCP(receiver, p.logger)
		handler(&remoteTrack{track: track})
	})
}

func (p *PeerConnection) OnConnectionStateChange(handler func(domain.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		handler(fromConnectionState(state))
	})
}

func (p *PeerConnection) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}

type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (t *remoteTrack) ID() string       { return t.track.ID() }
func (t *remoteTrack) Kind() string     { return t.track.Kind().String() }
func (t *remoteTrack) StreamID() string { return t.track.StreamID() }

func toSessionDescription(desc domain.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	}
}

func fromSessionDescription(desc webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func toCandidateInit(candidate domain.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	}
}

func fromCandidateInit(init webrtc.ICECandidateInit) domain.ICECandidate {
	return domain.ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func fromConnectionState(state webrtc.PeerConnectionState) domain.PeerConnectionState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return domain.PeerStateNew
	case webrtc.PeerConnectionStateConnecting:
		return domain.PeerStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.PeerStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.PeerStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.PeerStateFailed
	default:
		return domain.PeerStateClosed
	}
}
