package services

import (
	"context"
	"sync"
	"time"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"

	"github.com/pion/webrtc/v3"
)

// fakeHub is an in-process stand-in for the signaling transport. Published
// messages are delivered synchronously to every other subscriber on the
// same channel key, mirroring the at-most-once broadcast semantics.
type fakeHub struct {
	mu        sync.Mutex
	subs      map[domain.ChannelKey][]*fakeSub
	published []domain.SignalMessage
}

func newFakeHub() *fakeHub {
	return &fakeHub{subs: make(map[domain.ChannelKey][]*fakeSub)}
}

func (h *fakeHub) publishedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.published)
}

type fakeChannel struct {
	hub         *fakeHub
	failOpen    error
	failPublish error
}

func (c *fakeChannel) Open(ctx context.Context, key domain.ChannelKey, self domain.ParticipantID) (ports.Subscription, error) {
	if c.failOpen != nil {
		return nil, c.failOpen
	}
	sub := &fakeSub{hub: c.hub, key: key, self: self, handlers: make(map[domain.MessageKind][]func(domain.SignalMessage))}
	c.hub.mu.Lock()
	c.hub.subs[key] = append(c.hub.subs[key], sub)
	c.hub.mu.Unlock()
	return sub, nil
}

func (c *fakeChannel) Publish(ctx context.Context, key domain.ChannelKey, msg domain.SignalMessage) error {
	if c.failPublish != nil {
		return c.failPublish
	}

	c.hub.mu.Lock()
	c.hub.published = append(c.hub.published, msg)
	subs := make([]*fakeSub, len(c.hub.subs[key]))
	copy(subs, c.hub.subs[key])
	c.hub.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(msg)
	}
	return nil
}

type fakeSub struct {
	hub  *fakeHub
	key  domain.ChannelKey
	self domain.ParticipantID

	mu       sync.Mutex
	handlers map[domain.MessageKind][]func(domain.SignalMessage)
	closed   int
}

func (s *fakeSub) OnMessage(kind domain.MessageKind, handler func(domain.SignalMessage)) {
	s.mu.Lock()
	s.handlers[kind] = append(s.handlers[kind], handler)
	s.mu.Unlock()
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *fakeSub) deliver(msg domain.SignalMessage) {
	s.mu.Lock()
	if s.closed > 0 || msg.Sender == s.self {
		s.mu.Unlock()
		return
	}
	handlers := make([]func(domain.SignalMessage), len(s.handlers[msg.Kind]))
	copy(handlers, s.handlers[msg.Kind])
	s.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

type fakeCapture struct {
	mu       sync.Mutex
	failWith error
	acquired []*fakeStream
	lastReq  bool
}

func (c *fakeCapture) Acquire(ctx context.Context, requestVideo bool) (ports.MediaStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastReq = requestVideo
	if c.failWith != nil {
		return nil, c.failWith
	}
	stream := &fakeStream{hasVideo: requestVideo, videoEnabled: requestVideo}
	c.acquired = append(c.acquired, stream)
	return stream, nil
}

type fakeStream struct {
	mu           sync.Mutex
	muted        bool
	videoEnabled bool
	hasVideo     bool
	released     int
}

func (s *fakeStream) LocalTracks() []webrtc.TrackLocal { return nil }

func (s *fakeStream) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

func (s *fakeStream) SetVideoEnabled(enabled bool) {
	s.mu.Lock()
	s.videoEnabled = enabled
	s.mu.Unlock()
}

func (s *fakeStream) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *fakeStream) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoEnabled
}

func (s *fakeStream) HasVideo() bool { return s.hasVideo }

func (s *fakeStream) Release() {
	s.mu.Lock()
	s.released++
	s.mu.Unlock()
}

func (s *fakeStream) releaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type fakeConnector struct {
	mu             sync.Mutex
	failCreate     error
	failOffer      error
	failRemoteDesc error
	created        []*fakePC
}

func (c *fakeConnector) Create(ctx context.Context) (ports.PeerConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failCreate != nil {
		return nil, c.failCreate
	}
	pc := &fakePC{autoConnect: true, failOffer: c.failOffer, failRemoteDesc: c.failRemoteDesc}
	c.created = append(c.created, pc)
	return pc, nil
}

func (c *fakeConnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.created)
}

// fakePC mimics the negotiation-order contract of the real connection and,
// with autoConnect set, fires its track handler once a remote description
// and at least one candidate have been applied (a candidate pair "succeeding").
type fakePC struct {
	mu             sync.Mutex
	localDesc      *domain.SessionDescription
	remoteDesc     *domain.SessionDescription
	candidates     []domain.ICECandidate
	onICE          func(domain.ICECandidate)
	onTrack        func(ports.RemoteTrack)
	onState        func(domain.PeerConnectionState)
	closed         int
	autoConnect    bool
	trackFired     bool
	failOffer      error
	failRemoteDesc error
}

func (p *fakePC) AttachLocalTracks(stream ports.MediaStream) error { return nil }

func (p *fakePC) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOffer != nil {
		return domain.SessionDescription{}, p.failOffer
	}
	return domain.SessionDescription{Type: "offer", SDP: "v=0 fake-offer"}, nil
}

func (p *fakePC) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteDesc == nil {
		return domain.SessionDescription{}, domain.ErrNegotiation
	}
	return domain.SessionDescription{Type: "answer", SDP: "v=0 fake-answer"}, nil
}

func (p *fakePC) SetLocalDescription(desc domain.SessionDescription) error {
	p.mu.Lock()
	p.localDesc = &desc
	p.mu.Unlock()
	return nil
}

func (p *fakePC) SetRemoteDescription(desc domain.SessionDescription) error {
	p.mu.Lock()
	if p.failRemoteDesc != nil {
		p.mu.Unlock()
		return p.failRemoteDesc
	}
	p.remoteDesc = &desc
	p.mu.Unlock()
	p.maybeConnect()
	return nil
}

func (p *fakePC) AddICECandidate(candidate domain.ICECandidate) error {
	p.mu.Lock()
	p.candidates = append(p.candidates, candidate)
	p.mu.Unlock()
	p.maybeConnect()
	return nil
}

func (p *fakePC) OnICECandidate(handler func(domain.ICECandidate)) {
	p.mu.Lock()
	p.onICE = handler
	p.mu.Unlock()
}

func (p *fakePC) OnTrack(handler func(ports.RemoteTrack)) {
	p.mu.Lock()
	p.onTrack = handler
	p.mu.Unlock()
}

func (p *fakePC) OnConnectionStateChange(handler func(domain.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = handler
	p.mu.Unlock()
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return nil
}

// fireICE simulates local candidate discovery.
func (p *fakePC) fireICE(candidate domain.ICECandidate) {
	p.mu.Lock()
	handler := p.onICE
	p.mu.Unlock()
	if handler != nil {
		handler(candidate)
	}
}

func (p *fakePC) fireState(state domain.PeerConnectionState) {
	p.mu.Lock()
	handler := p.onState
	p.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}

func (p *fakePC) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePC) appliedCandidates() []domain.ICECandidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ICECandidate, len(p.candidates))
	copy(out, p.candidates)
	return out
}

func (p *fakePC) maybeConnect() {
	p.mu.Lock()
	ready := p.autoConnect && !p.trackFired && p.remoteDesc != nil && len(p.candidates) > 0 && p.onTrack != nil
	if ready {
		p.trackFired = true
	}
	handler := p.onTrack
	p.mu.Unlock()

	if ready {
		handler(&fakeRemoteTrack{id: "remote-audio", kind: "audio", streamID: "remote"})
	}
}

type fakeRemoteTrack struct {
	id, kind, streamID string
}

func (t *fakeRemoteTrack) ID() string       { return t.id }
func (t *fakeRemoteTrack) Kind() string     { return t.kind }
func (t *fakeRemoteTrack) StreamID() string { return t.streamID }

type fakeNotifier struct {
	mu       sync.Mutex
	messages []struct {
		Kind  ports.NotificationKind
		Title string
	}
}

func (n *fakeNotifier) Notify(kind ports.NotificationKind, title, body string) {
	n.mu.Lock()
	n.messages = append(n.messages, struct {
		Kind  ports.NotificationKind
		Title string
	}{kind, title})
	n.mu.Unlock()
}

func (n *fakeNotifier) countKind(kind ports.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, m := range n.messages {
		if m.Kind == kind {
			count++
		}
	}
	return count
}

type fakeObserver struct {
	mu        sync.Mutex
	outbound  int
	inbound   int
	connected int
	tips      []int64
}

func (o *fakeObserver) RecordStateChange(key domain.ChannelKey, from, to domain.CallState) {}

func (o *fakeObserver) RecordCallConnected(setup time.Duration) {
	o.mu.Lock()
	o.connected++
	o.mu.Unlock()
}

func (o *fakeObserver) RecordSignal(kind domain.MessageKind, outbound bool) {
	o.mu.Lock()
	if outbound {
		o.outbound++
	} else {
		o.inbound++
	}
	o.mu.Unlock()
}

func (o *fakeObserver) RecordTip(amount int64) {
	o.mu.Lock()
	o.tips = append(o.tips, amount)
	o.mu.Unlock()
}

func (o *fakeObserver) signalCount(outbound bool) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if outbound {
		return o.outbound
	}
	return o.inbound
}

type fakeIdentity struct {
	id  domain.ParticipantID
	err error
}

func (i *fakeIdentity) CurrentUserID(ctx context.Context) (domain.ParticipantID, error) {
	if i.err != nil {
		return "", i.err
	}
	return i.id, nil
}
