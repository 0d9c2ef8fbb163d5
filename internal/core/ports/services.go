package ports

import (
	"context"
	"time"

	"peerline/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// Subscription is one participant's membership in a signaling topic.
type Subscription interface {
	// OnMessage registers a handler invoked once per received message of the
	// given kind, for the lifetime of the subscription. A participant's own
	// published messages are never delivered back to it.
	OnMessage(kind domain.MessageKind, handler func(domain.SignalMessage))

	// Close unsubscribes. Idempotent.
	Close() error
}

// SignalingChannel delivers negotiation messages between the two call
// participants. Delivery is best-effort, at-most-once, unordered between
// kinds; publish failures are silent losses, never acknowledged.
type SignalingChannel interface {
	Open(ctx context.Context, key domain.ChannelKey, self domain.ParticipantID) (Subscription, error)
	Publish(ctx context.Context, key domain.ChannelKey, msg domain.SignalMessage) error
}

// MediaStream is the local capture stream, exclusively owned by the active
// call session. Mute/video toggles gate the tracks in place; they never
// trigger renegotiation.
type MediaStream interface {
	LocalTracks() []webrtc.TrackLocal
	SetMuted(muted bool)
	SetVideoEnabled(enabled bool)
	Muted() bool
	VideoEnabled() bool
	HasVideo() bool

	// Release stops all sources and frees the hardware. Idempotent.
	Release()
}

// MediaCapture acquires the local microphone (always) and camera (when
// requestVideo is true).
type MediaCapture interface {
	Acquire(ctx context.Context, requestVideo bool) (MediaStream, error)
}

// RemoteTrack is a remote media track supplied by the peer connection,
// borrowed for the lifetime of the connected session.
type RemoteTrack interface {
	ID() string
	Kind() string
	StreamID() string
}

// PeerConnection wraps one direct transport between the two endpoints.
// SDP steps invoked out of order fail with domain.ErrNegotiation; ICE
// candidates arriving before the remote description are buffered and
// replayed in receipt order once it is set.
type PeerConnection interface {
	AttachLocalTracks(stream MediaStream) error
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetLocalDescription(desc domain.SessionDescription) error
	SetRemoteDescription(desc domain.SessionDescription) error
	AddICECandidate(candidate domain.ICECandidate) error
	OnICECandidate(handler func(domain.ICECandidate))
	OnTrack(handler func(RemoteTrack))
	OnConnectionStateChange(handler func(domain.PeerConnectionState))

	// Close terminates the transport. Idempotent.
	Close() error
}

// PeerConnector constructs peer connections configured for STUN-assisted
// direct connectivity. No TURN fallback is configured.
type PeerConnector interface {
	Create(ctx context.Context) (PeerConnection, error)
}

type NotificationKind string

const (
	NotifyInfo  NotificationKind = "info"
	NotifyError NotificationKind = "error"
)

// Notifier is the external notification sink. Fire-and-forget.
type Notifier interface {
	Notify(kind NotificationKind, title, body string)
}

// Identity resolves the signed-in local participant. Returns
// domain.ErrAuthRequired when no user is signed in.
type Identity interface {
	CurrentUserID(ctx context.Context) (domain.ParticipantID, error)
}

// CallObserver receives lifecycle events for metrics collection.
type CallObserver interface {
	RecordStateChange(key domain.ChannelKey, from, to domain.CallState)
	RecordCallConnected(setup time.Duration)
	RecordSignal(kind domain.MessageKind, outbound bool)
	RecordTip(amount int64)
}

// CallService drives at most one call session per agent instance.
type CallService interface {
	Start(ctx context.Context, remote domain.ParticipantID, role domain.CallRole, video bool) (*domain.CallSession, error)
	End(ctx context.Context) error
	ToggleMute(ctx context.Context) (bool, error)
	ToggleVideo(ctx context.Context) (bool, error)
	Active(ctx context.Context) (*domain.CallSession, error)
}

// TippingService sends monetary transfers attributed to a call and reports
// running totals. Independent of the call session: a tip failure never
// affects call state.
type TippingService interface {
	SendTip(ctx context.Context, recipient domain.ParticipantID, key domain.ChannelKey, amount int64) (*domain.TipRecord, error)
	GetTotal(ctx context.Context, recipient domain.ParticipantID, key domain.ChannelKey) (int64, error)
}
