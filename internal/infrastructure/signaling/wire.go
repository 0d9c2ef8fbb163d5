package signaling

import "peerline/internal/core/domain"

// FrameType tags a relay websocket frame.
type FrameType string

const (
	FrameJoin   FrameType = "join"
	FrameSignal FrameType = "signal"
	FrameError  FrameType = "error"
)

// Frame is the wire format between a call agent and the signaling relay.
// A client sends one join frame after connecting, then signal frames; the
// relay fans signal frames out to every other client joined to the channel.
type Frame struct {
	Type    FrameType             `json:"type"`
	Channel domain.ChannelKey     `json:"channel,omitempty"`
	Sender  domain.ParticipantID  `json:"sender,omitempty"`
	Message *domain.SignalMessage `json:"message,omitempty"`
	Error   string                `json:"error,omitempty"`
}
