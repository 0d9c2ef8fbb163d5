package domain

import (
	"sort"
	"strings"
	"time"
)

type ParticipantID string
type ChannelKey string
type SessionID string

// DeriveChannelKey computes the signaling topic for a pair of participants.
// The derivation is order-independent: both sides of a call arrive at the
// same key regardless of who is local and who is remote.
func DeriveChannelKey(a, b ParticipantID) ChannelKey {
	ids := []string{string(a), string(b)}
	sort.Strings(ids)
	return ChannelKey(strings.Join(ids, "|"))
}

type CallState string

const (
	StateIdle         CallState = "idle"
	StateInitializing CallState = "initializing"
	StateNegotiating  CallState = "negotiating"
	StateConnected    CallState = "connected"
	StateClosing      CallState = "closing"
	StateClosed       CallState = "closed"
	StateFailed       CallState = "failed"
)

// Terminal reports whether no further lifecycle transitions are possible,
// except End() which always lands in StateClosed.
func (s CallState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

type CallRole string

const (
	RoleCaller CallRole = "caller"
	RoleCallee CallRole = "callee"
)

// CallSession is a snapshot of one active or attempted call.
type CallSession struct {
	ID                  SessionID     `json:"id"`
	LocalParticipantID  ParticipantID `json:"local_participant_id"`
	RemoteParticipantID ParticipantID `json:"remote_participant_id"`
	ChannelKey          ChannelKey    `json:"channel_key"`
	Role                CallRole      `json:"role"`
	State               CallState     `json:"state"`
	Muted               bool          `json:"muted"`
	VideoEnabled        bool          `json:"video_enabled"`
	StartedAt           time.Time     `json:"started_at"`
	ConnectedAt         time.Time     `json:"connected_at,omitempty"`
}

// SessionDescription is the SDP half of an offer/answer exchange,
// kept free of transport types so signaling payloads stay serializable.
type SessionDescription struct {
	Type string `json:"type"` // "offer" or "answer"
	SDP  string `json:"sdp"`
}

// ICECandidate is one discovered network path proposed to the remote side.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdp_mline_index,omitempty"`
	UsernameFragment *string `json:"username_fragment,omitempty"`
}

type PeerConnectionState string

const (
	PeerStateNew          PeerConnectionState = "new"
	PeerStateConnecting   PeerConnectionState = "connecting"
	PeerStateConnected    PeerConnectionState = "connected"
	PeerStateDisconnected PeerConnectionState = "disconnected"
	PeerStateFailed       PeerConnectionState = "failed"
	PeerStateClosed       PeerConnectionState = "closed"
)
